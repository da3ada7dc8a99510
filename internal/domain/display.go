// Package domain — display power-state types.
package domain

import "fmt"

// BlankLevel is the target power state of a display transition.
// Values follow the framebuffer blank levels.
type BlankLevel int

const (
	BlankUnblank       BlankLevel = iota // Fully on
	BlankNormal                          // Blanked, panel powered
	BlankVSyncSuspend                    // VSync off
	BlankHSyncSuspend                    // HSync off
	BlankPowerdown                       // Panel off
)

// String returns a human-readable blank level.
func (b BlankLevel) String() string {
	switch b {
	case BlankUnblank:
		return "unblank"
	case BlankNormal:
		return "blank"
	case BlankVSyncSuspend:
		return "vsync_suspend"
	case BlankHSyncSuspend:
		return "hsync_suspend"
	case BlankPowerdown:
		return "powerdown"
	default:
		return "unknown"
	}
}

// ParseBlankLevel accepts either a level name or its numeric value.
func ParseBlankLevel(s string) (BlankLevel, error) {
	for b := BlankUnblank; b <= BlankPowerdown; b++ {
		if s == b.String() || s == fmt.Sprint(int(b)) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("%w: blank level %q", ErrInvalidInput, s)
}

// DisplayStage distinguishes the early notification of a transition
// from the one sent after the driver has applied it.
type DisplayStage int

const (
	StageEarly DisplayStage = iota
	StageLate
)

// String returns a human-readable stage.
func (s DisplayStage) String() string {
	if s == StageEarly {
		return "early"
	}
	return "late"
}

// DisplayEvent is one display power-state notification.
type DisplayEvent struct {
	Stage DisplayStage
	Blank BlankLevel
}

// DisplayNotifierFunc receives display events. It must not block for long.
type DisplayNotifierFunc func(ev DisplayEvent)
