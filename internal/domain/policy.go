// Package domain — cpufreq policy types.
package domain

// PolicyEvent identifies the phase of a policy recomputation round
// a notifier is being called for.
type PolicyEvent int

const (
	PolicyAdjust PolicyEvent = iota // Proposal may be modified
	PolicyNotify                    // Final range, read-only
)

// String returns a human-readable policy event.
func (e PolicyEvent) String() string {
	switch e {
	case PolicyAdjust:
		return "adjust"
	case PolicyNotify:
		return "notify"
	default:
		return "unknown"
	}
}

// Policy is the proposed operating range for one CPU during a
// recomputation round. Frequencies are in kHz, as sysfs reports them.
// Min and Max are mutable by notifiers; HWMin and HWMax are the
// hardware bounds and must be treated as read-only.
type Policy struct {
	CPU   int    `json:"cpu"`
	Min   uint64 `json:"min_khz"`
	Max   uint64 `json:"max_khz"`
	HWMin uint64 `json:"hw_min_khz"`
	HWMax uint64 `json:"hw_max_khz"`
}

// Clamp brings Min and Max back inside the hardware bounds and fixes
// an inverted range by lowering Min.
func (p *Policy) Clamp() {
	p.Min = clamp(p.Min, p.HWMin, p.HWMax)
	p.Max = clamp(p.Max, p.HWMin, p.HWMax)
	if p.Min > p.Max {
		p.Min = p.Max
	}
}

func clamp(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PolicyNotifierFunc is called synchronously for every CPU during a
// recomputation round. It must not block.
type PolicyNotifierFunc func(event PolicyEvent, p *Policy)
