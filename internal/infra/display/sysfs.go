package display

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/afero"

	"github.com/tutu-network/wakeboost/internal/domain"
)

// BacklightGlob matches the power files of every backlight device.
const BacklightGlob = "/sys/class/backlight/*/bl_power"

// Mode selects how the watched file maps to a blank level.
type Mode string

const (
	ModeBLPower    Mode = "bl_power"   // value is the blank level (0 = on, 4 = off)
	ModeBrightness Mode = "brightness" // 0 = off, anything else = on
)

// SourceConfig controls the sysfs poller.
type SourceConfig struct {
	Path         string // file to watch; empty means first match of BacklightGlob
	Mode         Mode
	PollInterval time.Duration
}

// SysfsSource polls a backlight file and turns changes into transitions
// on a Chain. Sysfs attributes do not reliably raise inotify events, so
// the file is polled.
type SysfsSource struct {
	fs    afero.Fs
	cfg   SourceConfig
	chain *Chain
	log   logr.Logger

	last    domain.BlankLevel
	known   bool
	lastErr string
}

// NewSysfsSource resolves the watched path and returns a poller.
func NewSysfsSource(fs afero.Fs, cfg SourceConfig, chain *Chain, log logr.Logger) (*SysfsSource, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeBLPower
	}
	if cfg.Mode != ModeBLPower && cfg.Mode != ModeBrightness {
		return nil, fmt.Errorf("%w: display mode %q", domain.ErrInvalidInput, cfg.Mode)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.Path == "" {
		matches, err := afero.Glob(fs, BacklightGlob)
		if err != nil {
			return nil, fmt.Errorf("glob backlight: %w", err)
		}
		if len(matches) == 0 {
			return nil, errors.New("no backlight device found")
		}
		cfg.Path = matches[0]
	}

	return &SysfsSource{
		fs:    fs,
		cfg:   cfg,
		chain: chain,
		log:   log.WithName("display-sysfs").WithValues("path", cfg.Path),
	}, nil
}

// Path returns the file being watched.
func (s *SysfsSource) Path() string { return s.cfg.Path }

// Read returns the current blank level.
func (s *SysfsSource) Read() (domain.BlankLevel, error) {
	data, err := afero.ReadFile(s.fs, s.cfg.Path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.cfg.Path, err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", s.cfg.Path, err)
	}

	if s.cfg.Mode == ModeBrightness {
		if v == 0 {
			return domain.BlankPowerdown, nil
		}
		return domain.BlankUnblank, nil
	}
	if v < int(domain.BlankUnblank) || v > int(domain.BlankPowerdown) {
		return 0, fmt.Errorf("%s: blank level %d out of range", s.cfg.Path, v)
	}
	return domain.BlankLevel(v), nil
}

// Poll reads the file once and announces a transition if the level
// changed. The first successful read only establishes the baseline.
func (s *SysfsSource) Poll() (bool, error) {
	level, err := s.Read()
	if err != nil {
		return false, err
	}
	if !s.known {
		s.last, s.known = level, true
		return false, nil
	}
	if level == s.last {
		return false, nil
	}
	s.last = level
	s.chain.Transition(level)
	return true, nil
}

// Run polls until ctx is done. Call in a goroutine.
func (s *SysfsSource) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

func (s *SysfsSource) poll() {
	_, err := s.Poll()
	if err == nil {
		s.lastErr = ""
		return
	}
	// Log each distinct failure once instead of every tick.
	if msg := err.Error(); msg != s.lastErr {
		s.lastErr = msg
		s.log.Error(err, "poll display state")
	}
}
