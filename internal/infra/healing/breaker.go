// Package healing implements a circuit breaker for side effects that must
// not stall the caller when their backend keeps failing.
//
// States:
//   - closed    (normal) → FailureThreshold consecutive-ish failures → open
//   - open      (skipping) → after ResetTimeout → half_open
//   - half_open (probing) → SuccessesToClose successes → closed, any failure → open
package healing

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while the breaker is open.
var ErrOpen = errors.New("circuit breaker open")

// State is the breaker state.
type State int

const (
	Closed   State = iota // Calls pass through
	Open                  // Calls are rejected
	HalfOpen              // Calls pass through as probes
)

// String returns a human-readable breaker state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config configures a breaker.
type Config struct {
	FailureThreshold int           // failures to trip (default 3)
	ResetTimeout     time.Duration // time open before probing (default 30s)
	SuccessesToClose int           // probe successes to close again (default 1)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Second,
		SuccessesToClose: 1,
	}
}

// Breaker is safe for concurrent use.
type Breaker struct {
	mu        sync.Mutex
	name      string
	cfg       Config
	state     State
	failures  int
	successes int
	trippedAt time.Time
	trips     int
	now       func() time.Time // injectable clock for testing
}

// New creates a closed breaker. Zero config fields take defaults.
func New(name string, cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.SuccessesToClose <= 0 {
		cfg.SuccessesToClose = def.SuccessesToClose
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stateLocked() == Open {
		return fmt.Errorf("%s: %w", b.name, ErrOpen)
	}
	return nil
}

// Record feeds the outcome of an allowed call back into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.stateLocked()
	if err == nil {
		switch state {
		case HalfOpen:
			b.successes++
			if b.successes >= b.cfg.SuccessesToClose {
				b.state = Closed
				b.failures = 0
			}
		case Closed:
			// Decay failures on success
			if b.failures > 0 {
				b.failures--
			}
		}
		return
	}

	switch state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.tripLocked()
		}
	case HalfOpen:
		b.tripLocked()
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

// Trips returns how many times the breaker has opened.
func (b *Breaker) Trips() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trips
}

func (b *Breaker) stateLocked() State {
	if b.state == Open && b.now().Sub(b.trippedAt) >= b.cfg.ResetTimeout {
		b.state = HalfOpen
		b.successes = 0
	}
	return b.state
}

func (b *Breaker) tripLocked() {
	b.state = Open
	b.trippedAt = b.now()
	b.trips++
}
