// Package domain — boost state types.
// The wake boost raises every CPU's frequency floor to the hardware
// maximum for a short window after the display turns on.
package domain

import "time"

// BoostState is the tri-state flag shared between the scheduler jobs
// and the policy callback.
type BoostState int32

const (
	NoBoost BoostState = iota // Resting state, floor unconstrained
	Unboost                   // Restore the floor once, then NoBoost
	Boost                     // Floor forced to hardware maximum
)

// String returns a human-readable boost state.
func (s BoostState) String() string {
	switch s {
	case NoBoost:
		return "no_boost"
	case Unboost:
		return "unboost"
	case Boost:
		return "boost"
	default:
		return "unknown"
	}
}

// DefaultBoostDuration is applied on every display unblank.
const DefaultBoostDuration = 2000 * time.Millisecond

// BoostTrigger records what started a boost cycle.
type BoostTrigger string

const (
	TriggerUnblank BoostTrigger = "unblank"
	TriggerParam   BoostTrigger = "param"
)

// CycleOutcome records how a boost cycle ended.
type CycleOutcome string

const (
	OutcomeExpired     CycleOutcome = "expired"      // Exit timer fired naturally
	OutcomeFastForward CycleOutcome = "fast_forward" // Display blanked early
	OutcomeRestarted   CycleOutcome = "restarted"    // A new enter superseded it
	OutcomeShutdown    CycleOutcome = "shutdown"     // Daemon stopped mid-boost
)

// BoostCycle is one enter→exit window as recorded in the journal.
type BoostCycle struct {
	ID         string       `json:"id"`
	Trigger    BoostTrigger `json:"trigger"`
	DurationMS uint32       `json:"duration_ms"`
	StartedAt  time.Time    `json:"started_at"`
	EndedAt    *time.Time   `json:"ended_at,omitempty"`
	Outcome    CycleOutcome `json:"outcome,omitempty"`
}

// Open reports whether the cycle has not ended yet.
func (c BoostCycle) Open() bool {
	return c.EndedAt == nil
}
