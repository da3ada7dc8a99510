package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Runtime parameter errors
	ErrInvalidInput = errors.New("invalid input")

	// Startup errors
	ErrAllocationFailure = errors.New("worker infrastructure could not be created")

	// Frequency-scaling errors
	ErrSubsystemUnavailable = errors.New("cpufreq data unavailable for cpu")
	ErrNoOnlineCPUs         = errors.New("no online CPUs reported")

	// Lifecycle errors
	ErrControllerStopped = errors.New("boost controller is stopped")
)
