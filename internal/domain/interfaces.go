package domain

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the boost controller depends on them.

// FrequencySubsystem abstracts the cpufreq policy machinery.
// Implemented by infra/cpufreq.Subsystem.
type FrequencySubsystem interface {
	// OnlineCPUs returns the CPUs currently online.
	OnlineCPUs() ([]int, error)

	// UpdatePolicy re-evaluates the policy of one CPU, calling every
	// registered notifier. Returns ErrSubsystemUnavailable for CPUs
	// whose bounds cannot be read.
	UpdatePolicy(cpu int) error

	// RegisterPolicyNotifier adds a callback; higher priority runs first.
	RegisterPolicyNotifier(name string, priority int, fn PolicyNotifierFunc) error

	// UnregisterPolicyNotifier removes a callback by name.
	UnregisterPolicyNotifier(name string) error
}

// DisplayNotifier abstracts the display power-state notification chain.
// Implemented by infra/display.Chain.
type DisplayNotifier interface {
	Register(name string, priority int, fn DisplayNotifierFunc) error
	Unregister(name string) error
}

// CycleJournal records boost cycles. Implemented by infra/sqlite.DB.
// Called only from the scheduler worker.
type CycleJournal interface {
	StartCycle(c BoostCycle) error
	EndCycle(id string, outcome CycleOutcome) error
}
