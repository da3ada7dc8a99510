// Package metrics provides Prometheus metrics for wakeboost.
// Counters, gauges and histograms for boost cycles, policy recomputation,
// display events, the work queue and health checks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Boost Cycles ───────────────────────────────────────────────────────────

// BoostCycles counts enter-boost transitions by trigger.
var BoostCycles = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wakeboost",
	Name:      "boost_cycles_total",
	Help:      "Total enter-boost transitions by trigger.",
}, []string{"trigger"})

// Unboosts counts exit-boost transitions by reason.
var Unboosts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wakeboost",
	Name:      "unboost_total",
	Help:      "Total exit-boost transitions by reason.",
}, []string{"reason"})

// BoostState tracks the current state (0=no_boost, 1=unboost, 2=boost).
var BoostState = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "wakeboost",
	Name:      "boost_state",
	Help:      "Current boost state (0=no_boost, 1=unboost, 2=boost).",
})

// BoostDuration tracks the wake_boost parameter in milliseconds.
var BoostDuration = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "wakeboost",
	Name:      "boost_duration_ms",
	Help:      "Configured boost duration in milliseconds.",
})

// BoostWindow tracks how long boost windows actually lasted.
var BoostWindow = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "wakeboost",
	Name:      "boost_window_seconds",
	Help:      "Observed time between entering and leaving boost.",
	Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30},
})

// ─── Policy ─────────────────────────────────────────────────────────────────

// PolicyAdjustments counts policy callback modifications by action.
// Label children are resolved at construction time by callers on the
// hot path.
var PolicyAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wakeboost",
	Name:      "policy_adjustments_total",
	Help:      "Policy callback modifications (raise_floor, restore_floor, raise_max).",
}, []string{"action"})

// PolicyUpdates counts recomputation rounds per CPU by result.
var PolicyUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wakeboost",
	Name:      "policy_updates_total",
	Help:      "Per-CPU policy recomputations by result (ok, unavailable, error).",
}, []string{"result"})

// RefreshLatency tracks how long a full refresh over all online CPUs takes.
var RefreshLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "wakeboost",
	Name:      "refresh_latency_seconds",
	Help:      "Duration of a policy refresh over all online CPUs.",
	Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
})

// ─── Display ────────────────────────────────────────────────────────────────

// DisplayEvents counts display notifications by stage and blank level.
var DisplayEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wakeboost",
	Name:      "display_events_total",
	Help:      "Display power-state notifications by stage and state.",
}, []string{"stage", "state"})

// ─── Work Queue ─────────────────────────────────────────────────────────────

// QueueDepth tracks items waiting on the boost work queue.
var QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "wakeboost",
	Name:      "workqueue_depth",
	Help:      "Items waiting on the boost work queue.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "wakeboost",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})
