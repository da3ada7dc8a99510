// Package health runs periodic checks over the daemon's dependencies and
// attempts recovery when one fails.
package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/tutu-network/wakeboost/internal/domain"
	"github.com/tutu-network/wakeboost/internal/infra/metrics"
)

// DefaultInterval is how often Run evaluates the checks.
const DefaultInterval = 30 * time.Second

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	log      logr.Logger
}

// NewChecker creates a checker over the given checks. A non-positive
// interval uses DefaultInterval.
func NewChecker(interval time.Duration, log logr.Logger, checks ...Check) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Checker{
		interval: interval,
		checks:   checks,
		log:      log.WithName("health"),
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	// Run immediately on start
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce evaluates every check and stores the results.
func (c *Checker) RunOnce(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
			c.log.Info("health check failed", "check", check.Name, "error", err.Error())
			if check.RecoverFn != nil {
				if rerr := check.RecoverFn(ctx); rerr != nil {
					c.log.Error(rerr, "recovery failed", "check", check.Name)
				}
			}
		} else {
			s.Healthy = true
		}
		statuses[i] = s

		gauge := 0.0
		if s.Healthy {
			gauge = 1
		}
		metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(gauge)
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

// CPUFreqSource is the part of the frequency subsystem the cpufreq check uses.
type CPUFreqSource interface {
	OnlineCPUs() ([]int, error)
	UpdateAll() (int, error)
}

// CPUFreq fails when no CPU is online or none exposes cpufreq data.
// Recovery re-runs a full recomputation.
func CPUFreq(src CPUFreqSource) Check {
	return Check{
		Name: "cpufreq",
		CheckFn: func(ctx context.Context) error {
			cpus, err := src.OnlineCPUs()
			if err != nil {
				return err
			}
			if len(cpus) == 0 {
				return domain.ErrNoOnlineCPUs
			}
			return nil
		},
		RecoverFn: func(ctx context.Context) error {
			_, err := src.UpdateAll()
			return err
		},
	}
}

// DisplayReader reads the current display state.
type DisplayReader interface {
	Read() (domain.BlankLevel, error)
}

// DisplaySource fails when the backlight attribute cannot be read.
func DisplaySource(r DisplayReader) Check {
	return Check{
		Name: "display_source",
		CheckFn: func(ctx context.Context) error {
			_, err := r.Read()
			return err
		},
	}
}

// Pinger is satisfied by the journal database.
type Pinger interface {
	Ping() error
}

// Journal fails when the journal database is unreachable.
func Journal(p Pinger) Check {
	return Check{
		Name: "journal",
		CheckFn: func(ctx context.Context) error {
			return p.Ping()
		},
		RecoverFn: func(ctx context.Context) error {
			return nil // SQLite auto-recovers via WAL
		},
	}
}

// WorkerProbe reports whether a worker goroutine is running.
type WorkerProbe interface {
	WorkerAlive() bool
}

var errWorkerStopped = errors.New("worker stopped")

// Scheduler fails once the boost work queue has exited.
func Scheduler(w WorkerProbe) Check {
	return Check{
		Name: "scheduler",
		CheckFn: func(ctx context.Context) error {
			if !w.WorkerAlive() {
				return fmt.Errorf("wake_boost_wq: %w", errWorkerStopped)
			}
			return nil
		},
	}
}
