// Package boost implements the display-wake CPU boost: on screen-on the
// frequency floor of every online CPU is forced to the hardware maximum for
// a configurable window, then released back to the governor.
//
// Two event sources drive it concurrently. Display notifications and writes
// of the wake_boost parameter only queue or cancel jobs on a dedicated work
// queue; the jobs flip the boost state and ask the frequency subsystem to
// recompute every online CPU, which calls back into adjustPolicy. Nothing
// on the notification paths takes a lock around the state.
package boost

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tutu-network/wakeboost/internal/domain"
	"github.com/tutu-network/wakeboost/internal/infra/healing"
	"github.com/tutu-network/wakeboost/internal/infra/metrics"
	"github.com/tutu-network/wakeboost/internal/infra/scheduler"
)

// NotifierName is the name the controller registers under on both chains.
const NotifierName = "wake_boost"

// Func definitions for unit testing
var (
	newQueueFunc = scheduler.New
)

// Config controls the controller.
type Config struct {
	DefaultDuration time.Duration     // stored into wake_boost on every unblank (default 2s)
	Queue           scheduler.Options // work queue options
}

// Controller owns the boost state machine. Create it with New, install its
// callbacks with Start and remove them with Stop.
type Controller struct {
	cfg     Config
	log     logr.Logger
	freq    domain.FrequencySubsystem
	display domain.DisplayNotifier
	journal domain.CycleJournal
	guard   *healing.Breaker // skips journal writes while the journal keeps failing

	wq        *scheduler.Queue
	enterWork *scheduler.Work
	exitWork  *scheduler.DelayedWork

	state      atomic.Int32 // domain.BoostState
	durationMS atomic.Uint32
	restoring  atomic.Bool // set while exitBoost refreshes every CPU

	// Written by event contexts right before they queue a job, read by the job.
	trigger atomic.Value // domain.BoostTrigger
	outcome atomic.Value // domain.CycleOutcome

	// Worker-owned.
	cycle          *domain.BoostCycle
	cycleJournaled bool

	started atomic.Bool
	stopped atomic.Bool

	raiseFloor   prometheus.Counter
	restoreFloor prometheus.Counter
	raiseMax     prometheus.Counter
}

// Status is a point-in-time view of the controller.
type Status struct {
	State       string          `json:"state"`
	DurationMS  uint32          `json:"wake_boost_ms"`
	EnterQueued bool            `json:"enter_queued"`
	ExitPending bool            `json:"exit_pending"`
	Queue       scheduler.Stats `json:"queue"`
	Journal     string          `json:"journal,omitempty"` // breaker state of the journal guard
}

// New builds a controller and its work queue. journal may be nil. A queue
// that cannot be created is reported as domain.ErrAllocationFailure and
// nothing is registered anywhere.
func New(freq domain.FrequencySubsystem, display domain.DisplayNotifier, journal domain.CycleJournal, cfg Config, log logr.Logger) (*Controller, error) {
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = domain.DefaultBoostDuration
	}
	log = log.WithName("boost")
	cfg.Queue.Logger = log

	wq, err := newQueueFunc("wake_boost_wq", cfg.Queue)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAllocationFailure, err)
	}

	c := &Controller{
		cfg:          cfg,
		log:          log,
		freq:         freq,
		display:      display,
		journal:      journal,
		guard:        healing.New("journal", healing.DefaultConfig()),
		wq:           wq,
		raiseFloor:   metrics.PolicyAdjustments.WithLabelValues("raise_floor"),
		restoreFloor: metrics.PolicyAdjustments.WithLabelValues("restore_floor"),
		raiseMax:     metrics.PolicyAdjustments.WithLabelValues("raise_max"),
	}
	c.enterWork = scheduler.NewWork(c.enterBoost)
	c.exitWork = scheduler.NewDelayedWork(c.exitBoost)
	c.trigger.Store(domain.TriggerParam)
	c.outcome.Store(domain.OutcomeExpired)
	return c, nil
}

// Start installs the policy callback and subscribes to display events at
// the highest priority.
func (c *Controller) Start() error {
	if c.stopped.Load() {
		return domain.ErrControllerStopped
	}
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}

	if err := c.freq.RegisterPolicyNotifier(NotifierName, 0, c.adjustPolicy); err != nil {
		c.started.Store(false)
		return err
	}
	if err := c.display.Register(NotifierName, math.MaxInt, c.handleDisplay); err != nil {
		_ = c.freq.UnregisterPolicyNotifier(NotifierName)
		c.started.Store(false)
		return err
	}

	c.log.Info("wake boost installed", "defaultMs", c.cfg.DefaultDuration.Milliseconds())
	return nil
}

// Stop detaches from the display chain, cancels outstanding jobs and, if a
// boost is in force, runs the exit transition so the floor is not left
// raised. The work queue is closed afterwards.
func (c *Controller) Stop() {
	if !c.stopped.CompareAndSwap(false, true) {
		return
	}

	if c.started.Load() {
		if err := c.display.Unregister(NotifierName); err != nil {
			c.log.Error(err, "detach display notifier")
		}
	}

	c.wq.CancelSync(c.enterWork)
	exitPending := c.wq.CancelDelayedSync(c.exitWork)
	if exitPending || c.State() == domain.Boost {
		c.outcome.Store(domain.OutcomeShutdown)
		c.wq.ModDelayed(c.exitWork, 0)
		c.wq.Flush()
	}

	if c.started.Load() {
		if err := c.freq.UnregisterPolicyNotifier(NotifierName); err != nil {
			c.log.Error(err, "detach policy notifier")
		}
	}
	c.wq.Close()
	c.log.Info("wake boost removed")
}

// ─── Jobs (run on the work queue) ───────────────────────────────────────────

func (c *Controller) enterBoost() {
	prev := domain.BoostState(c.state.Swap(int32(domain.Boost)))
	trigger := c.trigger.Load().(domain.BoostTrigger)
	metrics.BoostState.Set(float64(domain.Boost))

	c.refreshPolicies()

	ms := c.durationMS.Load()
	c.wq.ModDelayed(c.exitWork, time.Duration(ms)*time.Millisecond)

	if c.cycle != nil {
		c.closeCycle(domain.OutcomeRestarted)
	}
	c.openCycle(trigger, ms)
	metrics.BoostCycles.WithLabelValues(string(trigger)).Inc()
	c.log.V(1).Info("boost entered", "trigger", trigger, "durationMs", ms, "previous", prev.String())
}

func (c *Controller) exitBoost() {
	outcome := c.outcome.Swap(domain.OutcomeExpired).(domain.CycleOutcome)

	// Unboost stays visible for the whole round so every CPU gets the
	// restore; the clear happens once all of them were refreshed.
	c.restoring.Store(true)
	c.state.Store(int32(domain.Unboost))
	c.refreshPolicies()
	c.restoring.Store(false)
	c.state.CompareAndSwap(int32(domain.Unboost), int32(domain.NoBoost))
	metrics.BoostState.Set(float64(c.State()))

	if c.cycle != nil {
		c.closeCycle(outcome)
	}
	metrics.Unboosts.WithLabelValues(string(outcome)).Inc()
	c.log.V(1).Info("boost exited", "reason", outcome)
}

// refreshPolicies asks the frequency subsystem to recompute every online
// CPU so the new state takes effect now. CPUs that disappear mid-loop are
// skipped.
func (c *Controller) refreshPolicies() {
	start := time.Now()
	defer func() { metrics.RefreshLatency.Observe(time.Since(start).Seconds()) }()

	cpus, err := c.freq.OnlineCPUs()
	if err != nil {
		c.log.Error(err, "list online cpus")
		return
	}
	for _, cpu := range cpus {
		err := c.freq.UpdatePolicy(cpu)
		if err != nil && !errors.Is(err, domain.ErrSubsystemUnavailable) {
			c.log.Error(err, "refresh policy", "cpu", cpu)
		}
	}
}

func (c *Controller) openCycle(trigger domain.BoostTrigger, ms uint32) {
	c.cycle = &domain.BoostCycle{
		ID:         uuid.New().String(),
		Trigger:    trigger,
		DurationMS: ms,
		StartedAt:  time.Now(),
	}
	c.cycleJournaled = c.journalWrite("journal cycle start", func() error {
		return c.journal.StartCycle(*c.cycle)
	})
}

func (c *Controller) closeCycle(outcome domain.CycleOutcome) {
	cycle := c.cycle
	c.cycle = nil
	metrics.BoostWindow.Observe(time.Since(cycle.StartedAt).Seconds())
	if c.cycleJournaled {
		c.journalWrite("journal cycle end", func() error {
			return c.journal.EndCycle(cycle.ID, outcome)
		})
	}
}

// journalWrite runs write unless the journal is absent or its breaker is
// open, and reports whether the write succeeded.
func (c *Controller) journalWrite(what string, write func() error) bool {
	if c.journal == nil {
		return false
	}
	if err := c.guard.Allow(); err != nil {
		c.log.V(1).Info("journal write skipped", "op", what, "reason", err.Error())
		return false
	}
	err := write()
	c.guard.Record(err)
	if err != nil {
		c.log.Error(err, what)
		return false
	}
	return true
}

// ─── Callbacks (event contexts, must not block) ─────────────────────────────

// adjustPolicy is called by the frequency subsystem for every CPU of a
// recomputation round. The state read is a snapshot for this call only.
func (c *Controller) adjustPolicy(event domain.PolicyEvent, p *domain.Policy) {
	if event != domain.PolicyAdjust {
		return
	}

	switch domain.BoostState(c.state.Load()) {
	case domain.Unboost:
		p.Min = p.HWMin
		// Outside an exit round nothing else clears Unboost. CAS so a
		// Boost stored by a concurrent enter job survives.
		if !c.restoring.Load() {
			c.state.CompareAndSwap(int32(domain.Unboost), int32(domain.NoBoost))
		}
		c.restoreFloor.Inc()
	case domain.Boost:
		p.Min = p.HWMax
		// Max is only ever raised here; unboost leaves it alone.
		if p.Max < p.Min {
			p.Max = p.Min
			c.raiseMax.Inc()
		}
		c.raiseFloor.Inc()
	}
}

// handleDisplay consults only early-stage events so each transition
// triggers once.
func (c *Controller) handleDisplay(ev domain.DisplayEvent) {
	if ev.Stage != domain.StageEarly {
		return
	}

	if ev.Blank == domain.BlankUnblank {
		c.storeDuration(uint32(c.cfg.DefaultDuration.Milliseconds()))
		c.trigger.Store(domain.TriggerUnblank)
		c.wq.Queue(c.enterWork)
		return
	}

	// An enter still in flight would arm a full-length exit after the
	// screen went off; let it finish first so the cancel below sees it.
	// A queued enter is left alone and still runs.
	c.wq.WaitRunning(c.enterWork)
	if c.wq.CancelDelayedSync(c.exitWork) {
		c.outcome.Store(domain.OutcomeFastForward)
		c.wq.ModDelayed(c.exitWork, 0)
	}
}

// ─── wake_boost parameter ───────────────────────────────────────────────────

// SetDuration parses value as a decimal millisecond count, stores it and
// starts a boost cycle. Invalid input leaves the previous value in place
// and schedules nothing.
func (c *Controller) SetDuration(value string) error {
	v, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return fmt.Errorf("%w: wake_boost %q is not an unsigned integer", domain.ErrInvalidInput, value)
	}
	if c.stopped.Load() {
		return domain.ErrControllerStopped
	}

	c.storeDuration(uint32(v))
	c.trigger.Store(domain.TriggerParam)
	c.wq.Queue(c.enterWork)
	return nil
}

// DurationString returns wake_boost formatted as a decimal integer.
func (c *Controller) DurationString() string {
	return strconv.FormatUint(uint64(c.durationMS.Load()), 10)
}

// Duration returns wake_boost as a time.Duration.
func (c *Controller) Duration() time.Duration {
	return time.Duration(c.durationMS.Load()) * time.Millisecond
}

func (c *Controller) storeDuration(ms uint32) {
	c.durationMS.Store(ms)
	metrics.BoostDuration.Set(float64(ms))
}

// ─── Inspection ─────────────────────────────────────────────────────────────

// State returns the current boost state.
func (c *Controller) State() domain.BoostState {
	return domain.BoostState(c.state.Load())
}

// Status returns a snapshot for the control API.
func (c *Controller) Status() Status {
	stats := c.wq.Stats()
	metrics.QueueDepth.Set(float64(stats.Depth))
	st := Status{
		State:       c.State().String(),
		DurationMS:  c.durationMS.Load(),
		EnterQueued: c.wq.Pending(c.enterWork),
		ExitPending: c.wq.Pending(&c.exitWork.Work),
		Queue:       stats,
	}
	if c.journal != nil {
		st.Journal = c.guard.State().String()
	}
	return st
}

// WorkerAlive reports whether the work queue is still running.
func (c *Controller) WorkerAlive() bool {
	return c.wq.Alive()
}

// Flush waits until every job queued so far has run.
func (c *Controller) Flush() {
	c.wq.Flush()
}
