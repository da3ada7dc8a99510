// Package scheduler implements the deferred work queue that runs the boost
// controller's jobs outside of the contexts that raise events.
//
// Core concepts:
//   - Queue: one dedicated worker goroutine, jobs run FIFO by eligibility time
//   - Work: a job that is idle, pending or running; queuing a pending job coalesces
//   - DelayedWork: a Work armed by a timer; ModDelayed cancels and re-arms it
//   - Cancel*Sync: authoritative cancel that also waits out a running instance
//   - WaitRunning: waits out a running instance without touching a pending one
package scheduler

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Options configures a work queue.
type Options struct {
	HighPriority   bool // lock the worker to an OS thread and renice it
	Nice           int  // nice value for a high-priority worker (default -10)
	StrictPriority bool // fail New if the worker cannot be reniced
	Logger         logr.Logger
}

// DefaultOptions returns a high-priority, non-strict queue configuration.
func DefaultOptions() Options {
	return Options{
		HighPriority: true,
		Nice:         -10,
		Logger:       logr.Discard(),
	}
}

// ─── Work Items ─────────────────────────────────────────────────────────────

// Work is a unit of deferred execution. A Work may be pending on at most
// one queue at a time and never runs concurrently with itself.
type Work struct {
	fn      func()
	pending bool // guarded by the owning queue's mu
}

// NewWork wraps fn as a queueable job.
func NewWork(fn func()) *Work {
	return &Work{fn: fn}
}

// DelayedWork is a Work that becomes eligible after a timer expires.
type DelayedWork struct {
	Work
	timer *time.Timer
	gen   uint64 // bumped on every arm and cancel; stale timers compare against it
}

// NewDelayedWork wraps fn as a delayable job.
func NewDelayedWork(fn func()) *DelayedWork {
	return &DelayedWork{Work: Work{fn: fn}}
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Depth     int   `json:"depth"`
	Queued    int64 `json:"queued"`
	Run       int64 `json:"run"`
	Canceled  int64 `json:"canceled"`
	Coalesced int64 `json:"coalesced"`
	Panics    int64 `json:"panics"`
}

// ─── Queue ──────────────────────────────────────────────────────────────────

// Queue runs Work items on a single dedicated worker goroutine.
type Queue struct {
	name string
	log  logr.Logger

	mu      sync.Mutex
	more    *sync.Cond // new item or close
	idle    *sync.Cond // a job finished
	items   []*Work
	running *Work
	closed  bool
	done    chan struct{}

	totalQueued    atomic.Int64
	totalRun       atomic.Int64
	totalCanceled  atomic.Int64
	totalCoalesced atomic.Int64
	totalPanics    atomic.Int64
}

// New starts a queue and its worker. It fails only when StrictPriority is
// set and the worker could not be given the requested priority.
func New(name string, opts Options) (*Queue, error) {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	q := &Queue{
		name: name,
		log:  opts.Logger.WithValues("queue", name),
		done: make(chan struct{}),
	}
	q.more = sync.NewCond(&q.mu)
	q.idle = sync.NewCond(&q.mu)

	ready := make(chan error, 1)
	go q.worker(opts, ready)
	if err := <-ready; err != nil {
		return nil, fmt.Errorf("start worker %s: %w", name, err)
	}
	return q, nil
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

func (q *Queue) worker(opts Options, ready chan<- error) {
	defer close(q.done)

	if opts.HighPriority {
		// The thread stays locked for the worker's lifetime so the nice
		// value keeps applying to it.
		runtime.LockOSThread()
		if err := raisePriority(opts.Nice); err != nil {
			if opts.StrictPriority {
				ready <- err
				return
			}
			q.log.Info("worker running at default priority", "reason", err.Error())
		}
	}
	ready <- nil

	for {
		w, ok := q.next()
		if !ok {
			return
		}
		q.run(w)
	}
}

// next blocks for the next eligible item. Returns false once the queue is
// closed and drained.
func (q *Queue) next() (*Work, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.more.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}

	w := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	w.pending = false
	q.running = w
	return w, true
}

func (q *Queue) run(w *Work) {
	defer func() {
		if r := recover(); r != nil {
			q.totalPanics.Add(1)
			q.log.Error(fmt.Errorf("%v", r), "work panicked")
		}
		q.mu.Lock()
		q.running = nil
		q.totalRun.Add(1)
		q.idle.Broadcast()
		q.mu.Unlock()
	}()
	w.fn()
}

// ─── Enqueue ────────────────────────────────────────────────────────────────

// Queue makes w eligible immediately. Returns false if w was already
// pending (the calls coalesce) or the queue is closed.
func (q *Queue) Queue(w *Work) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if w.pending {
		q.totalCoalesced.Add(1)
		return false
	}
	w.pending = true
	q.insertLocked(w)
	return true
}

// QueueDelayed arms dw to run after delay unless it is already pending.
func (q *Queue) QueueDelayed(dw *DelayedWork, delay time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if dw.pending {
		q.totalCoalesced.Add(1)
		return false
	}
	dw.pending = true
	q.armLocked(dw, delay)
	return true
}

// ModDelayed cancels any pending instance of dw and arms it again to run
// after delay. A zero delay queues it immediately. Returns whether an
// instance was pending before the call.
func (q *Queue) ModDelayed(dw *DelayedWork, delay time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	wasPending := q.cancelDelayedLocked(dw)
	dw.pending = true
	q.armLocked(dw, delay)
	return wasPending
}

func (q *Queue) insertLocked(w *Work) {
	q.items = append(q.items, w)
	q.totalQueued.Add(1)
	q.more.Signal()
}

func (q *Queue) armLocked(dw *DelayedWork, delay time.Duration) {
	if delay <= 0 {
		q.insertLocked(&dw.Work)
		return
	}
	dw.gen++
	gen := dw.gen
	dw.timer = time.AfterFunc(delay, func() { q.fire(dw, gen) })
}

// fire moves an expired delayed item onto the run list. A timer whose
// generation no longer matches was canceled or re-armed after it started.
func (q *Queue) fire(dw *DelayedWork, gen uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if dw.gen != gen || dw.timer == nil {
		return
	}
	dw.timer = nil
	if q.closed {
		dw.pending = false
		return
	}
	q.insertLocked(&dw.Work)
}

// ─── Cancel ─────────────────────────────────────────────────────────────────

// CancelSync cancels a pending w and waits for a running instance of w to
// finish. Returns true only if a pending instance was removed, in which
// case it is guaranteed not to run. Must not be called from w itself.
func (q *Queue) CancelSync(w *Work) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	canceled := q.cancelLocked(w)
	for q.running == w {
		q.idle.Wait()
	}
	return canceled
}

// CancelDelayedSync is CancelSync for delayed work: it also disarms a
// timer that has not fired yet.
func (q *Queue) CancelDelayedSync(dw *DelayedWork) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	canceled := q.cancelDelayedLocked(dw)
	for q.running == &dw.Work {
		q.idle.Wait()
	}
	return canceled
}

// WaitRunning waits for a running instance of w to finish. A pending w
// stays queued. Must not be called from w itself.
func (q *Queue) WaitRunning(w *Work) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.running == w {
		q.idle.Wait()
	}
}

func (q *Queue) cancelLocked(w *Work) bool {
	if !w.pending {
		return false
	}
	q.removeLocked(w)
	w.pending = false
	q.totalCanceled.Add(1)
	return true
}

func (q *Queue) cancelDelayedLocked(dw *DelayedWork) bool {
	if !dw.pending {
		return false
	}
	if dw.timer != nil {
		dw.timer.Stop()
		dw.timer = nil
		dw.gen++
	} else {
		q.removeLocked(&dw.Work)
	}
	dw.pending = false
	q.totalCanceled.Add(1)
	return true
}

func (q *Queue) removeLocked(w *Work) {
	for i, item := range q.items {
		if item == w {
			copy(q.items[i:], q.items[i+1:])
			q.items[len(q.items)-1] = nil
			q.items = q.items[:len(q.items)-1]
			return
		}
	}
}

// ─── Inspection & Lifecycle ─────────────────────────────────────────────────

// Pending reports whether w is waiting to run (queued or armed).
func (q *Queue) Pending(w *Work) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return w.pending
}

// Flush blocks until every item queued before the call has run.
// Armed timers are not waited for. Must not be called from a job.
func (q *Queue) Flush() {
	done := make(chan struct{})
	if !q.Queue(NewWork(func() { close(done) })) {
		return
	}
	<-done
}

// Alive reports whether the worker is still running.
func (q *Queue) Alive() bool {
	select {
	case <-q.done:
		return false
	default:
		return true
	}
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	depth := len(q.items)
	q.mu.Unlock()

	return Stats{
		Depth:     depth,
		Queued:    q.totalQueued.Load(),
		Run:       q.totalRun.Load(),
		Canceled:  q.totalCanceled.Load(),
		Coalesced: q.totalCoalesced.Load(),
		Panics:    q.totalPanics.Load(),
	}
}

// Close stops accepting work, runs what is already queued, drops armed
// timers and waits for the worker to exit. Must not be called from a job.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.more.Broadcast()
	}
	q.mu.Unlock()
	<-q.done
}
