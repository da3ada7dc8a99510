package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// Work Queue Tests
// ═══════════════════════════════════════════════════════════════════════════

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := New("test_wq", Options{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(q.Close)
	return q
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// ─── Enqueue / Ordering ─────────────────────────────────────────────────────

func TestQueue_RunsFIFO(t *testing.T) {
	q := newTestQueue(t)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		q.Queue(NewWork(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	q.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 5 {
		t.Fatalf("ran %d jobs, want 5", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Errorf("order[%d] = %d, want %d", i, got, i)
		}
	}
}

func TestQueue_PendingWorkCoalesces(t *testing.T) {
	q := newTestQueue(t)

	gate := make(chan struct{})
	q.Queue(NewWork(func() { <-gate })) // hold the worker

	var runs atomic.Int32
	w := NewWork(func() { runs.Add(1) })
	if !q.Queue(w) {
		t.Fatal("first Queue() = false, want true")
	}
	if q.Queue(w) {
		t.Error("second Queue() of pending work = true, want false")
	}
	if !q.Pending(w) {
		t.Error("Pending() = false while queued")
	}

	close(gate)
	q.Flush()

	if got := runs.Load(); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
	if q.Pending(w) {
		t.Error("Pending() = true after run")
	}
	if s := q.Stats(); s.Coalesced != 1 {
		t.Errorf("Stats().Coalesced = %d, want 1", s.Coalesced)
	}
}

func TestQueue_RequeueWhileRunning(t *testing.T) {
	q := newTestQueue(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32
	var w *Work
	w = NewWork(func() {
		if runs.Add(1) == 1 {
			close(started)
			<-release
		}
	})

	q.Queue(w)
	waitFor(t, started, "first run")
	if !q.Queue(w) {
		t.Error("Queue() while running = false, want true")
	}
	close(release)
	q.Flush()

	if got := runs.Load(); got != 2 {
		t.Errorf("runs = %d, want 2", got)
	}
}

// ─── Delayed Work ───────────────────────────────────────────────────────────

func TestQueue_DelayedRunsAfterDelay(t *testing.T) {
	q := newTestQueue(t)

	ran := make(chan struct{})
	start := time.Now()
	dw := NewDelayedWork(func() { close(ran) })
	if !q.QueueDelayed(dw, 50*time.Millisecond) {
		t.Fatal("QueueDelayed() = false")
	}
	waitFor(t, ran, "delayed work")

	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("delayed work ran after %v, want >= 50ms", elapsed)
	}
}

func TestQueue_QueueDelayedDoesNotRearm(t *testing.T) {
	q := newTestQueue(t)

	dw := NewDelayedWork(func() {})
	q.QueueDelayed(dw, time.Hour)
	if q.QueueDelayed(dw, time.Millisecond) {
		t.Error("QueueDelayed() on pending work = true, want false")
	}
	if !q.CancelDelayedSync(dw) {
		t.Error("CancelDelayedSync() = false, want true")
	}
}

func TestQueue_ModDelayedRestartsTimer(t *testing.T) {
	q := newTestQueue(t)

	var runs atomic.Int32
	dw := NewDelayedWork(func() { runs.Add(1) })

	if q.ModDelayed(dw, 40*time.Millisecond) {
		t.Error("first ModDelayed() reported pending instance")
	}
	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	if !q.ModDelayed(dw, 80*time.Millisecond) {
		t.Error("second ModDelayed() = false, want true (was pending)")
	}

	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got != 0 {
		t.Fatalf("runs = %d before re-armed deadline, want 0", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("re-armed work ran after %v, want >= 80ms", elapsed)
	}
	time.Sleep(60 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Errorf("runs = %d, want exactly 1", got)
	}
}

func TestQueue_ModDelayedZeroQueuesNow(t *testing.T) {
	q := newTestQueue(t)

	ran := make(chan struct{})
	dw := NewDelayedWork(func() { close(ran) })
	q.ModDelayed(dw, time.Hour)
	if !q.ModDelayed(dw, 0) {
		t.Error("ModDelayed(0) = false, want true")
	}
	waitFor(t, ran, "fast-forwarded work")
}

// ─── Cancel ─────────────────────────────────────────────────────────────────

func TestQueue_CancelDelayedSync(t *testing.T) {
	q := newTestQueue(t)

	var runs atomic.Int32
	dw := NewDelayedWork(func() { runs.Add(1) })
	q.QueueDelayed(dw, 30*time.Millisecond)

	if !q.CancelDelayedSync(dw) {
		t.Fatal("CancelDelayedSync() = false, want true")
	}
	time.Sleep(60 * time.Millisecond)
	q.Flush()
	if got := runs.Load(); got != 0 {
		t.Errorf("canceled work ran %d times", got)
	}
}

func TestQueue_CancelNothingPending(t *testing.T) {
	q := newTestQueue(t)

	dw := NewDelayedWork(func() {})
	if q.CancelDelayedSync(dw) {
		t.Error("CancelDelayedSync() on idle work = true, want false")
	}

	q.ModDelayed(dw, 0)
	q.Flush()
	if q.CancelDelayedSync(dw) {
		t.Error("CancelDelayedSync() after run = true, want false")
	}
	if q.CancelDelayedSync(dw) {
		t.Error("repeated CancelDelayedSync() = true, want false")
	}
	if s := q.Stats(); s.Canceled != 0 {
		t.Errorf("Stats().Canceled = %d, want 0", s.Canceled)
	}
}

func TestQueue_CancelQueuedImmediateWork(t *testing.T) {
	q := newTestQueue(t)

	gate := make(chan struct{})
	q.Queue(NewWork(func() { <-gate }))

	var runs atomic.Int32
	w := NewWork(func() { runs.Add(1) })
	q.Queue(w)
	if !q.CancelSync(w) {
		t.Error("CancelSync() = false, want true")
	}
	close(gate)
	q.Flush()
	if got := runs.Load(); got != 0 {
		t.Errorf("canceled work ran %d times", got)
	}
}

func TestQueue_CancelSyncWaitsForRunning(t *testing.T) {
	q := newTestQueue(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	dw := NewDelayedWork(func() {
		close(started)
		<-release
		finished.Store(true)
	})
	q.ModDelayed(dw, 0)
	waitFor(t, started, "work start")

	result := make(chan bool)
	go func() { result <- q.CancelDelayedSync(dw) }()

	select {
	case <-result:
		t.Fatal("CancelDelayedSync() returned while work was running")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	select {
	case canceled := <-result:
		if canceled {
			t.Error("CancelDelayedSync() on running work = true, want false")
		}
		if !finished.Load() {
			t.Error("CancelDelayedSync() returned before work finished")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("CancelDelayedSync() never returned")
	}
}

func TestQueue_WaitRunningKeepsPendingWork(t *testing.T) {
	q := newTestQueue(t)

	gate := make(chan struct{})
	q.Queue(NewWork(func() { <-gate }))

	var runs atomic.Int32
	w := NewWork(func() { runs.Add(1) })
	q.Queue(w)

	// w is queued behind the blocked job, not running.
	q.WaitRunning(w)
	if !q.Pending(w) {
		t.Fatal("WaitRunning() removed pending work")
	}

	close(gate)
	q.Flush()
	if got := runs.Load(); got != 1 {
		t.Errorf("work ran %d times, want 1", got)
	}
}

func TestQueue_WaitRunningWaitsForRunning(t *testing.T) {
	q := newTestQueue(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	w := NewWork(func() {
		close(started)
		<-release
		finished.Store(true)
	})
	q.Queue(w)
	waitFor(t, started, "work start")

	done := make(chan struct{})
	go func() {
		q.WaitRunning(w)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("WaitRunning() returned while work was running")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	waitFor(t, done, "WaitRunning return")
	if !finished.Load() {
		t.Error("WaitRunning() returned before work finished")
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

func TestQueue_PanicIsRecovered(t *testing.T) {
	q := newTestQueue(t)

	q.Queue(NewWork(func() { panic("boom") }))
	ran := make(chan struct{})
	q.Queue(NewWork(func() { close(ran) }))
	waitFor(t, ran, "work after panic")

	if s := q.Stats(); s.Panics != 1 {
		t.Errorf("Stats().Panics = %d, want 1", s.Panics)
	}
	if !q.Alive() {
		t.Error("worker died after panic")
	}
}

func TestQueue_CloseDrainsAndDropsTimers(t *testing.T) {
	q, err := New("close_wq", Options{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	var queuedRan, timerRan atomic.Bool
	gate := make(chan struct{})
	q.Queue(NewWork(func() { <-gate }))
	q.Queue(NewWork(func() { queuedRan.Store(true) }))
	dw := NewDelayedWork(func() { timerRan.Store(true) })
	q.QueueDelayed(dw, 20*time.Millisecond)

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()
	time.Sleep(10 * time.Millisecond)
	close(gate)
	waitFor(t, closed, "Close")

	time.Sleep(40 * time.Millisecond)
	if !queuedRan.Load() {
		t.Error("queued work did not run before Close returned")
	}
	if timerRan.Load() {
		t.Error("armed timer ran after Close")
	}
	if q.Alive() {
		t.Error("Alive() = true after Close")
	}
	if q.Queue(NewWork(func() {})) {
		t.Error("Queue() after Close = true, want false")
	}
	q.Flush() // must not block on a closed queue
}

func TestNew_StrictPriorityWithoutPrivilege(t *testing.T) {
	// Raising priority needs CAP_SYS_NICE; only assert the failure path
	// maps to an error when the environment actually refuses it.
	q, err := New("strict_wq", Options{HighPriority: true, Nice: -10, StrictPriority: true})
	if err == nil {
		q.Close()
		t.Skip("environment allows negative nice values")
	}
	if q != nil {
		t.Error("New() returned a queue together with an error")
	}
}
