// Package notifier provides a prioritized callback chain. Dispatch reads an
// immutable snapshot, so callers on the hot path never take a lock;
// registration copies the list under a mutex.
package notifier

import (
	"errors"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	ErrExists   = errors.New("notifier already registered")
	ErrNotFound = errors.New("notifier not registered")
	ErrNilFunc  = errors.New("notifier function is nil")
)

// Entry is one registered callback.
type Entry[F any] struct {
	Name     string
	Priority int
	Fn       F
}

// Chain holds callbacks ordered by descending priority. Entries with equal
// priority keep registration order.
type Chain[F any] struct {
	mu      sync.Mutex
	entries atomic.Pointer[[]Entry[F]]
}

// Register adds fn under name. Higher priority is called first.
func (c *Chain[F]) Register(name string, priority int, fn F) error {
	if v := reflect.ValueOf(fn); !v.IsValid() || (v.Kind() == reflect.Func && v.IsNil()) {
		return ErrNilFunc
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.snapshot()
	for _, e := range cur {
		if e.Name == name {
			return ErrExists
		}
	}

	next := make([]Entry[F], len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, Entry[F]{Name: name, Priority: priority, Fn: fn})
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].Priority > next[j].Priority
	})
	c.entries.Store(&next)
	return nil
}

// Unregister removes the callback registered under name.
func (c *Chain[F]) Unregister(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.snapshot()
	for i, e := range cur {
		if e.Name != name {
			continue
		}
		next := make([]Entry[F], 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		c.entries.Store(&next)
		return nil
	}
	return ErrNotFound
}

// Entries returns the current callbacks in call order. The returned slice
// must not be modified.
func (c *Chain[F]) Entries() []Entry[F] {
	return c.snapshot()
}

// Len returns the number of registered callbacks.
func (c *Chain[F]) Len() int {
	return len(c.snapshot())
}

func (c *Chain[F]) snapshot() []Entry[F] {
	if p := c.entries.Load(); p != nil {
		return *p
	}
	return nil
}
