// Package display delivers display power-state transitions to prioritized
// subscribers. Transitions come from a sysfs backlight poller or are
// injected through the control API.
package display

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/tutu-network/wakeboost/internal/domain"
	"github.com/tutu-network/wakeboost/internal/infra/metrics"
	"github.com/tutu-network/wakeboost/internal/infra/notifier"
)

// Chain is the display notification chain. It implements
// domain.DisplayNotifier.
type Chain struct {
	chain notifier.Chain[domain.DisplayNotifierFunc]
	log   logr.Logger

	// mu keeps the early and late halves of concurrent transitions from
	// interleaving.
	mu   sync.Mutex
	last domain.BlankLevel
	seen bool
}

// NewChain creates an empty display chain.
func NewChain(log logr.Logger) *Chain {
	return &Chain{log: log.WithName("display")}
}

// Register subscribes fn. Higher priority is notified first.
func (c *Chain) Register(name string, priority int, fn domain.DisplayNotifierFunc) error {
	if err := c.chain.Register(name, priority, fn); err != nil {
		return fmt.Errorf("register display notifier %s: %w", name, err)
	}
	return nil
}

// Unregister removes a subscriber.
func (c *Chain) Unregister(name string) error {
	if err := c.chain.Unregister(name); err != nil {
		return fmt.Errorf("unregister display notifier %s: %w", name, err)
	}
	return nil
}

// Notify delivers a single event to every subscriber in priority order.
func (c *Chain) Notify(ev domain.DisplayEvent) {
	metrics.DisplayEvents.WithLabelValues(ev.Stage.String(), ev.Blank.String()).Inc()
	for _, e := range c.chain.Entries() {
		e.Fn(ev)
	}
}

// Transition announces a change to level b: an early event, then a late
// one, the way a display driver brackets applying the new state.
func (c *Chain) Transition(b domain.BlankLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.log.V(1).Info("display transition", "state", b.String())
	c.Notify(domain.DisplayEvent{Stage: domain.StageEarly, Blank: b})
	c.last, c.seen = b, true
	c.Notify(domain.DisplayEvent{Stage: domain.StageLate, Blank: b})
}

// Last returns the most recent transition target, if any.
func (c *Chain) Last() (domain.BlankLevel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.seen
}
