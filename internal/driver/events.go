package driver

import (
	"fmt"

	"github.com/jbweber/vmux/internal/backend"
	"github.com/jbweber/vmux/internal/events"
)

// watching reports whether an event source is active. Callers hold c.mu.
func (c *Conn) watching() bool {
	if c.hub == nil {
		return false
	}
	w, ok := c.backends[backend.Watch].(backend.Watcher)
	return ok && w.Watching()
}

// DomainEventRegister subscribes h to lifecycle events of every domain.
func (c *Conn) DomainEventRegister(h events.Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.watching() {
		return fmt.Errorf("%w: no event source is active", backend.ErrUnsupported)
	}
	return c.hub.Register(h)
}

// DomainEventDeregister removes a subscription made with DomainEventRegister.
func (c *Conn) DomainEventDeregister(h events.Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.watching() {
		return fmt.Errorf("%w: no event source is active", backend.ErrUnsupported)
	}
	return c.hub.Deregister(h)
}

// DomainEventRegisterAny subscribes fn to events of class, for one domain
// or, when dom is nil, all of them. It returns the subscription id.
func (c *Conn) DomainEventRegisterAny(dom *backend.Domain, class backend.EventClass, fn events.Callback) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.watching() {
		return -1, fmt.Errorf("%w: no event source is active", backend.ErrUnsupported)
	}
	return c.hub.RegisterAny(dom, class, fn)
}

// DomainEventDeregisterAny removes the subscription with the given id.
func (c *Conn) DomainEventDeregisterAny(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.watching() {
		return fmt.Errorf("%w: no event source is active", backend.ErrUnsupported)
	}
	return c.hub.DeregisterAny(id)
}

// Queue implements backend.EventSink. It must be called without c.mu held:
// the event is queued and matched under the lock, and subscribers run after
// it is released.
func (c *Conn) Queue(ev backend.Event) {
	c.mu.Lock()
	if c.hub == nil {
		c.mu.Unlock()
		return
	}
	c.hub.Queue(ev)
	deliveries := c.hub.Drain()
	c.mu.Unlock()

	c.log.WithField("domain", ev.Domain.Name).WithField("event", ev.Type).Debug("Dispatching domain event")
	for _, d := range deliveries {
		d.Deliver()
	}
}
