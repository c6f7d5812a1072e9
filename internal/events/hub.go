// Package events keeps the subscriptions to domain lifecycle events of one
// connection and matches queued events against them.
//
// The Hub has no lock of its own. Every method must be called with the
// owning connection's lock held; the connection is the single lock owner.
// Delivery is split from queueing so the owner can release its lock before
// running subscriber code: Queue and Drain run under the lock, Deliver runs
// after it has been released.
package events

import (
	"errors"
	"fmt"

	"github.com/jbweber/vmux/internal/backend"
)

// ErrNoSubscription is returned when deregistering something that was never
// registered.
var ErrNoSubscription = errors.New("no matching event subscription")

// Handler is the legacy subscription form: lifecycle events for every
// domain, deregistered by handler identity. Implementations must be
// comparable, typically a pointer.
type Handler interface {
	HandleEvent(ev backend.Event)
}

// Callback is the generic subscription form.
type Callback func(ev backend.Event)

// HandlerFunc wraps a Callback for the legacy form. Register a pointer to it;
// the pointer is the identity used by Deregister.
type HandlerFunc struct {
	Fn Callback
}

// HandleEvent calls h.Fn.
func (h *HandlerFunc) HandleEvent(ev backend.Event) {
	h.Fn(ev)
}

type subscription struct {
	id      int
	class   backend.EventClass
	domain  *backend.Domain
	handler Handler
	fn      Callback
}

func (s *subscription) matches(ev backend.Event) bool {
	if s.class != ev.Class {
		return false
	}
	if s.domain != nil && s.domain.UUID != ev.Domain.UUID {
		return false
	}
	return true
}

func (s *subscription) call(ev backend.Event) {
	if s.handler != nil {
		s.handler.HandleEvent(ev)
		return
	}
	s.fn(ev)
}

// Hub holds subscriptions in registration order and a queue of pending
// events.
type Hub struct {
	nextID int
	subs   []*subscription
	queue  []backend.Event
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Register adds a legacy lifecycle handler. Registering the same handler twice
// is an error.
func (h *Hub) Register(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("%w: nil event handler", backend.ErrInvalidArgument)
	}
	for _, s := range h.subs {
		if s.handler == handler {
			return fmt.Errorf("%w: event handler already registered", backend.ErrInvalidArgument)
		}
	}
	h.add(&subscription{class: backend.EventClassLifecycle, handler: handler})
	return nil
}

// Deregister removes a legacy lifecycle handler by identity.
func (h *Hub) Deregister(handler Handler) error {
	for i, s := range h.subs {
		if s.handler != nil && s.handler == handler {
			h.remove(i)
			return nil
		}
	}
	return ErrNoSubscription
}

// RegisterAny adds a callback for class, optionally limited to one domain,
// and returns its subscription id.
func (h *Hub) RegisterAny(dom *backend.Domain, class backend.EventClass, fn Callback) (int, error) {
	if fn == nil {
		return -1, fmt.Errorf("%w: nil event callback", backend.ErrInvalidArgument)
	}
	s := &subscription{class: class, fn: fn}
	if dom != nil {
		d := *dom
		s.domain = &d
	}
	h.add(s)
	return s.id, nil
}

// DeregisterAny removes the subscription with the given id.
func (h *Hub) DeregisterAny(id int) error {
	for i, s := range h.subs {
		if s.fn != nil && s.id == id {
			h.remove(i)
			return nil
		}
	}
	return ErrNoSubscription
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	return len(h.subs)
}

// Queue appends ev to the pending queue.
func (h *Hub) Queue(ev backend.Event) {
	h.queue = append(h.queue, ev)
}

// Pending returns the number of queued events.
func (h *Hub) Pending() int {
	return len(h.queue)
}

// Delivery pairs one event with the subscribers that matched it at drain
// time.
type Delivery struct {
	Event backend.Event
	subs  []*subscription
}

// Deliver invokes every matched subscriber once, in registration order.
func (d Delivery) Deliver() {
	for _, s := range d.subs {
		s.call(d.Event)
	}
}

// Subscribers returns how many subscribers matched the event.
func (d Delivery) Subscribers() int {
	return len(d.subs)
}

// Drain empties the queue and returns one Delivery per queued event, in
// queue order.
func (h *Hub) Drain() []Delivery {
	if len(h.queue) == 0 {
		return nil
	}
	out := make([]Delivery, 0, len(h.queue))
	for _, ev := range h.queue {
		d := Delivery{Event: ev}
		for _, s := range h.subs {
			if s.matches(ev) {
				d.subs = append(d.subs, s)
			}
		}
		out = append(out, d)
	}
	h.queue = nil
	return out
}

func (h *Hub) add(s *subscription) {
	s.id = h.nextID
	h.nextID++
	h.subs = append(h.subs, s)
}

func (h *Hub) remove(i int) {
	h.subs = append(h.subs[:i], h.subs[i+1:]...)
}
