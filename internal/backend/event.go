package backend

// EventClass groups events for subscription.
type EventClass int

const (
	// EventClassLifecycle covers domain lifecycle transitions.
	EventClassLifecycle EventClass = iota
)

// EventType is the lifecycle transition carried by an Event.
type EventType int

const (
	EventDefined EventType = iota
	EventUndefined
	EventStarted
	EventSuspended
	EventResumed
	EventStopped
)

// String returns the transition name.
func (t EventType) String() string {
	switch t {
	case EventDefined:
		return "defined"
	case EventUndefined:
		return "undefined"
	case EventStarted:
		return "started"
	case EventSuspended:
		return "suspended"
	case EventResumed:
		return "resumed"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event is a domain state transition observed by an adapter.
type Event struct {
	Domain Domain
	Class  EventClass
	Type   EventType
	Detail int
}

// EventSink accepts events from adapters. Implementations take whatever lock
// they need themselves; adapters call Queue without holding any facade lock.
type EventSink interface {
	Queue(ev Event)
}
