package backend

import (
	"context"
	"fmt"
	"net/url"
)

// ID identifies a backend adapter. The numeric order is the registry order
// used by fallback chains.
type ID int

const (
	// Hypervisor talks to running guests directly.
	Hypervisor ID = iota
	// Daemon talks to the management daemon.
	Daemon
	// FileStore is the legacy directory of domain configuration files.
	FileStore
	// Watch observes the file store and emits lifecycle events.
	Watch
)

// String returns the lower-case adapter name used in logs and metrics.
func (id ID) String() string {
	switch id {
	case Hypervisor:
		return "hypervisor"
	case Daemon:
		return "daemon"
	case FileStore:
		return "filestore"
	case Watch:
		return "watch"
	default:
		return fmt.Sprintf("backend(%d)", int(id))
	}
}

// OpenParams carries what an adapter needs to activate.
type OpenParams struct {
	// URI is the accepted connection URI.
	URI *url.URL

	// ProtocolVersion is the config version learned so far, or
	// ConfigVersionUnknown when the daemon has not been opened yet.
	ProtocolVersion int

	// Events receives lifecycle events observed by the adapter. It is never
	// nil for adapters opened by the facade.
	Events EventSink
}

// Backend is the mandatory part of every adapter.
type Backend interface {
	// ID reports which registry slot the adapter fills.
	ID() ID

	// Open activates the adapter. A failed Open must leave nothing to close.
	Open(ctx context.Context, params OpenParams) error

	// Close releases everything Open acquired.
	Close() error
}

// VersionReporter is implemented by the adapter that learns the protocol
// version during Open.
type VersionReporter interface {
	ConfigVersion() int
}

// Watcher is implemented by adapters that can source lifecycle events.
type Watcher interface {
	// Watching reports whether the underlying watch is active.
	Watching() bool
}
