package driver

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/vmux/internal/backend"
	"github.com/jbweber/vmux/internal/config"
	"github.com/jbweber/vmux/internal/events"
	"github.com/jbweber/vmux/internal/metrics"
)

// Conn is one open connection. It is safe for concurrent use.
type Conn struct {
	uri     *url.URL
	cfg     *config.Config
	metrics *metrics.Recorder
	log     *logrus.Entry

	// Written during Open, read-only afterwards.
	backends        map[backend.ID]backend.Backend
	order           []backend.ID
	stack           acquisitions
	protocolVersion int
	nodeCells       int
	nodeCPUs        int
	saveDir         string
	persistentDir   string

	mu  sync.Mutex
	hub *events.Hub
}

// Close closes every activated adapter in reverse activation order. Calling
// Close twice is a caller error.
func (c *Conn) Close() error {
	err := c.stack.unwind()

	c.mu.Lock()
	c.hub = nil
	c.mu.Unlock()

	c.backends = nil
	c.order = nil
	c.saveDir = ""

	if err != nil {
		c.log.WithError(err).Warn("Errors while closing connection")
		return err
	}
	c.log.Info("Connection closed")
	return nil
}

// URI returns the accepted connection URI.
func (c *Conn) URI() string {
	return c.uri.String()
}

// Type returns the driver name.
func (c *Conn) Type() string {
	return Scheme
}

// ProtocolVersion returns the daemon config version learned during Open.
func (c *Conn) ProtocolVersion() int {
	return c.protocolVersion
}

// Activated returns the IDs of the open adapters in activation order,
// which is backend ID order.
func (c *Conn) Activated() []backend.ID {
	ids := make([]backend.ID, len(c.order))
	copy(ids, c.order)
	return ids
}

// IsActivated reports whether the adapter id is open on this connection.
func (c *Conn) IsActivated(id backend.ID) bool {
	_, ok := c.backends[id]
	return ok
}

// NodeCPUs returns the cpu count from the topology snapshot.
func (c *Conn) NodeCPUs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodeCPUs
}

// NodeCells returns the NUMA cell count from the topology snapshot.
func (c *Conn) NodeCells() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodeCells
}

// Hostname returns the host name.
func (c *Conn) Hostname() (string, error) {
	name, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	return name, nil
}

// Version returns the hypervisor version.
func (c *Conn) Version(ctx context.Context) (uint64, error) {
	v, err := capability[backend.Versioner](c, backend.Hypervisor)
	if err != nil {
		return 0, err
	}
	return v.Version(ctx)
}

// NodeGetInfo describes the host, asking each adapter in backend ID order.
func (c *Conn) NodeGetInfo(ctx context.Context) (backend.NodeInfo, error) {
	return tryEach(c, "node_get_info", c.forward(), func(n backend.NodeInformer) backend.Result[backend.NodeInfo] {
		return n.NodeInfo(ctx)
	})
}

// NodeGetFreeMemory returns free host memory in bytes.
func (c *Conn) NodeGetFreeMemory(ctx context.Context) (uint64, error) {
	f, err := capability[backend.FreeMemoryReporter](c, backend.Hypervisor)
	if err != nil {
		return 0, err
	}
	return f.FreeMemory(ctx)
}

// ListDomains returns the ids of running domains.
func (c *Conn) ListDomains(ctx context.Context) ([]int, error) {
	l, err := capability[backend.DomainLister](c, backend.Hypervisor)
	if err != nil {
		return nil, err
	}
	return l.ListDomains(ctx)
}

// NumOfDomains returns the number of running domains.
func (c *Conn) NumOfDomains(ctx context.Context) (int, error) {
	ids, err := c.ListDomains(ctx)
	if err != nil {
		return -1, err
	}
	return len(ids), nil
}

// capability returns adapter id as C, or ErrUnsupported when the adapter is
// not open or lacks the capability.
func capability[C any](c *Conn, id backend.ID) (C, error) {
	var zero C
	b, ok := c.backends[id]
	if !ok {
		return zero, fmt.Errorf("%w: %s backend is not active", backend.ErrUnsupported, id)
	}
	impl, ok := any(b).(C)
	if !ok {
		return zero, fmt.Errorf("%w by %s backend", backend.ErrUnsupported, id)
	}
	return impl, nil
}

// managedVersion reports whether the daemon owns inactive domain configs.
func (c *Conn) managedVersion() bool {
	return c.protocolVersion >= backend.ConfigVersionManaged
}

// inactiveOwner is the adapter responsible for inactive domains.
func (c *Conn) inactiveOwner() backend.ID {
	if c.managedVersion() {
		return backend.Daemon
	}
	return backend.FileStore
}

func (c *Conn) observe(op string, id backend.ID, status backend.Status) {
	c.metrics.Call(op, id, status)
	c.log.WithFields(logrus.Fields{
		"op":      op,
		"backend": id,
		"outcome": status,
	}).Debug("Backend call")
}
