package driver

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/jbweber/vmux/internal/backend"
	"github.com/jbweber/vmux/internal/config"
	"github.com/jbweber/vmux/internal/events"
	"github.com/jbweber/vmux/internal/logging"
	"github.com/jbweber/vmux/internal/metrics"
)

// Scheme is the URI scheme served by this driver.
const Scheme = "vmux"

// activationOrder is the fixed order in which adapters are opened and
// consulted. It is backend ID order.
var activationOrder = []backend.ID{
	backend.Hypervisor,
	backend.Daemon,
	backend.FileStore,
	backend.Watch,
}

// Driver opens connections. It is created once per process.
type Driver struct {
	cfg        *config.Config
	privileged bool
	registry   Registry
	metrics    *metrics.Recorder
	log        *logrus.Entry
}

// Option customises a Driver.
type Option func(*Driver)

// WithRegistry replaces the built-in adapters.
func WithRegistry(r Registry) Option {
	return func(d *Driver) {
		d.registry = r
	}
}

// WithMetrics records routing outcomes on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(d *Driver) {
		d.metrics = m
	}
}

// New creates the factory. privileged must reflect whether the process is
// the privileged management process; unprivileged drivers decline every
// Open.
func New(cfg *config.Config, privileged bool, opts ...Option) *Driver {
	if cfg == nil {
		cfg = config.Default()
	}
	d := &Driver{
		cfg:        cfg,
		privileged: privileged,
		log:        logging.WithField("component", "driver"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.registry == nil {
		d.registry = DefaultRegistry(cfg)
	}
	return d
}

// Open validates uri and activates the adapters. An empty uri looks for a
// local hypervisor. Declined opens return backend.ErrDeclined; failed
// activations return an error wrapping backend.ErrOpenFailed.
func (d *Driver) Open(ctx context.Context, uri string) (*Conn, error) {
	conn, err := d.open(ctx, uri)
	d.metrics.Open(err)
	return conn, err
}

func (d *Driver) open(ctx context.Context, uri string) (*Conn, error) {
	if !d.privileged {
		return nil, fmt.Errorf("%w: not running as the privileged management process", backend.ErrDeclined)
	}

	u, err := d.acceptURI(uri)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		uri:             u,
		cfg:             d.cfg,
		metrics:         d.metrics,
		log:             d.log.WithField("uri", u.String()),
		backends:        make(map[backend.ID]backend.Backend),
		protocolVersion: backend.ConfigVersionUnknown,
		hub:             events.NewHub(),
		persistentDir:   d.cfg.PersistentConfigDir,
	}

	if err := d.activate(ctx, c); err != nil {
		if uerr := c.stack.unwind(); uerr != nil {
			c.log.WithError(uerr).Warn("Errors while unwinding a failed open")
		}
		c.backends = nil
		c.order = nil
		c.hub = nil
		return nil, fmt.Errorf("%w: %v", backend.ErrOpenFailed, err)
	}

	c.log.WithField("backends", c.Activated()).Info("Connection opened")
	return c, nil
}

// acceptURI applies the addressing rules. Foreign schemes are declined. A
// path is an error whether or not a host is given. Remote hosts are declined
// so another driver can take them.
func (d *Driver) acceptURI(raw string) (*url.URL, error) {
	if raw == "" {
		if _, err := os.Stat(d.cfg.Hypervisor.Device); err != nil {
			return nil, fmt.Errorf("%w: no local hypervisor at %s", backend.ErrDeclined, d.cfg.Hypervisor.Device)
		}
		raw = Scheme + ":///"
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrDeclined, err)
	}
	if !strings.EqualFold(u.Scheme, Scheme) {
		return nil, fmt.Errorf("%w: scheme %q is not %s", backend.ErrDeclined, u.Scheme, Scheme)
	}
	if u.Path != "" && u.Path != "/" {
		return nil, fmt.Errorf("%w: unexpected path %q in URI, try %s:///", backend.ErrInvalidArgument, u.Path, Scheme)
	}
	if u.Host != "" {
		return nil, fmt.Errorf("%w: remote host %q", backend.ErrDeclined, u.Host)
	}
	return u, nil
}

// activate runs the open sequence. Every acquired resource is on c.stack
// when it returns an error.
func (d *Driver) activate(ctx context.Context, c *Conn) error {
	for _, id := range activationOrder {
		desc, ok := d.registry.Lookup(id)
		if !ok {
			if id == backend.Hypervisor || id == backend.Daemon {
				return fmt.Errorf("no %s backend registered", id)
			}
			continue
		}

		if id == backend.FileStore && c.protocolVersion > backend.ConfigVersionLegacyMax {
			c.log.WithField("version", c.protocolVersion).Debug("Skipping file store for managed config version")
			continue
		}

		if err := c.activateBackend(ctx, desc); err != nil {
			return err
		}
	}

	c.snapshotTopology(ctx)

	c.saveDir = d.cfg.SaveDir
	if err := os.MkdirAll(c.saveDir, 0o755); err != nil {
		return fmt.Errorf("failed to create managed save directory %s: %w", c.saveDir, err)
	}
	return nil
}

func (c *Conn) activateBackend(ctx context.Context, desc Descriptor) error {
	b := desc.New()
	log := c.log.WithField("backend", desc.ID)
	log.Debug("Opening backend")

	err := b.Open(ctx, backend.OpenParams{
		URI:             c.uri,
		ProtocolVersion: c.protocolVersion,
		Events:          c,
	})
	c.metrics.Activation(desc.ID, err)
	if err != nil {
		log.WithError(err).Warn("Backend failed to open")
		return fmt.Errorf("failed to open %s backend: %w", desc.ID, err)
	}

	c.stack.push(desc.ID, b.Close)
	c.backends[desc.ID] = b
	c.order = append(c.order, desc.ID)

	if vr, ok := b.(backend.VersionReporter); ok && c.protocolVersion == backend.ConfigVersionUnknown {
		c.protocolVersion = vr.ConfigVersion()
		log.WithField("version", c.protocolVersion).Debug("Learned config version")
	}
	return nil
}

// snapshotTopology records the node cell and cpu counts. Failure leaves
// both at zero, which disables the cpu usage resolver.
func (c *Conn) snapshotTopology(ctx context.Context) {
	info, err := c.NodeGetInfo(ctx)
	if err != nil {
		c.log.WithError(err).Debug("No node topology available")
		return
	}
	c.nodeCells = info.Nodes
	c.nodeCPUs = info.CPUs
}

// acquisitions is a stack of release functions for activated adapters.
type acquisitions struct {
	items []acquired
}

type acquired struct {
	id      backend.ID
	release func() error
}

func (a *acquisitions) push(id backend.ID, release func() error) {
	a.items = append(a.items, acquired{id: id, release: release})
}

func (a *acquisitions) len() int {
	return len(a.items)
}

// unwind releases everything in reverse order and empties the stack.
func (a *acquisitions) unwind() error {
	var result *multierror.Error
	for i := len(a.items) - 1; i >= 0; i-- {
		it := a.items[i]
		if err := it.release(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close %s backend: %w", it.id, err))
		}
	}
	a.items = nil
	return result.ErrorOrNil()
}
