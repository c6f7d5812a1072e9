package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jbweber/vmux/internal/backend"
	"github.com/jbweber/vmux/internal/logging"
)

// Error codes reported by the daemon, from virErrorNumber.
const (
	errNoSupport            uint32 = 3
	errNoDomain             uint32 = 42
	errOperationInvalid     uint32 = 55
	errArgumentUnsupported  uint32 = 74
	errOperationUnsupported uint32 = 84
)

// Options configures the daemon adapter.
type Options struct {
	// Socket is the daemon's UNIX socket. Empty means DefaultSocket.
	Socket string

	// Timeout bounds the dial. Zero means DefaultTimeout.
	Timeout time.Duration

	// ConfigVersion pins the config version instead of deriving it from the
	// daemon's library version. Zero means derive.
	ConfigVersion int
}

// Daemon is the adapter for the management daemon.
type Daemon struct {
	opts    Options
	connect func(ctx context.Context) (libvirtClient, error)
	log     *logrus.Entry

	client  libvirtClient
	version int
}

// New creates an unopened daemon adapter.
func New(opts Options) *Daemon {
	d := &Daemon{
		opts:    opts,
		log:     logging.WithField("backend", backend.Daemon.String()),
		version: backend.ConfigVersionUnknown,
	}
	d.connect = func(ctx context.Context) (libvirtClient, error) {
		l, err := dialContext(ctx, opts.Socket, opts.Timeout)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	return d
}

// newWithClient returns an opened adapter around c.
func newWithClient(c libvirtClient, version int) *Daemon {
	return &Daemon{
		log:     logging.WithField("backend", backend.Daemon.String()),
		client:  c,
		version: version,
	}
}

// ID implements backend.Backend.
func (d *Daemon) ID() backend.ID {
	return backend.Daemon
}

// Open connects to the daemon and learns the config version.
func (d *Daemon) Open(ctx context.Context, _ backend.OpenParams) error {
	c, err := d.connect(ctx)
	if err != nil {
		return err
	}

	version := d.opts.ConfigVersion
	if version == 0 {
		lib, err := c.ConnectGetLibVersion()
		if err != nil {
			_ = c.Disconnect()
			return fmt.Errorf("failed to get daemon version: %w", err)
		}
		version = configVersionFor(lib)
	}

	d.client = c
	d.version = version
	d.log.WithField("version", version).Debug("Connected to daemon")
	return nil
}

// Close disconnects from the daemon.
func (d *Daemon) Close() error {
	if d.client == nil {
		return nil
	}
	err := d.client.Disconnect()
	d.client = nil
	if err != nil {
		return fmt.Errorf("failed to disconnect from daemon: %w", err)
	}
	return nil
}

// ConfigVersion implements backend.VersionReporter.
func (d *Daemon) ConfigVersion() int {
	return d.version
}

// Ping checks that the connection is alive.
func (d *Daemon) Ping() error {
	return ping(d.client)
}

// configVersionFor maps a library version (major*1000000+minor*1000+micro)
// to a config version.
func configVersionFor(lib uint64) int {
	switch {
	case lib < 1_000_000:
		return backend.ConfigVersion2
	case lib < 4_000_000:
		return backend.ConfigVersion3
	default:
		return backend.ConfigVersion4
	}
}

func toWire(dom backend.Domain) libvirt.Domain {
	return libvirt.Domain{
		Name: dom.Name,
		UUID: libvirt.UUID(dom.UUID),
		ID:   int32(dom.ID),
	}
}

func fromWire(dom libvirt.Domain) backend.Domain {
	return backend.Domain{
		ID:   int(dom.ID),
		UUID: uuid.UUID(dom.UUID),
		Name: dom.Name,
	}
}

// errorCode extracts the daemon error code from err.
func errorCode(err error) (uint32, bool) {
	var le libvirt.Error
	if errors.As(err, &le) {
		return le.Code, true
	}
	var lp *libvirt.Error
	if errors.As(err, &lp) && lp != nil {
		return lp.Code, true
	}
	return 0, false
}

func isNotFound(err error) bool {
	code, ok := errorCode(err)
	return ok && code == errNoDomain
}

// isUnsupported reports whether the daemon refused the call because it
// cannot perform it, as opposed to failing while performing it.
func isUnsupported(err error) bool {
	code, ok := errorCode(err)
	if !ok {
		return false
	}
	switch code {
	case errNoSupport, errOperationInvalid, errArgumentUnsupported, errOperationUnsupported:
		return true
	}
	return false
}

// result converts a daemon reply into a chain result: refusals decline,
// other errors fail.
func result[T any](v T, err error) backend.Result[T] {
	if err == nil {
		return backend.Ok(v)
	}
	if isUnsupported(err) {
		return backend.Decline[T]()
	}
	return backend.Fail[T](err)
}

func resultErr(err error) backend.Result[backend.Void] {
	return result(backend.Void{}, err)
}
