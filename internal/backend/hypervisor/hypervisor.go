package hypervisor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jbweber/vmux/internal/backend"
	"github.com/jbweber/vmux/internal/logging"
	"github.com/jbweber/vmux/internal/naming"
)

// Defaults for Options fields left empty.
const (
	DefaultDevice  = "/dev/kvm"
	DefaultQMPDir  = "/run/vmux/monitor"
	DefaultProcDir = "/proc"
	DefaultSysDir  = "/sys"

	monitorTimeout = 10 * time.Second
)

// Options configures the hypervisor adapter.
type Options struct {
	// Device must exist for Open to succeed.
	Device string
	// QMPDir holds the {name}.monitor QMP sockets of running guests.
	QMPDir string
	// ProcDir is the procfs mount used for per-thread statistics.
	ProcDir string
	// SysDir is the sysfs mount used to count NUMA nodes.
	SysDir string
}

// Hypervisor is the adapter for running guests.
type Hypervisor struct {
	opts    Options
	log     *logrus.Entry
	guests  guestSource
	threads threadControl
	dial    func(ctx context.Context, path string) (monitor, error)
}

// New creates an unopened hypervisor adapter.
func New(opts Options) *Hypervisor {
	if opts.Device == "" {
		opts.Device = DefaultDevice
	}
	if opts.QMPDir == "" {
		opts.QMPDir = DefaultQMPDir
	}
	if opts.ProcDir == "" {
		opts.ProcDir = DefaultProcDir
	}
	if opts.SysDir == "" {
		opts.SysDir = DefaultSysDir
	}
	return &Hypervisor{
		opts:    opts,
		log:     logging.WithField("backend", backend.Hypervisor.String()),
		guests:  procScanner{},
		threads: newHostThreads(opts.ProcDir),
		dial:    dialMonitor,
	}
}

// ID implements backend.Backend.
func (h *Hypervisor) ID() backend.ID {
	return backend.Hypervisor
}

// Open checks that the hypervisor device is present.
func (h *Hypervisor) Open(_ context.Context, _ backend.OpenParams) error {
	if _, err := os.Stat(h.opts.Device); err != nil {
		return fmt.Errorf("hypervisor device unavailable: %w", err)
	}
	h.log.WithField("device", h.opts.Device).Debug("Hypervisor available")
	return nil
}

// Close implements backend.Backend. Monitors are opened per call, so there
// is nothing to release.
func (h *Hypervisor) Close() error {
	return nil
}

// findGuest returns the running guest matching match, or false.
func (h *Hypervisor) findGuest(ctx context.Context, match func(guest) bool) (guest, bool, error) {
	guests, err := h.guests.Guests(ctx)
	if err != nil {
		return guest{}, false, err
	}
	for _, g := range guests {
		if match(g) {
			return g, true, nil
		}
	}
	return guest{}, false, nil
}

func (g guest) domain() backend.Domain {
	return backend.Domain{ID: g.PID, UUID: g.UUID, Name: g.Name}
}

// LookupByID implements backend.IDLookup.
func (h *Hypervisor) LookupByID(ctx context.Context, id int) backend.Result[backend.Domain] {
	return h.lookup(ctx, func(g guest) bool { return g.PID == id })
}

// LookupByUUID implements backend.UUIDLookup. Only running guests are
// known here.
func (h *Hypervisor) LookupByUUID(ctx context.Context, id uuid.UUID) backend.Result[backend.Domain] {
	return h.lookup(ctx, func(g guest) bool { return g.UUID == id })
}

func (h *Hypervisor) lookup(ctx context.Context, match func(guest) bool) backend.Result[backend.Domain] {
	g, ok, err := h.findGuest(ctx, match)
	if err != nil {
		return backend.Fail[backend.Domain](err)
	}
	if !ok {
		return backend.Decline[backend.Domain]()
	}
	return backend.Ok(g.domain())
}

// ListDomains implements backend.DomainLister.
func (h *Hypervisor) ListDomains(ctx context.Context) ([]int, error) {
	guests, err := h.guests.Guests(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(guests))
	for _, g := range guests {
		ids = append(ids, g.PID)
	}
	return ids, nil
}

// withMonitor runs fn on a fresh monitor connection to dom.
func (h *Hypervisor) withMonitor(ctx context.Context, dom backend.Domain, fn func(context.Context, monitor) error) error {
	if !dom.IsActive() {
		return fmt.Errorf("%w: domain %s is not running", backend.ErrInvalidArgument, dom.Name)
	}
	path, err := naming.MonitorSocket(h.opts.QMPDir, dom.Name)
	if err != nil {
		return fmt.Errorf("%w: %v", backend.ErrInvalidArgument, err)
	}

	ctx, cancel := context.WithTimeout(ctx, monitorTimeout)
	defer cancel()

	m, err := h.dial(ctx, path)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(ctx, m)
}

// State implements backend.InfoGetter.
func (h *Hypervisor) State(ctx context.Context, dom backend.Domain) (backend.State, error) {
	var st statusInfo
	err := h.withMonitor(ctx, dom, func(ctx context.Context, m monitor) error {
		return m.Execute(ctx, "query-status", nil, &st)
	})
	if err != nil {
		return backend.StateNoState, err
	}
	return runState(st), nil
}

// runState maps a QMP RunState to a domain state.
func runState(st statusInfo) backend.State {
	switch st.Status {
	case "running":
		return backend.StateRunning
	case "paused", "prelaunch", "inmigrate", "postmigrate", "finish-migrate",
		"restore-vm", "save-vm", "watchdog", "debug", "colo":
		return backend.StatePaused
	case "suspended":
		return backend.StatePMSuspended
	case "shutdown":
		return backend.StateShutdown
	case "guest-panicked", "internal-error", "io-error":
		return backend.StateCrashed
	}
	if st.Running {
		return backend.StateRunning
	}
	return backend.StateNoState
}

// Info implements backend.InfoGetter.
func (h *Hypervisor) Info(ctx context.Context, dom backend.Domain) (backend.Info, error) {
	var (
		st      statusInfo
		cpus    []cpuInfoFast
		size    memorySizeSummary
		balloon balloonInfo
	)
	err := h.withMonitor(ctx, dom, func(ctx context.Context, m monitor) error {
		if err := m.Execute(ctx, "query-status", nil, &st); err != nil {
			return err
		}
		if err := m.Execute(ctx, "query-cpus-fast", nil, &cpus); err != nil {
			return err
		}
		if err := m.Execute(ctx, "query-memory-size-summary", nil, &size); err != nil {
			return err
		}
		if err := m.Execute(ctx, "query-balloon", nil, &balloon); err != nil {
			h.log.WithError(err).WithField("domain", dom.Name).Debug("No balloon, reporting full memory")
			balloon.Actual = size.BaseMemory + size.PluggedMemory
		}
		return nil
	})
	if err != nil {
		return backend.Info{}, err
	}

	cpuTime, err := h.guests.CPUTime(ctx, dom.ID)
	if err != nil {
		h.log.WithError(err).WithField("domain", dom.Name).Debug("CPU time unavailable")
	}

	return backend.Info{
		State:     runState(st),
		MaxMemKiB: (size.BaseMemory + size.PluggedMemory) / 1024,
		MemoryKiB: balloon.Actual / 1024,
		NrVirtCPU: uint16(len(cpus)),
		CPUTime:   cpuTime,
	}, nil
}

// OSType implements backend.OSTyper. Every guest is fully virtualised.
func (h *Hypervisor) OSType(_ context.Context, dom backend.Domain) (string, error) {
	if !dom.IsActive() {
		return "", fmt.Errorf("%w: domain %s is not running", backend.ErrInvalidArgument, dom.Name)
	}
	return "hvm", nil
}

// MaxMemory implements backend.MemoryManager.
func (h *Hypervisor) MaxMemory(ctx context.Context, dom backend.Domain) (uint64, error) {
	var size memorySizeSummary
	err := h.withMonitor(ctx, dom, func(ctx context.Context, m monitor) error {
		return m.Execute(ctx, "query-memory-size-summary", nil, &size)
	})
	if err != nil {
		return 0, err
	}
	return (size.BaseMemory + size.PluggedMemory) / 1024, nil
}

// SetMaxMemory implements backend.MemoryManager. A running guest's memory
// ceiling is fixed at start.
func (h *Hypervisor) SetMaxMemory(_ context.Context, dom backend.Domain, _ uint64) error {
	return fmt.Errorf("%w: cannot change maximum memory of running domain %s", backend.ErrUnsupported, dom.Name)
}

// SetMemory implements backend.MemoryManager by resizing the balloon.
func (h *Hypervisor) SetMemory(ctx context.Context, dom backend.Domain, kib uint64) error {
	return h.withMonitor(ctx, dom, func(ctx context.Context, m monitor) error {
		return m.Execute(ctx, "balloon", map[string]any{"value": kib * 1024}, nil)
	})
}
