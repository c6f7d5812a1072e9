package driver

import (
	"context"
	"fmt"

	"github.com/jbweber/vmux/internal/backend"
)

// forward returns the activated adapters in backend ID order.
func (c *Conn) forward() []backend.ID {
	return c.Activated()
}

// reverse returns the activated adapters in reverse backend ID order.
func (c *Conn) reverse() []backend.ID {
	ids := c.Activated()
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids
}

// tryEach calls fn on every adapter in order that implements C and returns
// the first success. Declines move on. Failures are remembered and also move
// on; when nothing succeeds the last failure is returned unchanged, or
// ErrUnsupported when every adapter declined or none had the capability.
func tryEach[C any, T any](c *Conn, op string, order []backend.ID, fn func(C) backend.Result[T]) (T, error) {
	var zero T
	var lastErr error

	for _, id := range order {
		impl, ok := any(c.backends[id]).(C)
		if !ok {
			continue
		}

		r := fn(impl)
		c.observe(op, id, r.Status)

		switch r.Status {
		case backend.StatusSuccess:
			return r.Value, nil
		case backend.StatusFailed:
			lastErr = r.Err
		}
	}

	if lastErr != nil {
		return zero, lastErr
	}
	return zero, fmt.Errorf("%w: %s", backend.ErrUnsupported, op)
}

// PinVcpu restricts vcpu of dom to the CPUs set in cpumap.
func (c *Conn) PinVcpu(ctx context.Context, dom backend.Domain, vcpu uint32, cpumap []byte) error {
	if len(cpumap) == 0 {
		return fmt.Errorf("%w: empty cpu map", backend.ErrInvalidArgument)
	}
	_, err := tryEach(c, "pin_vcpu", c.forward(), func(p backend.VcpuPinner) backend.Result[backend.Void] {
		return p.PinVcpu(ctx, dom, vcpu, cpumap)
	})
	return err
}

// GetVcpus returns up to maxInfo vcpu descriptions and their affinity rows,
// mapLen bytes per row. An adapter answering with no rows is treated as a
// decline.
func (c *Conn) GetVcpus(ctx context.Context, dom backend.Domain, maxInfo, mapLen int) (backend.VcpuList, error) {
	if maxInfo < 1 || mapLen < 1 {
		return backend.VcpuList{}, fmt.Errorf("%w: maxinfo and maplen must be positive", backend.ErrInvalidArgument)
	}
	return tryEach(c, "get_vcpus", c.forward(), func(g backend.VcpuGetter) backend.Result[backend.VcpuList] {
		r := g.GetVcpus(ctx, dom, maxInfo, mapLen)
		if r.Succeeded() && len(r.Value.Info) == 0 {
			return backend.Decline[backend.VcpuList]()
		}
		return r
	})
}

// GetSchedulerType returns the scheduler name and its tunable count.
func (c *Conn) GetSchedulerType(ctx context.Context, dom backend.Domain) (backend.SchedType, error) {
	return tryEach(c, "get_scheduler_type", c.forward(), func(s backend.Scheduler) backend.Result[backend.SchedType] {
		r := s.SchedulerType(ctx, dom)
		if r.Succeeded() && r.Value.Name == "" {
			return backend.Decline[backend.SchedType]()
		}
		return r
	})
}

// GetSchedulerParameters returns the scheduler tunables of dom.
func (c *Conn) GetSchedulerParameters(ctx context.Context, dom backend.Domain) ([]backend.SchedParam, error) {
	return tryEach(c, "get_scheduler_params", c.forward(), func(s backend.Scheduler) backend.Result[[]backend.SchedParam] {
		return s.SchedulerParams(ctx, dom)
	})
}

// SetSchedulerParameters writes scheduler tunables. Adapters are tried in
// reverse backend ID order so the hypervisor, tried last, reports the error.
func (c *Conn) SetSchedulerParameters(ctx context.Context, dom backend.Domain, params []backend.SchedParam) error {
	if len(params) == 0 {
		return fmt.Errorf("%w: no scheduler parameters", backend.ErrInvalidArgument)
	}
	_, err := tryEach(c, "set_scheduler_params", c.reverse(), func(s backend.Scheduler) backend.Result[backend.Void] {
		return s.SetSchedulerParams(ctx, dom, params)
	})
	return err
}

// ListDefinedDomains returns the names of inactive defined domains.
func (c *Conn) ListDefinedDomains(ctx context.Context) ([]string, error) {
	return tryEach(c, "list_defined", c.forward(), func(l backend.DefinedLister) backend.Result[[]string] {
		return l.ListDefined(ctx)
	})
}

// NumOfDefinedDomains returns the number of inactive defined domains.
func (c *Conn) NumOfDefinedDomains(ctx context.Context) (int, error) {
	n, err := tryEach(c, "num_defined", c.forward(), func(l backend.DefinedLister) backend.Result[int] {
		return l.NumDefined(ctx)
	})
	if err != nil {
		return -1, err
	}
	return n, nil
}

// DefineXML stores a domain definition.
func (c *Conn) DefineXML(ctx context.Context, xml string) (backend.Domain, error) {
	if xml == "" {
		return backend.Domain{}, fmt.Errorf("%w: empty domain description", backend.ErrInvalidArgument)
	}
	return tryEach(c, "define_xml", c.forward(), func(d backend.Definer) backend.Result[backend.Domain] {
		return d.DefineXML(ctx, xml)
	})
}

// Undefine removes the definition of dom.
func (c *Conn) Undefine(ctx context.Context, dom backend.Domain) error {
	_, err := tryEach(c, "undefine", c.forward(), func(u backend.Undefiner) backend.Result[backend.Void] {
		return u.Undefine(ctx, dom)
	})
	return err
}

// AttachDevice hot-plugs a device. When the daemon owns configuration the
// change is also made persistent, so one call has the same effect on every
// daemon version.
func (c *Conn) AttachDevice(ctx context.Context, dom backend.Domain, xml string) error {
	return c.AttachDeviceFlags(ctx, dom, xml, c.liveDeviceFlags())
}

// AttachDeviceFlags adds a device with explicit flags.
func (c *Conn) AttachDeviceFlags(ctx context.Context, dom backend.Domain, xml string, flags backend.DeviceFlags) error {
	if xml == "" {
		return fmt.Errorf("%w: empty device description", backend.ErrInvalidArgument)
	}
	_, err := tryEach(c, "attach_device", c.forward(), func(a backend.DeviceAttacher) backend.Result[backend.Void] {
		return a.AttachDevice(ctx, dom, xml, flags)
	})
	return err
}

// DetachDevice hot-unplugs a device, persistently when the daemon owns
// configuration.
func (c *Conn) DetachDevice(ctx context.Context, dom backend.Domain, xml string) error {
	return c.DetachDeviceFlags(ctx, dom, xml, c.liveDeviceFlags())
}

// DetachDeviceFlags removes a device with explicit flags.
func (c *Conn) DetachDeviceFlags(ctx context.Context, dom backend.Domain, xml string, flags backend.DeviceFlags) error {
	if xml == "" {
		return fmt.Errorf("%w: empty device description", backend.ErrInvalidArgument)
	}
	_, err := tryEach(c, "detach_device", c.forward(), func(a backend.DeviceAttacher) backend.Result[backend.Void] {
		return a.DetachDevice(ctx, dom, xml, flags)
	})
	return err
}

// UpdateDeviceFlags changes an attached device. Only the daemon can.
func (c *Conn) UpdateDeviceFlags(ctx context.Context, dom backend.Domain, xml string, flags backend.DeviceFlags) error {
	u, err := capability[backend.DeviceUpdater](c, backend.Daemon)
	if err != nil {
		return err
	}
	return u.UpdateDevice(ctx, dom, xml, flags)
}

func (c *Conn) liveDeviceFlags() backend.DeviceFlags {
	flags := backend.DeviceModifyLive
	if c.IsActivated(backend.Daemon) && c.managedVersion() {
		flags |= backend.DeviceModifyConfig
	}
	return flags
}
