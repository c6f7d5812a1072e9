package driver

import (
	"context"
	"fmt"

	"github.com/jbweber/vmux/internal/backend"
)

// gatedOwner picks the single adapter for a version-gated operation:
// running domains go to the hypervisor, inactive ones to the file store or
// the daemon depending on the config version.
func (c *Conn) gatedOwner(dom backend.Domain) backend.ID {
	if dom.IsActive() {
		return backend.Hypervisor
	}
	return c.inactiveOwner()
}

// gated resolves owner as capability C. An owner that is not open, or
// cannot perform op, makes the call unsupported.
func gated[C any](c *Conn, op string, owner backend.ID) (C, error) {
	impl, err := capability[C](c, owner)
	if err != nil {
		c.observe(op, owner, backend.StatusDeclined)
		return impl, fmt.Errorf("%s: %w", op, err)
	}
	c.log.WithField("op", op).WithField("backend", owner).Debug("Routed by version gate")
	return impl, nil
}

// GetOSType returns the guest OS type. The legacy file store cannot answer
// for inactive domains.
func (c *Conn) GetOSType(ctx context.Context, dom backend.Domain) (string, error) {
	if !dom.IsActive() && !c.managedVersion() {
		return "", fmt.Errorf("%w: unable to query OS type for inactive domain %s", backend.ErrUnsupported, dom.Name)
	}
	t, err := gated[backend.OSTyper](c, "get_os_type", c.gatedOwner(dom))
	if err != nil {
		return "", err
	}
	return t.OSType(ctx, dom)
}

// GetMaxMemory returns the maximum memory of dom in KiB.
func (c *Conn) GetMaxMemory(ctx context.Context, dom backend.Domain) (uint64, error) {
	m, err := gated[backend.MemoryManager](c, "get_max_memory", c.gatedOwner(dom))
	if err != nil {
		return 0, err
	}
	return m.MaxMemory(ctx, dom)
}

// SetMaxMemory changes the maximum memory of dom in KiB.
func (c *Conn) SetMaxMemory(ctx context.Context, dom backend.Domain, kib uint64) error {
	if kib == 0 {
		return fmt.Errorf("%w: memory must be positive", backend.ErrInvalidArgument)
	}
	m, err := gated[backend.MemoryManager](c, "set_max_memory", c.gatedOwner(dom))
	if err != nil {
		return err
	}
	return m.SetMaxMemory(ctx, dom, kib)
}

// SetMemory changes the current memory of dom in KiB. Running domains are
// ballooned through the daemon.
func (c *Conn) SetMemory(ctx context.Context, dom backend.Domain, kib uint64) error {
	if kib == 0 {
		return fmt.Errorf("%w: memory must be positive", backend.ErrInvalidArgument)
	}
	owner := backend.Daemon
	if !dom.IsActive() {
		owner = c.inactiveOwner()
	}
	m, err := gated[backend.MemoryManager](c, "set_memory", owner)
	if err != nil {
		return err
	}
	return m.SetMemory(ctx, dom, kib)
}

// GetInfo returns the run state and resource summary of dom.
func (c *Conn) GetInfo(ctx context.Context, dom backend.Domain) (backend.Info, error) {
	g, err := gated[backend.InfoGetter](c, "get_info", c.gatedOwner(dom))
	if err != nil {
		return backend.Info{}, err
	}
	return g.Info(ctx, dom)
}

// GetState returns the run state of dom.
func (c *Conn) GetState(ctx context.Context, dom backend.Domain) (backend.State, error) {
	g, err := gated[backend.InfoGetter](c, "get_state", c.gatedOwner(dom))
	if err != nil {
		return backend.StateNoState, err
	}
	return g.State(ctx, dom)
}

// GetAutostart reports whether dom starts with the host. The owner depends
// only on the config version.
func (c *Conn) GetAutostart(ctx context.Context, dom backend.Domain) (bool, error) {
	a, err := gated[backend.Autostarter](c, "get_autostart", c.inactiveOwner())
	if err != nil {
		return false, err
	}
	return a.Autostart(ctx, dom)
}

// SetAutostart changes whether dom starts with the host.
func (c *Conn) SetAutostart(ctx context.Context, dom backend.Domain, on bool) error {
	a, err := gated[backend.Autostarter](c, "set_autostart", c.inactiveOwner())
	if err != nil {
		return err
	}
	return a.SetAutostart(ctx, dom, on)
}

// GetXMLDesc returns the domain description. Inactive domains on legacy
// versions are described by the file store; everything else by the daemon,
// with the vcpu placement filled in from live affinity.
func (c *Conn) GetXMLDesc(ctx context.Context, dom backend.Domain, flags uint32) (string, error) {
	if !dom.IsActive() && !c.managedVersion() {
		d, err := gated[backend.XMLDescriber](c, "get_xml_desc", backend.FileStore)
		if err != nil {
			return "", err
		}
		return d.XMLDesc(ctx, dom, flags, "")
	}

	d, err := gated[backend.XMLDescriber](c, "get_xml_desc", backend.Daemon)
	if err != nil {
		return "", err
	}

	var cpus string
	if dom.IsActive() {
		used, err := c.UsedCPUs(ctx, dom)
		if err != nil {
			return "", err
		}
		if used != nil {
			cpus = used.String()
		}
	}
	return d.XMLDesc(ctx, dom, flags, cpus)
}
