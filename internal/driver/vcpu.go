package driver

import (
	"context"
	"fmt"
	"math"

	"github.com/jbweber/vmux/internal/backend"
)

const vcpuFlagsMask = backend.VcpuLive | backend.VcpuConfig | backend.VcpuMaximum

// firstDecisive tries the adapters in order and stops at the first one that
// does not decline, returning its success or failure. handled is false when
// every adapter declined or none had the capability.
func firstDecisive[C any, T any](c *Conn, op string, order []backend.ID, fn func(C) backend.Result[T]) (T, bool, error) {
	var zero T
	for _, id := range order {
		impl, ok := any(c.backends[id]).(C)
		if !ok {
			continue
		}
		r := fn(impl)
		c.observe(op, id, r.Status)
		switch r.Status {
		case backend.StatusSuccess:
			return r.Value, true, nil
		case backend.StatusFailed:
			return zero, true, r.Err
		}
	}
	return zero, false, nil
}

var configOwners = []backend.ID{backend.Daemon, backend.FileStore}

// SetVcpusFlags changes a vcpu count. The daemon and the file store are
// asked first; the hypervisor can only change the live count.
func (c *Conn) SetVcpusFlags(ctx context.Context, dom backend.Domain, n uint, flags backend.VcpuFlags) error {
	if flags&^vcpuFlagsMask != 0 {
		return fmt.Errorf("%w: unsupported vcpu flags 0x%x", backend.ErrInvalidArgument, uint32(flags&^vcpuFlagsMask))
	}
	if flags&(backend.VcpuLive|backend.VcpuConfig) == 0 ||
		flags&(backend.VcpuMaximum|backend.VcpuLive) == backend.VcpuMaximum|backend.VcpuLive {
		return fmt.Errorf("%w: invalid vcpu flag combination 0x%x", backend.ErrInvalidArgument, uint32(flags))
	}
	if n == 0 || n > math.MaxUint16 {
		return fmt.Errorf("%w: vcpu count %d out of range", backend.ErrInvalidArgument, n)
	}

	_, handled, err := firstDecisive(c, "set_vcpus", configOwners, func(s backend.VcpuSetter) backend.Result[backend.Void] {
		return s.SetVcpusFlags(ctx, dom, n, flags)
	})
	if handled {
		return err
	}

	if flags == backend.VcpuLive {
		s, err := capability[backend.VcpuSetter](c, backend.Hypervisor)
		if err != nil {
			return err
		}
		r := s.SetVcpusFlags(ctx, dom, n, flags)
		c.observe("set_vcpus", backend.Hypervisor, r.Status)
		if r.Succeeded() {
			return nil
		}
		if r.Status == backend.StatusFailed {
			return r.Err
		}
	}
	return fmt.Errorf("%w: set vcpus", backend.ErrUnsupported)
}

// SetVcpus changes the live vcpu count, and the persistent one too when
// the daemon owns configuration.
func (c *Conn) SetVcpus(ctx context.Context, dom backend.Domain, n uint) error {
	flags := backend.VcpuLive
	if c.managedVersion() {
		flags |= backend.VcpuConfig
	}
	return c.SetVcpusFlags(ctx, dom, n, flags)
}

// GetVcpusFlags reads a vcpu count. The hypervisor only answers the
// configured maximum.
func (c *Conn) GetVcpusFlags(ctx context.Context, dom backend.Domain, flags backend.VcpuFlags) (int, error) {
	if flags&^vcpuFlagsMask != 0 {
		return -1, fmt.Errorf("%w: unsupported vcpu flags 0x%x", backend.ErrInvalidArgument, uint32(flags&^vcpuFlagsMask))
	}

	n, handled, err := firstDecisive(c, "get_vcpus_flags", configOwners, func(g backend.VcpuFlagsGetter) backend.Result[int] {
		return g.GetVcpusFlags(ctx, dom, flags)
	})
	if handled {
		if err != nil {
			return -1, err
		}
		return n, nil
	}

	if flags == backend.VcpuConfig|backend.VcpuMaximum {
		g, err := capability[backend.VcpuMaxGetter](c, backend.Hypervisor)
		if err != nil {
			return -1, err
		}
		r := g.GetVcpuMax(ctx, dom)
		c.observe("get_vcpus_flags", backend.Hypervisor, r.Status)
		switch r.Status {
		case backend.StatusSuccess:
			return r.Value, nil
		case backend.StatusFailed:
			return -1, r.Err
		}
	}
	return -1, fmt.Errorf("%w: get vcpus", backend.ErrUnsupported)
}

// GetMaxVcpus returns the maximum vcpu count of a running domain.
func (c *Conn) GetMaxVcpus(ctx context.Context, dom backend.Domain) (int, error) {
	return c.GetVcpusFlags(ctx, dom, backend.VcpuLive|backend.VcpuMaximum)
}
