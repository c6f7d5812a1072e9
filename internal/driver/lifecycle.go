package driver

import (
	"context"
	"fmt"

	"github.com/jbweber/vmux/internal/backend"
)

func (c *Conn) controller() (backend.LifecycleController, error) {
	return capability[backend.LifecycleController](c, backend.Daemon)
}

func (c *Conn) saver() (backend.Saver, error) {
	return capability[backend.Saver](c, backend.Daemon)
}

// CreateXML defines and starts a transient domain.
func (c *Conn) CreateXML(ctx context.Context, xml string, flags uint32) (backend.Domain, error) {
	if xml == "" {
		return backend.Domain{}, fmt.Errorf("%w: empty domain description", backend.ErrInvalidArgument)
	}
	lc, err := c.controller()
	if err != nil {
		return backend.Domain{}, err
	}
	return lc.CreateXML(ctx, xml, flags)
}

// Suspend pauses a running domain.
func (c *Conn) Suspend(ctx context.Context, dom backend.Domain) error {
	lc, err := c.controller()
	if err != nil {
		return err
	}
	return lc.Suspend(ctx, dom)
}

// Resume unpauses a domain.
func (c *Conn) Resume(ctx context.Context, dom backend.Domain) error {
	lc, err := c.controller()
	if err != nil {
		return err
	}
	return lc.Resume(ctx, dom)
}

// Shutdown asks the guest to power off.
func (c *Conn) Shutdown(ctx context.Context, dom backend.Domain) error {
	lc, err := c.controller()
	if err != nil {
		return err
	}
	return lc.Shutdown(ctx, dom)
}

// Reboot asks the guest to restart.
func (c *Conn) Reboot(ctx context.Context, dom backend.Domain, flags uint32) error {
	lc, err := c.controller()
	if err != nil {
		return err
	}
	return lc.Reboot(ctx, dom, flags)
}

// Destroy stops a domain immediately.
func (c *Conn) Destroy(ctx context.Context, dom backend.Domain) error {
	lc, err := c.controller()
	if err != nil {
		return err
	}
	return lc.Destroy(ctx, dom)
}

// Save stops dom and writes its memory image to path. Replacing the domain
// description on the way out is not supported.
func (c *Conn) Save(ctx context.Context, dom backend.Domain, path, dxml string, flags uint32) error {
	if dxml != "" {
		return fmt.Errorf("%w: replacing the domain description on save", backend.ErrInvalidArgument)
	}
	if flags != 0 {
		return fmt.Errorf("%w: unsupported save flags 0x%x", backend.ErrInvalidArgument, flags)
	}
	if path == "" {
		return fmt.Errorf("%w: empty save path", backend.ErrInvalidArgument)
	}
	s, err := c.saver()
	if err != nil {
		return err
	}
	return s.Save(ctx, dom, path)
}

// Restore starts a domain from a memory image written by Save.
func (c *Conn) Restore(ctx context.Context, path, dxml string, flags uint32) error {
	if dxml != "" {
		return fmt.Errorf("%w: replacing the domain description on restore", backend.ErrInvalidArgument)
	}
	if flags != 0 {
		return fmt.Errorf("%w: unsupported restore flags 0x%x", backend.ErrInvalidArgument, flags)
	}
	if path == "" {
		return fmt.Errorf("%w: empty restore path", backend.ErrInvalidArgument)
	}
	s, err := c.saver()
	if err != nil {
		return err
	}
	return s.Restore(ctx, path)
}

// CoreDump writes the memory of dom to path.
func (c *Conn) CoreDump(ctx context.Context, dom backend.Domain, path string, flags uint32) error {
	if path == "" {
		return fmt.Errorf("%w: empty dump path", backend.ErrInvalidArgument)
	}
	s, err := c.saver()
	if err != nil {
		return err
	}
	return s.CoreDump(ctx, dom, path, flags)
}
