package daemon

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/vmux/internal/backend"
)

// Create implements backend.DomainCreator.
func (d *Daemon) Create(_ context.Context, dom backend.Domain) backend.Result[backend.Void] {
	d.log.WithField("domain", dom.Name).Info("Starting domain")
	return resultErr(d.client.DomainCreate(toWire(dom)))
}

// DefineXML implements backend.Definer.
func (d *Daemon) DefineXML(_ context.Context, xml string) backend.Result[backend.Domain] {
	dom, err := d.client.DomainDefineXML(xml)
	if err != nil {
		return result(backend.Domain{}, err)
	}
	d.log.WithField("domain", dom.Name).Info("Defined domain")
	return backend.Ok(fromWire(dom))
}

// Undefine implements backend.Undefiner.
func (d *Daemon) Undefine(_ context.Context, dom backend.Domain) backend.Result[backend.Void] {
	err := d.client.DomainUndefine(toWire(dom))
	if isNotFound(err) {
		return backend.Decline[backend.Void]()
	}
	return resultErr(err)
}

// ListDefined implements backend.DefinedLister.
func (d *Daemon) ListDefined(_ context.Context) backend.Result[[]string] {
	n, err := d.client.ConnectNumOfDefinedDomains()
	if err != nil {
		return result[[]string](nil, err)
	}
	if n == 0 {
		return backend.Ok([]string{})
	}
	names, err := d.client.ConnectListDefinedDomains(n)
	return result(names, err)
}

// NumDefined implements backend.DefinedLister.
func (d *Daemon) NumDefined(_ context.Context) backend.Result[int] {
	n, err := d.client.ConnectNumOfDefinedDomains()
	return result(int(n), err)
}

// CreateXML implements backend.LifecycleController.
func (d *Daemon) CreateXML(_ context.Context, xml string, flags uint32) (backend.Domain, error) {
	dom, err := d.client.DomainCreateXML(xml, libvirt.DomainCreateFlags(flags))
	if err != nil {
		return backend.Domain{}, fmt.Errorf("failed to create domain: %w", err)
	}
	return fromWire(dom), nil
}

// Suspend implements backend.LifecycleController.
func (d *Daemon) Suspend(_ context.Context, dom backend.Domain) error {
	return wrap("suspend", dom, d.client.DomainSuspend(toWire(dom)))
}

// Resume implements backend.LifecycleController.
func (d *Daemon) Resume(_ context.Context, dom backend.Domain) error {
	return wrap("resume", dom, d.client.DomainResume(toWire(dom)))
}

// Shutdown implements backend.LifecycleController.
func (d *Daemon) Shutdown(_ context.Context, dom backend.Domain) error {
	return wrap("shut down", dom, d.client.DomainShutdown(toWire(dom)))
}

// Reboot implements backend.LifecycleController.
func (d *Daemon) Reboot(_ context.Context, dom backend.Domain, flags uint32) error {
	return wrap("reboot", dom, d.client.DomainReboot(toWire(dom), libvirt.DomainRebootFlagValues(flags)))
}

// Destroy implements backend.LifecycleController.
func (d *Daemon) Destroy(_ context.Context, dom backend.Domain) error {
	return wrap("destroy", dom, d.client.DomainDestroy(toWire(dom)))
}

// Save implements backend.Saver.
func (d *Daemon) Save(_ context.Context, dom backend.Domain, path string) error {
	return wrap("save", dom, d.client.DomainSave(toWire(dom), path))
}

// Restore implements backend.Saver.
func (d *Daemon) Restore(_ context.Context, path string) error {
	if err := d.client.DomainRestore(path); err != nil {
		return fmt.Errorf("failed to restore domain from %s: %w", path, err)
	}
	return nil
}

// CoreDump implements backend.Saver.
func (d *Daemon) CoreDump(_ context.Context, dom backend.Domain, path string, flags uint32) error {
	return wrap("dump", dom, d.client.DomainCoreDump(toWire(dom), path, libvirt.DomainCoreDumpFlags(flags)))
}

func wrap(op string, dom backend.Domain, err error) error {
	if err != nil {
		return fmt.Errorf("failed to %s domain %s: %w", op, dom.Name, err)
	}
	return nil
}
