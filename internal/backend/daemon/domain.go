package daemon

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/vmux/internal/backend"
)

// Info implements backend.InfoGetter.
func (d *Daemon) Info(_ context.Context, dom backend.Domain) (backend.Info, error) {
	state, maxMem, mem, nrVirtCPU, cpuTime, err := d.client.DomainGetInfo(toWire(dom))
	if err != nil {
		return backend.Info{}, fmt.Errorf("failed to get info for domain %s: %w", dom.Name, err)
	}
	return backend.Info{
		State:     backend.State(state),
		MaxMemKiB: maxMem,
		MemoryKiB: mem,
		NrVirtCPU: nrVirtCPU,
		CPUTime:   cpuTime,
	}, nil
}

// State implements backend.InfoGetter.
func (d *Daemon) State(_ context.Context, dom backend.Domain) (backend.State, error) {
	state, _, err := d.client.DomainGetState(toWire(dom), 0)
	if err != nil {
		return backend.StateNoState, fmt.Errorf("failed to get state for domain %s: %w", dom.Name, err)
	}
	return backend.State(state), nil
}

// OSType implements backend.OSTyper.
func (d *Daemon) OSType(_ context.Context, dom backend.Domain) (string, error) {
	t, err := d.client.DomainGetOsType(toWire(dom))
	if err != nil {
		return "", fmt.Errorf("failed to get OS type for domain %s: %w", dom.Name, err)
	}
	return t, nil
}

// MaxMemory implements backend.MemoryManager.
func (d *Daemon) MaxMemory(_ context.Context, dom backend.Domain) (uint64, error) {
	kib, err := d.client.DomainGetMaxMemory(toWire(dom))
	if err != nil {
		return 0, fmt.Errorf("failed to get max memory for domain %s: %w", dom.Name, err)
	}
	return kib, nil
}

// SetMaxMemory implements backend.MemoryManager.
func (d *Daemon) SetMaxMemory(_ context.Context, dom backend.Domain, kib uint64) error {
	if err := d.client.DomainSetMaxMemory(toWire(dom), kib); err != nil {
		return fmt.Errorf("failed to set max memory for domain %s: %w", dom.Name, err)
	}
	return nil
}

// SetMemory implements backend.MemoryManager.
func (d *Daemon) SetMemory(_ context.Context, dom backend.Domain, kib uint64) error {
	if err := d.client.DomainSetMemory(toWire(dom), kib); err != nil {
		return fmt.Errorf("failed to set memory for domain %s: %w", dom.Name, err)
	}
	return nil
}

// Autostart implements backend.Autostarter.
func (d *Daemon) Autostart(_ context.Context, dom backend.Domain) (bool, error) {
	on, err := d.client.DomainGetAutostart(toWire(dom))
	if err != nil {
		return false, fmt.Errorf("failed to get autostart for domain %s: %w", dom.Name, err)
	}
	return on != 0, nil
}

// SetAutostart implements backend.Autostarter.
func (d *Daemon) SetAutostart(_ context.Context, dom backend.Domain, on bool) error {
	var v int32
	if on {
		v = 1
	}
	if err := d.client.DomainSetAutostart(toWire(dom), v); err != nil {
		return fmt.Errorf("failed to set autostart for domain %s: %w", dom.Name, err)
	}
	return nil
}

// XMLDesc implements backend.XMLDescriber. A non-empty cpus is written into
// the vcpu placement unless the description already has one.
func (d *Daemon) XMLDesc(_ context.Context, dom backend.Domain, flags uint32, cpus string) (string, error) {
	xml, err := d.client.DomainGetXMLDesc(toWire(dom), libvirt.DomainXMLFlags(flags))
	if err != nil {
		return "", fmt.Errorf("failed to get XML for domain %s: %w", dom.Name, err)
	}
	if cpus == "" {
		return xml, nil
	}
	return injectCPUSet(xml, cpus)
}

// injectCPUSet sets the vcpu cpuset attribute of a domain description when
// it is empty.
func injectCPUSet(xml, cpus string) (string, error) {
	var def libvirtxml.Domain
	if err := def.Unmarshal(xml); err != nil {
		return "", fmt.Errorf("failed to parse domain XML: %w", err)
	}
	if def.VCPU == nil || def.VCPU.CPUSet != "" {
		return xml, nil
	}
	def.VCPU.CPUSet = cpus

	out, err := def.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain XML: %w", err)
	}
	return out, nil
}
