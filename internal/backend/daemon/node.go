package daemon

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/vmux/internal/backend"
)

// AttachDevice implements backend.DeviceAttacher.
func (d *Daemon) AttachDevice(_ context.Context, dom backend.Domain, xml string, flags backend.DeviceFlags) backend.Result[backend.Void] {
	return resultErr(d.client.DomainAttachDeviceFlags(toWire(dom), xml, uint32(flags)))
}

// DetachDevice implements backend.DeviceAttacher.
func (d *Daemon) DetachDevice(_ context.Context, dom backend.Domain, xml string, flags backend.DeviceFlags) backend.Result[backend.Void] {
	return resultErr(d.client.DomainDetachDeviceFlags(toWire(dom), xml, uint32(flags)))
}

// UpdateDevice implements backend.DeviceUpdater.
func (d *Daemon) UpdateDevice(_ context.Context, dom backend.Domain, xml string, flags backend.DeviceFlags) error {
	err := d.client.DomainUpdateDeviceFlags(toWire(dom), xml, libvirt.DomainDeviceModifyFlags(flags))
	return wrap("update device of", dom, err)
}

// NodeInfo implements backend.NodeInformer.
func (d *Daemon) NodeInfo(_ context.Context) backend.Result[backend.NodeInfo] {
	model, mem, cpus, mhz, nodes, sockets, cores, threads, err := d.client.NodeGetInfo()
	if err != nil {
		return result(backend.NodeInfo{}, fmt.Errorf("failed to get node info: %w", err))
	}
	return backend.Ok(backend.NodeInfo{
		Model:     modelString(model),
		MemoryKiB: mem,
		CPUs:      int(cpus),
		MHz:       int(mhz),
		Nodes:     int(nodes),
		Sockets:   int(sockets),
		Cores:     int(cores),
		Threads:   int(threads),
	})
}

func modelString(m [32]int8) string {
	b := make([]byte, 0, len(m))
	for _, c := range m {
		if c == 0 {
			break
		}
		b = append(b, byte(c))
	}
	return string(b)
}
