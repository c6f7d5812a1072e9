package daemon

import (
	"context"
	"fmt"

	"github.com/jbweber/vmux/internal/backend"
)

// PinVcpu implements backend.VcpuPinner. Inactive domains are left to the
// configuration owner.
func (d *Daemon) PinVcpu(_ context.Context, dom backend.Domain, vcpu uint32, cpumap []byte) backend.Result[backend.Void] {
	if !dom.IsActive() {
		return backend.Decline[backend.Void]()
	}
	return resultErr(d.client.DomainPinVcpu(toWire(dom), vcpu, cpumap))
}

// GetVcpus implements backend.VcpuGetter.
func (d *Daemon) GetVcpus(_ context.Context, dom backend.Domain, maxInfo, mapLen int) backend.Result[backend.VcpuList] {
	if !dom.IsActive() {
		return backend.Decline[backend.VcpuList]()
	}
	info, maps, err := d.client.DomainGetVcpus(toWire(dom), int32(maxInfo), int32(mapLen))
	if err != nil {
		return result(backend.VcpuList{}, err)
	}

	list := backend.VcpuList{
		Info:    make([]backend.VcpuInfo, 0, len(info)),
		CPUMaps: maps,
	}
	for _, v := range info {
		list.Info = append(list.Info, backend.VcpuInfo{
			Number:  v.Number,
			State:   v.State,
			CPUTime: v.CPUTime,
			CPU:     v.CPU,
		})
	}
	return backend.Ok(list)
}

// SetVcpusFlags implements backend.VcpuSetter.
func (d *Daemon) SetVcpusFlags(_ context.Context, dom backend.Domain, n uint, flags backend.VcpuFlags) backend.Result[backend.Void] {
	err := d.client.DomainSetVcpusFlags(toWire(dom), uint32(n), uint32(flags))
	if err != nil && !isUnsupported(err) {
		err = fmt.Errorf("failed to set vcpus for domain %s: %w", dom.Name, err)
	}
	return resultErr(err)
}

// GetVcpusFlags implements backend.VcpuFlagsGetter.
func (d *Daemon) GetVcpusFlags(_ context.Context, dom backend.Domain, flags backend.VcpuFlags) backend.Result[int] {
	n, err := d.client.DomainGetVcpusFlags(toWire(dom), uint32(flags))
	return result(int(n), err)
}
