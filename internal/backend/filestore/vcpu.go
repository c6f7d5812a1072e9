package filestore

import (
	"context"
	"fmt"

	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/vmux/internal/backend"
	"github.com/jbweber/vmux/internal/cpumap"
)

// SetVcpusFlags implements backend.VcpuSetter for the stored configuration.
// Live changes decline.
func (s *FileStore) SetVcpusFlags(_ context.Context, dom backend.Domain, n uint, flags backend.VcpuFlags) backend.Result[backend.Void] {
	if flags&backend.VcpuLive != 0 || flags&backend.VcpuConfig == 0 {
		return backend.Decline[backend.Void]()
	}
	if n == 0 {
		return backend.Fail[backend.Void](fmt.Errorf("%w: vcpu count must be positive", backend.ErrInvalidArgument))
	}

	err := s.modify(dom, func(def *libvirtxml.Domain) error {
		current, maximum := vcpuCounts(def)
		if def.VCPU == nil {
			def.VCPU = &libvirtxml.DomainVCPU{Placement: "static"}
		}
		if flags&backend.VcpuMaximum != 0 {
			maximum = n
			if current > n {
				current = n
			}
		} else {
			if n > maximum {
				return fmt.Errorf("%w: requested vcpus %d exceed maximum %d", backend.ErrInvalidArgument, n, maximum)
			}
			current = n
		}
		def.VCPU.Value = maximum
		def.VCPU.Current = 0
		if current < maximum {
			def.VCPU.Current = current
		}
		return nil
	})
	return backend.CheckErr(err)
}

// GetVcpusFlags implements backend.VcpuFlagsGetter for the stored
// configuration.
func (s *FileStore) GetVcpusFlags(_ context.Context, dom backend.Domain, flags backend.VcpuFlags) backend.Result[int] {
	if flags&backend.VcpuLive != 0 || flags&backend.VcpuConfig == 0 {
		return backend.Decline[int]()
	}
	def, err := s.read(dom)
	if err != nil {
		return backend.Fail[int](err)
	}
	current, maximum := vcpuCounts(def)
	if flags&backend.VcpuMaximum != 0 {
		return backend.Ok(int(maximum))
	}
	return backend.Ok(int(current))
}

// PinVcpu implements backend.VcpuPinner by recording a <vcpupin> entry.
// Running domains decline.
func (s *FileStore) PinVcpu(_ context.Context, dom backend.Domain, vcpu uint32, cpus []byte) backend.Result[backend.Void] {
	if dom.IsActive() {
		return backend.Decline[backend.Void]()
	}
	set := cpumap.FromBytes(cpus, len(cpus)*8)
	if set.Count() == 0 {
		return backend.Fail[backend.Void](fmt.Errorf("%w: empty cpu map", backend.ErrInvalidArgument))
	}

	err := s.modify(dom, func(def *libvirtxml.Domain) error {
		if _, maximum := vcpuCounts(def); uint(vcpu) >= maximum {
			return fmt.Errorf("%w: vcpu %d out of range (max %d)", backend.ErrInvalidArgument, vcpu, maximum-1)
		}
		if def.CPUTune == nil {
			def.CPUTune = &libvirtxml.DomainCPUTune{}
		}
		pin := libvirtxml.DomainCPUTuneVCPUPin{VCPU: uint(vcpu), CPUSet: set.String()}
		for i := range def.CPUTune.VCPUPin {
			if def.CPUTune.VCPUPin[i].VCPU == uint(vcpu) {
				def.CPUTune.VCPUPin[i] = pin
				return nil
			}
		}
		def.CPUTune.VCPUPin = append(def.CPUTune.VCPUPin, pin)
		return nil
	})
	return backend.CheckErr(err)
}

// GetVcpus implements backend.VcpuGetter from the stored pinning. Every
// vcpu is reported offline with no last CPU.
func (s *FileStore) GetVcpus(_ context.Context, dom backend.Domain, maxInfo, mapLen int) backend.Result[backend.VcpuList] {
	if dom.IsActive() {
		return backend.Decline[backend.VcpuList]()
	}
	def, err := s.read(dom)
	if err != nil {
		return backend.Fail[backend.VcpuList](err)
	}

	_, maximum := vcpuCounts(def)
	n := int(maximum)
	if maxInfo < n {
		n = maxInfo
	}

	list := backend.VcpuList{
		Info:    make([]backend.VcpuInfo, 0, n),
		CPUMaps: make([]byte, 0, n*mapLen),
	}
	for v := 0; v < n; v++ {
		list.Info = append(list.Info, backend.VcpuInfo{Number: uint32(v), State: backend.VcpuOffline, CPU: -1})
		if mapLen <= 0 {
			continue
		}
		row, err := affinityRow(def, uint(v), mapLen)
		if err != nil {
			return backend.Fail[backend.VcpuList](fmt.Errorf("domain %s vcpu %d: %w", dom.Name, v, err))
		}
		list.CPUMaps = append(list.CPUMaps, row...)
	}
	return backend.Ok(list)
}

// affinityRow resolves the affinity of one vcpu: its own pin, then the
// domain-wide placement, then every CPU.
func affinityRow(def *libvirtxml.Domain, vcpu uint, mapLen int) ([]byte, error) {
	size := mapLen * 8
	spec := ""
	if def.CPUTune != nil {
		for _, pin := range def.CPUTune.VCPUPin {
			if pin.VCPU == vcpu {
				spec = pin.CPUSet
				break
			}
		}
	}
	if spec == "" && def.VCPU != nil {
		spec = def.VCPU.CPUSet
	}
	if spec == "" {
		all := cpumap.New(size)
		for cpu := 0; cpu < size; cpu++ {
			all.Set(cpu)
		}
		return all.Bytes(), nil
	}
	set, err := cpumap.Parse(spec, size)
	if err != nil {
		return nil, err
	}
	return set.Bytes(), nil
}
