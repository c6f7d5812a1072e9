package hypervisor

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/jbweber/vmux/internal/backend"
)

const peripheralPrefix = "/machine/peripheral/"

// vcpuThreads returns the vcpus of dom ordered by index.
func (h *Hypervisor) vcpuThreads(ctx context.Context, dom backend.Domain) ([]cpuInfoFast, error) {
	var cpus []cpuInfoFast
	err := h.withMonitor(ctx, dom, func(ctx context.Context, m monitor) error {
		return m.Execute(ctx, "query-cpus-fast", nil, &cpus)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(cpus, func(i, j int) bool { return cpus[i].CPUIndex < cpus[j].CPUIndex })
	return cpus, nil
}

// PinVcpu implements backend.VcpuPinner by setting the affinity of the vcpu
// thread.
func (h *Hypervisor) PinVcpu(ctx context.Context, dom backend.Domain, vcpu uint32, cpumap []byte) backend.Result[backend.Void] {
	if !dom.IsActive() {
		return backend.Decline[backend.Void]()
	}
	cpus, err := h.vcpuThreads(ctx, dom)
	if err != nil {
		return backend.Fail[backend.Void](err)
	}
	if int(vcpu) >= len(cpus) {
		return backend.Fail[backend.Void](fmt.Errorf("%w: vcpu %d out of range, domain %s has %d", backend.ErrInvalidArgument, vcpu, dom.Name, len(cpus)))
	}

	set := cpuSetFromMap(cpumap)
	if set.Count() == 0 {
		return backend.Fail[backend.Void](fmt.Errorf("%w: empty cpu map", backend.ErrInvalidArgument))
	}
	if err := h.threads.SetAffinity(cpus[vcpu].ThreadID, &set); err != nil {
		return backend.Fail[backend.Void](err)
	}
	h.log.WithField("domain", dom.Name).WithField("vcpu", vcpu).Debug("Pinned vcpu")
	return backend.Done()
}

// GetVcpus implements backend.VcpuGetter from the vcpu threads' scheduling
// state.
func (h *Hypervisor) GetVcpus(ctx context.Context, dom backend.Domain, maxInfo, mapLen int) backend.Result[backend.VcpuList] {
	if !dom.IsActive() {
		return backend.Decline[backend.VcpuList]()
	}
	cpus, err := h.vcpuThreads(ctx, dom)
	if err != nil {
		return backend.Fail[backend.VcpuList](err)
	}
	if maxInfo < len(cpus) {
		cpus = cpus[:maxInfo]
	}

	list := backend.VcpuList{
		Info:    make([]backend.VcpuInfo, 0, len(cpus)),
		CPUMaps: make([]byte, len(cpus)*mapLen),
	}
	for i, c := range cpus {
		info := backend.VcpuInfo{Number: uint32(c.CPUIndex), State: backend.VcpuRunning, CPU: -1}
		if st, err := h.threads.Stat(dom.ID, c.ThreadID); err == nil {
			info.CPUTime = st.CPUTime
			info.CPU = int32(st.Processor)
		}
		list.Info = append(list.Info, info)

		set, err := h.threads.Affinity(c.ThreadID)
		if err != nil {
			return backend.Fail[backend.VcpuList](err)
		}
		fillMap(list.CPUMaps[i*mapLen:(i+1)*mapLen], &set)
	}
	return backend.Ok(list)
}

// SetVcpusFlags implements backend.VcpuSetter by hot-plugging vcpus. Only
// the live count of a running guest can be changed here, and only vcpus
// added at runtime can be removed.
func (h *Hypervisor) SetVcpusFlags(ctx context.Context, dom backend.Domain, n uint, flags backend.VcpuFlags) backend.Result[backend.Void] {
	if flags != backend.VcpuLive || !dom.IsActive() {
		return backend.Decline[backend.Void]()
	}

	err := h.withMonitor(ctx, dom, func(ctx context.Context, m monitor) error {
		var slots []hotpluggableCPU
		if err := m.Execute(ctx, "query-hotpluggable-cpus", nil, &slots); err != nil {
			return err
		}
		return resizeVcpus(ctx, m, slots, int(n))
	})
	if err != nil {
		return backend.Fail[backend.Void](err)
	}
	h.log.WithField("domain", dom.Name).WithField("vcpus", n).Info("Changed live vcpu count")
	return backend.Done()
}

// resizeVcpus plugs or unplugs slots until n vcpus are present.
func resizeVcpus(ctx context.Context, m monitor, slots []hotpluggableCPU, n int) error {
	present := 0
	for _, s := range slots {
		if s.QOMPath != "" {
			present += max(s.VcpusCount, 1)
		}
	}

	// The monitor lists the highest slots first.
	for i := len(slots) - 1; i >= 0 && present < n; i-- {
		s := slots[i]
		if s.QOMPath != "" {
			continue
		}
		args := map[string]any{"driver": s.Type, "id": fmt.Sprintf("vcpu%d", i)}
		for k, v := range s.Props {
			args[k] = v
		}
		if err := m.Execute(ctx, "device_add", args, nil); err != nil {
			return err
		}
		present += max(s.VcpusCount, 1)
	}

	for i := 0; i < len(slots) && present > n; i++ {
		s := slots[i]
		if !strings.HasPrefix(s.QOMPath, peripheralPrefix) {
			continue
		}
		if err := m.Execute(ctx, "device_del", map[string]any{"id": path.Base(s.QOMPath)}, nil); err != nil {
			return err
		}
		present -= max(s.VcpusCount, 1)
	}

	if present != n {
		return fmt.Errorf("%w: cannot reach %d vcpus, %d present", backend.ErrInvalidArgument, n, present)
	}
	return nil
}

// GetVcpuMax implements backend.VcpuMaxGetter: the number of vcpu slots,
// or the present vcpus when the machine has no hot-pluggable slots.
func (h *Hypervisor) GetVcpuMax(ctx context.Context, dom backend.Domain) backend.Result[int] {
	if !dom.IsActive() {
		return backend.Decline[int]()
	}

	var total int
	err := h.withMonitor(ctx, dom, func(ctx context.Context, m monitor) error {
		var slots []hotpluggableCPU
		if err := m.Execute(ctx, "query-hotpluggable-cpus", nil, &slots); err == nil && len(slots) > 0 {
			for _, s := range slots {
				total += max(s.VcpusCount, 1)
			}
			return nil
		}
		var cpus []cpuInfoFast
		if err := m.Execute(ctx, "query-cpus-fast", nil, &cpus); err != nil {
			return err
		}
		total = len(cpus)
		return nil
	})
	return backend.Check(total, err)
}

func cpuSetFromMap(cpumap []byte) unix.CPUSet {
	var set unix.CPUSet
	for cpu := 0; cpu < len(cpumap)*8; cpu++ {
		if cpumap[cpu/8]&(1<<(uint(cpu)%8)) != 0 {
			set.Set(cpu)
		}
	}
	return set
}

func fillMap(row []byte, set *unix.CPUSet) {
	for cpu := 0; cpu < len(row)*8; cpu++ {
		if set.IsSet(cpu) {
			row[cpu/8] |= 1 << (uint(cpu) % 8)
		}
	}
}
