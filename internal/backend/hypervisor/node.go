package hypervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/jbweber/vmux/internal/backend"
)

// NodeInfo implements backend.NodeInformer from the host's CPU and memory
// inventory.
func (h *Hypervisor) NodeInfo(ctx context.Context) backend.Result[backend.NodeInfo] {
	info, err := h.nodeInfo(ctx)
	return backend.Check(info, err)
}

func (h *Hypervisor) nodeInfo(ctx context.Context) (backend.NodeInfo, error) {
	cpus, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return backend.NodeInfo{}, fmt.Errorf("failed to read CPU info: %w", err)
	}
	logical, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return backend.NodeInfo{}, fmt.Errorf("failed to count CPUs: %w", err)
	}
	physical, err := cpu.CountsWithContext(ctx, false)
	if err != nil {
		return backend.NodeInfo{}, fmt.Errorf("failed to count cores: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return backend.NodeInfo{}, fmt.Errorf("failed to read memory info: %w", err)
	}
	arch, err := host.KernelArch()
	if err != nil {
		return backend.NodeInfo{}, fmt.Errorf("failed to read architecture: %w", err)
	}

	sockets := make(map[string]struct{})
	var mhz float64
	for _, c := range cpus {
		sockets[c.PhysicalID] = struct{}{}
		if c.Mhz > mhz {
			mhz = c.Mhz
		}
	}

	info := topology(logical, physical, len(sockets), h.numaNodes())
	info.Model = arch
	info.MemoryKiB = vm.Total / 1024
	info.MHz = int(mhz)
	return info, nil
}

// topology splits logical CPUs into nodes, sockets per node, cores per
// socket and threads per core. Every level is at least one.
func topology(logical, physical, sockets, nodes int) backend.NodeInfo {
	nodes = max(nodes, 1)
	sockets = max(sockets, 1)
	physical = max(physical, 1)

	return backend.NodeInfo{
		CPUs:    logical,
		Nodes:   nodes,
		Sockets: max(sockets/nodes, 1),
		Cores:   max(physical/sockets, 1),
		Threads: max(logical/physical, 1),
	}
}

func (h *Hypervisor) numaNodes() int {
	matches, err := filepath.Glob(filepath.Join(h.opts.SysDir, "devices/system/node/node[0-9]*"))
	if err != nil {
		return 1
	}
	return len(matches)
}

// FreeMemory implements backend.FreeMemoryReporter.
func (h *Hypervisor) FreeMemory(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read memory info: %w", err)
	}
	return vm.Free, nil
}

// Version implements backend.Versioner. The hypervisor lives in the kernel,
// so its version is the kernel release.
func (h *Hypervisor) Version(ctx context.Context) (uint64, error) {
	release, err := host.KernelVersionWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read kernel version: %w", err)
	}
	return parseVersion(release)
}

// parseVersion turns "6.8.12-300.fc40.x86_64" into 6008012.
func parseVersion(release string) (uint64, error) {
	core, _, _ := strings.Cut(release, "-")
	parts := strings.SplitN(core, ".", 3)

	var v [3]uint64
	for i := range parts {
		digits := parts[i]
		if j := strings.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' }); j >= 0 {
			digits = digits[:j]
		}
		n, err := strconv.ParseUint(digits, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("unparsable version %q", release)
		}
		v[i] = n
	}
	return v[0]*1_000_000 + v[1]*1_000 + v[2], nil
}
