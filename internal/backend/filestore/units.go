package filestore

import (
	"fmt"
	"strings"

	"libvirt.org/go/libvirtxml"
)

// toKiB scales a memory value in the given libvirt unit to KiB. An empty
// unit means KiB.
func toKiB(value uint, unit string) (uint64, error) {
	v := uint64(value)
	switch strings.ToLower(unit) {
	case "b", "bytes":
		return v / 1024, nil
	case "", "k", "kib":
		return v, nil
	case "kb":
		return v * 1000 / 1024, nil
	case "m", "mib":
		return v << 10, nil
	case "mb":
		return v * 1000 * 1000 / 1024, nil
	case "g", "gib":
		return v << 20, nil
	case "gb":
		return v * 1000 * 1000 * 1000 / 1024, nil
	case "t", "tib":
		return v << 30, nil
	case "tb":
		return v * 1000 * 1000 * 1000 * 1000 / 1024, nil
	default:
		return 0, fmt.Errorf("unknown memory unit %q", unit)
	}
}

// maxMemoryKiB returns the configured memory of def.
func maxMemoryKiB(def *libvirtxml.Domain) (uint64, error) {
	if def.Memory == nil {
		return 0, nil
	}
	return toKiB(def.Memory.Value, def.Memory.Unit)
}

// currentMemoryKiB returns the initial balloon size, which defaults to the
// configured memory.
func currentMemoryKiB(def *libvirtxml.Domain) (uint64, error) {
	if def.CurrentMemory == nil {
		return maxMemoryKiB(def)
	}
	return toKiB(def.CurrentMemory.Value, def.CurrentMemory.Unit)
}

// vcpuCounts returns the current and maximum vcpu counts of def.
func vcpuCounts(def *libvirtxml.Domain) (current, maximum uint) {
	if def.VCPU == nil {
		return 1, 1
	}
	maximum = def.VCPU.Value
	if maximum == 0 {
		maximum = 1
	}
	current = def.VCPU.Current
	if current == 0 || current > maximum {
		current = maximum
	}
	return current, maximum
}
