package backend

import (
	"fmt"

	"github.com/google/uuid"
)

// Domain identifies a virtual machine.
type Domain struct {
	// ID is the live numeric id, or -1 when the domain is not running.
	ID   int
	UUID uuid.UUID
	Name string
}

// IsActive reports whether the domain has a live numeric id.
func (d Domain) IsActive() bool {
	return d.ID >= 0
}

// String formats the domain for logs.
func (d Domain) String() string {
	return fmt.Sprintf("%s(id=%d uuid=%s)", d.Name, d.ID, d.UUID)
}

// State is the run state of a domain. Values match libvirt's virDomainState.
type State int

const (
	StateNoState State = iota
	StateRunning
	StateBlocked
	StatePaused
	StateShutdown
	StateShutoff
	StateCrashed
	StatePMSuspended
)

// String converts the state to its human-readable form.
func (s State) String() string {
	switch s {
	case StateNoState:
		return "no state"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StatePaused:
		return "paused"
	case StateShutdown:
		return "shutdown"
	case StateShutoff:
		return "shutoff"
	case StateCrashed:
		return "crashed"
	case StatePMSuspended:
		return "pmsuspended"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Info is the summary returned by GetInfo.
type Info struct {
	State     State
	MaxMemKiB uint64
	MemoryKiB uint64
	NrVirtCPU uint16
	// CPUTime is the accumulated CPU time in nanoseconds.
	CPUTime uint64
}

// VcpuInfo describes one virtual CPU.
type VcpuInfo struct {
	Number  uint32
	State   int32
	CPUTime uint64
	// CPU is the physical CPU the vcpu last ran on, -1 if unknown.
	CPU int32
}

// VcpuState values reported in VcpuInfo.State.
const (
	VcpuOffline int32 = iota
	VcpuRunning
	VcpuBlocked
)

// NodeInfo describes the host.
type NodeInfo struct {
	Model     string
	MemoryKiB uint64
	CPUs      int
	MHz       int
	Nodes     int
	Sockets   int
	Cores     int
	Threads   int
}

// MaxCPUs is the number of CPU slots implied by the topology, which bounds
// the width of an affinity map.
func (n NodeInfo) MaxCPUs() int {
	return n.Nodes * n.Sockets * n.Cores * n.Threads
}

// SchedParam is one named scheduler tunable.
type SchedParam struct {
	Field string
	Value int64
}

// VcpuFlags select which vcpu count an operation reads or writes.
type VcpuFlags uint32

const (
	VcpuLive    VcpuFlags = 1 << 0
	VcpuConfig  VcpuFlags = 1 << 1
	VcpuMaximum VcpuFlags = 1 << 2
)

// DeviceFlags select whether a device change affects the running guest, the
// persistent configuration, or both.
type DeviceFlags uint32

const (
	DeviceModifyCurrent DeviceFlags = 0
	DeviceModifyLive    DeviceFlags = 1 << 0
	DeviceModifyConfig  DeviceFlags = 1 << 1
)

// Config versions reported by the daemon adapter.
const (
	ConfigVersionUnknown = -1
	ConfigVersion1       = 1
	ConfigVersion2       = 2
	ConfigVersion3       = 3
	ConfigVersion4       = 4

	// ConfigVersionLegacyMax is the newest version that still needs the
	// file store.
	ConfigVersionLegacyMax = ConfigVersion2

	// ConfigVersionManaged is the first version whose daemon owns inactive
	// domain configuration.
	ConfigVersionManaged = ConfigVersion3
)
