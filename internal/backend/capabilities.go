package backend

import (
	"context"

	"github.com/google/uuid"
)

// Capabilities taking part in fallback chains return Result so that an
// adapter can decline without masking real failures.

// IDLookup resolves live numeric ids.
type IDLookup interface {
	LookupByID(ctx context.Context, id int) Result[Domain]
}

// UUIDLookup resolves UUIDs. A domain unknown to the adapter is a decline.
type UUIDLookup interface {
	LookupByUUID(ctx context.Context, id uuid.UUID) Result[Domain]
}

// NameLookup resolves names. A domain unknown to the adapter is a decline.
type NameLookup interface {
	LookupByName(ctx context.Context, name string) Result[Domain]
}

// DomainCreator starts a defined domain.
type DomainCreator interface {
	Create(ctx context.Context, dom Domain) Result[Void]
}

// Definer stores a domain definition.
type Definer interface {
	DefineXML(ctx context.Context, xml string) Result[Domain]
}

// Undefiner removes a domain definition.
type Undefiner interface {
	Undefine(ctx context.Context, dom Domain) Result[Void]
}

// DefinedLister enumerates inactive defined domains.
type DefinedLister interface {
	ListDefined(ctx context.Context) Result[[]string]
	NumDefined(ctx context.Context) Result[int]
}

// DeviceAttacher adds and removes devices.
type DeviceAttacher interface {
	AttachDevice(ctx context.Context, dom Domain, xml string, flags DeviceFlags) Result[Void]
	DetachDevice(ctx context.Context, dom Domain, xml string, flags DeviceFlags) Result[Void]
}

// VcpuPinner changes the affinity of one vcpu.
type VcpuPinner interface {
	PinVcpu(ctx context.Context, dom Domain, vcpu uint32, cpumap []byte) Result[Void]
}

// VcpuList is the answer of GetVcpus. CPUMaps holds one row of mapLen bytes
// per entry in Info.
type VcpuList struct {
	Info    []VcpuInfo
	CPUMaps []byte
}

// VcpuGetter reports vcpu state and affinity.
type VcpuGetter interface {
	GetVcpus(ctx context.Context, dom Domain, maxInfo, mapLen int) Result[VcpuList]
}

// VcpuSetter changes a vcpu count.
type VcpuSetter interface {
	SetVcpusFlags(ctx context.Context, dom Domain, n uint, flags VcpuFlags) Result[Void]
}

// VcpuFlagsGetter reads a vcpu count.
type VcpuFlagsGetter interface {
	GetVcpusFlags(ctx context.Context, dom Domain, flags VcpuFlags) Result[int]
}

// VcpuMaxGetter reads the maximum vcpu count of a running domain.
type VcpuMaxGetter interface {
	GetVcpuMax(ctx context.Context, dom Domain) Result[int]
}

// SchedType names a scheduler and its tunable count.
type SchedType struct {
	Name    string
	NParams int
}

// Scheduler reads and writes scheduler tunables.
type Scheduler interface {
	SchedulerType(ctx context.Context, dom Domain) Result[SchedType]
	SchedulerParams(ctx context.Context, dom Domain) Result[[]SchedParam]
	SetSchedulerParams(ctx context.Context, dom Domain, params []SchedParam) Result[Void]
}

// NodeInformer describes the host.
type NodeInformer interface {
	NodeInfo(ctx context.Context) Result[NodeInfo]
}

// Capabilities routed to exactly one adapter return plain values.

// OSTyper reports the guest OS type.
type OSTyper interface {
	OSType(ctx context.Context, dom Domain) (string, error)
}

// InfoGetter reports run state and resource summaries.
type InfoGetter interface {
	Info(ctx context.Context, dom Domain) (Info, error)
	State(ctx context.Context, dom Domain) (State, error)
}

// MemoryManager reads and writes memory sizes in KiB.
type MemoryManager interface {
	MaxMemory(ctx context.Context, dom Domain) (uint64, error)
	SetMaxMemory(ctx context.Context, dom Domain, kib uint64) error
	SetMemory(ctx context.Context, dom Domain, kib uint64) error
}

// Autostarter reads and writes the autostart flag.
type Autostarter interface {
	Autostart(ctx context.Context, dom Domain) (bool, error)
	SetAutostart(ctx context.Context, dom Domain, on bool) error
}

// XMLDescriber renders a domain description. A non-empty cpus is a
// range-formatted CPU set to report as the vcpu placement.
type XMLDescriber interface {
	XMLDesc(ctx context.Context, dom Domain, flags uint32, cpus string) (string, error)
}

// LifecycleController changes the run state of a domain.
type LifecycleController interface {
	CreateXML(ctx context.Context, xml string, flags uint32) (Domain, error)
	Suspend(ctx context.Context, dom Domain) error
	Resume(ctx context.Context, dom Domain) error
	Shutdown(ctx context.Context, dom Domain) error
	Reboot(ctx context.Context, dom Domain, flags uint32) error
	Destroy(ctx context.Context, dom Domain) error
}

// Saver moves domain memory images to and from files.
type Saver interface {
	Save(ctx context.Context, dom Domain, path string) error
	Restore(ctx context.Context, path string) error
	CoreDump(ctx context.Context, dom Domain, path string, flags uint32) error
}

// DeviceUpdater changes an attached device in place.
type DeviceUpdater interface {
	UpdateDevice(ctx context.Context, dom Domain, xml string, flags DeviceFlags) error
}

// Versioner reports the hypervisor version as major*1000000+minor*1000+micro.
type Versioner interface {
	Version(ctx context.Context) (uint64, error)
}

// DomainLister enumerates running domains.
type DomainLister interface {
	ListDomains(ctx context.Context) ([]int, error)
}

// FreeMemoryReporter reports free host memory in bytes.
type FreeMemoryReporter interface {
	FreeMemory(ctx context.Context) (uint64, error)
}
