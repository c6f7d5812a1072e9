package daemon

import (
	"github.com/digitalocean/go-libvirt"
)

// libvirtClient defines the daemon operations used by the adapter.
// This wraps operations from *libvirt.Libvirt to allow for testing.
//
// In production, this is satisfied by *libvirt.Libvirt directly.
// In tests, this is satisfied by mock implementations.
type libvirtClient interface {
	ConnectGetLibVersion() (uint64, error)
	ConnectListDefinedDomains(maxnames int32) ([]string, error)
	ConnectNumOfDefinedDomains() (int32, error)
	NodeGetInfo() ([32]int8, uint64, int32, int32, int32, int32, int32, int32, error)

	DomainLookupByName(name string) (libvirt.Domain, error)
	DomainLookupByUUID(uuid libvirt.UUID) (libvirt.Domain, error)

	DomainDefineXML(xml string) (libvirt.Domain, error)
	DomainUndefine(dom libvirt.Domain) error
	DomainCreate(dom libvirt.Domain) error
	DomainCreateXML(xml string, flags libvirt.DomainCreateFlags) (libvirt.Domain, error)
	DomainSuspend(dom libvirt.Domain) error
	DomainResume(dom libvirt.Domain) error
	DomainShutdown(dom libvirt.Domain) error
	DomainReboot(dom libvirt.Domain, flags libvirt.DomainRebootFlagValues) error
	DomainDestroy(dom libvirt.Domain) error
	DomainSave(dom libvirt.Domain, to string) error
	DomainRestore(from string) error
	DomainCoreDump(dom libvirt.Domain, to string, flags libvirt.DomainCoreDumpFlags) error

	DomainGetInfo(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error)
	DomainGetState(dom libvirt.Domain, flags uint32) (int32, int32, error)
	DomainGetOsType(dom libvirt.Domain) (string, error)
	DomainGetMaxMemory(dom libvirt.Domain) (uint64, error)
	DomainSetMaxMemory(dom libvirt.Domain, memory uint64) error
	DomainSetMemory(dom libvirt.Domain, memory uint64) error
	DomainGetAutostart(dom libvirt.Domain) (int32, error)
	DomainSetAutostart(dom libvirt.Domain, autostart int32) error
	DomainGetXMLDesc(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error)

	DomainSetVcpusFlags(dom libvirt.Domain, nvcpus uint32, flags uint32) error
	DomainGetVcpusFlags(dom libvirt.Domain, flags uint32) (int32, error)
	DomainPinVcpu(dom libvirt.Domain, vcpu uint32, cpumap []byte) error
	DomainGetVcpus(dom libvirt.Domain, maxinfo int32, maplen int32) ([]libvirt.VcpuInfo, []byte, error)

	DomainGetSchedulerType(dom libvirt.Domain) (string, int32, error)
	DomainGetSchedulerParameters(dom libvirt.Domain, nparams int32) ([]libvirt.TypedParam, error)
	DomainSetSchedulerParameters(dom libvirt.Domain, params []libvirt.TypedParam) error

	DomainAttachDeviceFlags(dom libvirt.Domain, xml string, flags uint32) error
	DomainDetachDeviceFlags(dom libvirt.Domain, xml string, flags uint32) error
	DomainUpdateDeviceFlags(dom libvirt.Domain, xml string, flags libvirt.DomainDeviceModifyFlags) error

	Disconnect() error
}
