package daemon

import (
	"sync"

	"github.com/digitalocean/go-libvirt"
)

// mockLibvirtClient is a mock implementation of the libvirtClient interface for testing.
// Unset funcs succeed with zero values.
type mockLibvirtClient struct {
	mu sync.Mutex

	// Configurable behavior
	connectGetLibVersionFunc         func() (uint64, error)
	connectListDefinedDomainsFunc    func(maxnames int32) ([]string, error)
	connectNumOfDefinedDomainsFunc   func() (int32, error)
	nodeGetInfoFunc                  func() ([32]int8, uint64, int32, int32, int32, int32, int32, int32, error)
	domainLookupByNameFunc           func(name string) (libvirt.Domain, error)
	domainLookupByUUIDFunc           func(uuid libvirt.UUID) (libvirt.Domain, error)
	domainDefineXMLFunc              func(xml string) (libvirt.Domain, error)
	domainUndefineFunc               func(dom libvirt.Domain) error
	domainCreateFunc                 func(dom libvirt.Domain) error
	domainCreateXMLFunc              func(xml string, flags libvirt.DomainCreateFlags) (libvirt.Domain, error)
	domainRestoreFunc                func(from string) error
	domainGetInfoFunc                func(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error)
	domainGetStateFunc               func(dom libvirt.Domain, flags uint32) (int32, int32, error)
	domainGetAutostartFunc           func(dom libvirt.Domain) (int32, error)
	domainGetXMLDescFunc             func(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error)
	domainSetVcpusFlagsFunc          func(dom libvirt.Domain, nvcpus uint32, flags uint32) error
	domainGetVcpusFlagsFunc          func(dom libvirt.Domain, flags uint32) (int32, error)
	domainPinVcpuFunc                func(dom libvirt.Domain, vcpu uint32, cpumap []byte) error
	domainGetVcpusFunc               func(dom libvirt.Domain, maxinfo int32, maplen int32) ([]libvirt.VcpuInfo, []byte, error)
	domainGetSchedulerTypeFunc       func(dom libvirt.Domain) (string, int32, error)
	domainGetSchedulerParametersFunc func(dom libvirt.Domain, nparams int32) ([]libvirt.TypedParam, error)
	domainSetSchedulerParametersFunc func(dom libvirt.Domain, params []libvirt.TypedParam) error
	domainAttachDeviceFlagsFunc      func(dom libvirt.Domain, xml string, flags uint32) error
	disconnectFunc                   func() error

	// Call tracking
	calls                         []string
	domainSetAutostartCalls       []int32
	domainSetSchedulerParamsCalls [][]libvirt.TypedParam
	domainAttachDeviceFlagsCalls  []uint32
}

func newMockLibvirtClient() *mockLibvirtClient {
	return &mockLibvirtClient{}
}

func (m *mockLibvirtClient) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *mockLibvirtClient) called(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (m *mockLibvirtClient) ConnectGetLibVersion() (uint64, error) {
	m.record("ConnectGetLibVersion")
	if m.connectGetLibVersionFunc != nil {
		return m.connectGetLibVersionFunc()
	}
	return 10_000_000, nil
}

func (m *mockLibvirtClient) ConnectListDefinedDomains(maxnames int32) ([]string, error) {
	m.record("ConnectListDefinedDomains")
	if m.connectListDefinedDomainsFunc != nil {
		return m.connectListDefinedDomainsFunc(maxnames)
	}
	return nil, nil
}

func (m *mockLibvirtClient) ConnectNumOfDefinedDomains() (int32, error) {
	m.record("ConnectNumOfDefinedDomains")
	if m.connectNumOfDefinedDomainsFunc != nil {
		return m.connectNumOfDefinedDomainsFunc()
	}
	return 0, nil
}

func (m *mockLibvirtClient) NodeGetInfo() ([32]int8, uint64, int32, int32, int32, int32, int32, int32, error) {
	m.record("NodeGetInfo")
	if m.nodeGetInfoFunc != nil {
		return m.nodeGetInfoFunc()
	}
	return [32]int8{}, 0, 0, 0, 0, 0, 0, 0, nil
}

func (m *mockLibvirtClient) DomainLookupByName(name string) (libvirt.Domain, error) {
	m.record("DomainLookupByName")
	if m.domainLookupByNameFunc != nil {
		return m.domainLookupByNameFunc(name)
	}
	return libvirt.Domain{Name: name, ID: -1}, nil
}

func (m *mockLibvirtClient) DomainLookupByUUID(uuid libvirt.UUID) (libvirt.Domain, error) {
	m.record("DomainLookupByUUID")
	if m.domainLookupByUUIDFunc != nil {
		return m.domainLookupByUUIDFunc(uuid)
	}
	return libvirt.Domain{UUID: uuid, ID: -1}, nil
}

func (m *mockLibvirtClient) DomainDefineXML(xml string) (libvirt.Domain, error) {
	m.record("DomainDefineXML")
	if m.domainDefineXMLFunc != nil {
		return m.domainDefineXMLFunc(xml)
	}
	return libvirt.Domain{Name: "test-vm", ID: -1}, nil
}

func (m *mockLibvirtClient) DomainUndefine(dom libvirt.Domain) error {
	m.record("DomainUndefine")
	if m.domainUndefineFunc != nil {
		return m.domainUndefineFunc(dom)
	}
	return nil
}

func (m *mockLibvirtClient) DomainCreate(dom libvirt.Domain) error {
	m.record("DomainCreate")
	if m.domainCreateFunc != nil {
		return m.domainCreateFunc(dom)
	}
	return nil
}

func (m *mockLibvirtClient) DomainCreateXML(xml string, flags libvirt.DomainCreateFlags) (libvirt.Domain, error) {
	m.record("DomainCreateXML")
	if m.domainCreateXMLFunc != nil {
		return m.domainCreateXMLFunc(xml, flags)
	}
	return libvirt.Domain{Name: "test-vm", ID: 1}, nil
}

func (m *mockLibvirtClient) DomainSuspend(libvirt.Domain) error {
	m.record("DomainSuspend")
	return nil
}

func (m *mockLibvirtClient) DomainResume(libvirt.Domain) error {
	m.record("DomainResume")
	return nil
}

func (m *mockLibvirtClient) DomainShutdown(libvirt.Domain) error {
	m.record("DomainShutdown")
	return nil
}

func (m *mockLibvirtClient) DomainReboot(libvirt.Domain, libvirt.DomainRebootFlagValues) error {
	m.record("DomainReboot")
	return nil
}

func (m *mockLibvirtClient) DomainDestroy(libvirt.Domain) error {
	m.record("DomainDestroy")
	return nil
}

func (m *mockLibvirtClient) DomainSave(libvirt.Domain, string) error {
	m.record("DomainSave")
	return nil
}

func (m *mockLibvirtClient) DomainRestore(from string) error {
	m.record("DomainRestore")
	if m.domainRestoreFunc != nil {
		return m.domainRestoreFunc(from)
	}
	return nil
}

func (m *mockLibvirtClient) DomainCoreDump(libvirt.Domain, string, libvirt.DomainCoreDumpFlags) error {
	m.record("DomainCoreDump")
	return nil
}

func (m *mockLibvirtClient) DomainGetInfo(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
	m.record("DomainGetInfo")
	if m.domainGetInfoFunc != nil {
		return m.domainGetInfoFunc(dom)
	}
	return 0, 0, 0, 0, 0, nil
}

func (m *mockLibvirtClient) DomainGetState(dom libvirt.Domain, flags uint32) (int32, int32, error) {
	m.record("DomainGetState")
	if m.domainGetStateFunc != nil {
		return m.domainGetStateFunc(dom, flags)
	}
	return 1, 0, nil // VIR_DOMAIN_RUNNING = 1
}

func (m *mockLibvirtClient) DomainGetOsType(libvirt.Domain) (string, error) {
	m.record("DomainGetOsType")
	return "hvm", nil
}

func (m *mockLibvirtClient) DomainGetMaxMemory(libvirt.Domain) (uint64, error) {
	m.record("DomainGetMaxMemory")
	return 0, nil
}

func (m *mockLibvirtClient) DomainSetMaxMemory(libvirt.Domain, uint64) error {
	m.record("DomainSetMaxMemory")
	return nil
}

func (m *mockLibvirtClient) DomainSetMemory(libvirt.Domain, uint64) error {
	m.record("DomainSetMemory")
	return nil
}

func (m *mockLibvirtClient) DomainGetAutostart(dom libvirt.Domain) (int32, error) {
	m.record("DomainGetAutostart")
	if m.domainGetAutostartFunc != nil {
		return m.domainGetAutostartFunc(dom)
	}
	return 0, nil
}

func (m *mockLibvirtClient) DomainSetAutostart(_ libvirt.Domain, autostart int32) error {
	m.record("DomainSetAutostart")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainSetAutostartCalls = append(m.domainSetAutostartCalls, autostart)
	return nil
}

func (m *mockLibvirtClient) DomainGetXMLDesc(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error) {
	m.record("DomainGetXMLDesc")
	if m.domainGetXMLDescFunc != nil {
		return m.domainGetXMLDescFunc(dom, flags)
	}
	return "<domain type='kvm'><name>" + dom.Name + "</name></domain>", nil
}

func (m *mockLibvirtClient) DomainSetVcpusFlags(dom libvirt.Domain, nvcpus uint32, flags uint32) error {
	m.record("DomainSetVcpusFlags")
	if m.domainSetVcpusFlagsFunc != nil {
		return m.domainSetVcpusFlagsFunc(dom, nvcpus, flags)
	}
	return nil
}

func (m *mockLibvirtClient) DomainGetVcpusFlags(dom libvirt.Domain, flags uint32) (int32, error) {
	m.record("DomainGetVcpusFlags")
	if m.domainGetVcpusFlagsFunc != nil {
		return m.domainGetVcpusFlagsFunc(dom, flags)
	}
	return 1, nil
}

func (m *mockLibvirtClient) DomainPinVcpu(dom libvirt.Domain, vcpu uint32, cpumap []byte) error {
	m.record("DomainPinVcpu")
	if m.domainPinVcpuFunc != nil {
		return m.domainPinVcpuFunc(dom, vcpu, cpumap)
	}
	return nil
}

func (m *mockLibvirtClient) DomainGetVcpus(dom libvirt.Domain, maxinfo int32, maplen int32) ([]libvirt.VcpuInfo, []byte, error) {
	m.record("DomainGetVcpus")
	if m.domainGetVcpusFunc != nil {
		return m.domainGetVcpusFunc(dom, maxinfo, maplen)
	}
	return nil, nil, nil
}

func (m *mockLibvirtClient) DomainGetSchedulerType(dom libvirt.Domain) (string, int32, error) {
	m.record("DomainGetSchedulerType")
	if m.domainGetSchedulerTypeFunc != nil {
		return m.domainGetSchedulerTypeFunc(dom)
	}
	return "posix", 0, nil
}

func (m *mockLibvirtClient) DomainGetSchedulerParameters(dom libvirt.Domain, nparams int32) ([]libvirt.TypedParam, error) {
	m.record("DomainGetSchedulerParameters")
	if m.domainGetSchedulerParametersFunc != nil {
		return m.domainGetSchedulerParametersFunc(dom, nparams)
	}
	return nil, nil
}

func (m *mockLibvirtClient) DomainSetSchedulerParameters(dom libvirt.Domain, params []libvirt.TypedParam) error {
	m.record("DomainSetSchedulerParameters")
	m.mu.Lock()
	m.domainSetSchedulerParamsCalls = append(m.domainSetSchedulerParamsCalls, params)
	m.mu.Unlock()
	if m.domainSetSchedulerParametersFunc != nil {
		return m.domainSetSchedulerParametersFunc(dom, params)
	}
	return nil
}

func (m *mockLibvirtClient) DomainAttachDeviceFlags(dom libvirt.Domain, xml string, flags uint32) error {
	m.record("DomainAttachDeviceFlags")
	m.mu.Lock()
	m.domainAttachDeviceFlagsCalls = append(m.domainAttachDeviceFlagsCalls, flags)
	m.mu.Unlock()
	if m.domainAttachDeviceFlagsFunc != nil {
		return m.domainAttachDeviceFlagsFunc(dom, xml, flags)
	}
	return nil
}

func (m *mockLibvirtClient) DomainDetachDeviceFlags(libvirt.Domain, string, uint32) error {
	m.record("DomainDetachDeviceFlags")
	return nil
}

func (m *mockLibvirtClient) DomainUpdateDeviceFlags(libvirt.Domain, string, libvirt.DomainDeviceModifyFlags) error {
	m.record("DomainUpdateDeviceFlags")
	return nil
}

func (m *mockLibvirtClient) Disconnect() error {
	m.record("Disconnect")
	if m.disconnectFunc != nil {
		return m.disconnectFunc()
	}
	return nil
}
