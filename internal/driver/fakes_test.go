package driver

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/jbweber/vmux/internal/backend"
	"github.com/jbweber/vmux/internal/config"
)

// callLog records adapter calls across every fake of one test, in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

func (l *callLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
}

// fakeBackend implements only the mandatory part of an adapter.
type fakeBackend struct {
	id       backend.ID
	log      *callLog
	openErr  error
	closeErr error
	params   backend.OpenParams
}

func (f *fakeBackend) ID() backend.ID {
	return f.id
}

func (f *fakeBackend) Open(_ context.Context, p backend.OpenParams) error {
	f.log.add("open %s", f.id)
	if f.openErr != nil {
		return f.openErr
	}
	f.params = p
	return nil
}

func (f *fakeBackend) Close() error {
	f.log.add("close %s", f.id)
	return f.closeErr
}

// fakeAdapter implements every capability. Result-returning calls decline
// unless their function field is set.
type fakeAdapter struct {
	*fakeBackend

	lookupByID    func(id int) backend.Result[backend.Domain]
	lookupByUUID  func(id uuid.UUID) backend.Result[backend.Domain]
	lookupByName  func(name string) backend.Result[backend.Domain]
	create        func(dom backend.Domain) backend.Result[backend.Void]
	define        func(xml string) backend.Result[backend.Domain]
	undefine      func(dom backend.Domain) backend.Result[backend.Void]
	listDefined   func() backend.Result[[]string]
	attach        func(xml string, flags backend.DeviceFlags) backend.Result[backend.Void]
	detach        func(xml string, flags backend.DeviceFlags) backend.Result[backend.Void]
	pin           func(vcpu uint32, cpumap []byte) backend.Result[backend.Void]
	getVcpus      func(maxInfo, mapLen int) backend.Result[backend.VcpuList]
	setVcpus      func(n uint, flags backend.VcpuFlags) backend.Result[backend.Void]
	getVcpusFlags func(flags backend.VcpuFlags) backend.Result[int]
	getVcpuMax    func() backend.Result[int]
	schedType     func() backend.Result[backend.SchedType]
	schedParams   func() backend.Result[[]backend.SchedParam]
	setSched      func(params []backend.SchedParam) backend.Result[backend.Void]
	nodeInfo      func() backend.Result[backend.NodeInfo]

	info      backend.Info
	osType    string
	maxMemKiB uint64
	autostart bool
	xml       string
	restore   error
	watching  bool
}

func newFakeAdapter(id backend.ID, log *callLog) *fakeAdapter {
	return &fakeAdapter{fakeBackend: &fakeBackend{id: id, log: log}}
}

func (f *fakeAdapter) LookupByID(_ context.Context, id int) backend.Result[backend.Domain] {
	f.log.add("lookup_by_id %s", f.id)
	if f.lookupByID == nil {
		return backend.Decline[backend.Domain]()
	}
	return f.lookupByID(id)
}

func (f *fakeAdapter) LookupByUUID(_ context.Context, id uuid.UUID) backend.Result[backend.Domain] {
	f.log.add("lookup_by_uuid %s", f.id)
	if f.lookupByUUID == nil {
		return backend.Decline[backend.Domain]()
	}
	return f.lookupByUUID(id)
}

func (f *fakeAdapter) LookupByName(_ context.Context, name string) backend.Result[backend.Domain] {
	f.log.add("lookup_by_name %s", f.id)
	if f.lookupByName == nil {
		return backend.Decline[backend.Domain]()
	}
	return f.lookupByName(name)
}

func (f *fakeAdapter) Create(_ context.Context, dom backend.Domain) backend.Result[backend.Void] {
	f.log.add("create %s", f.id)
	if f.create == nil {
		return backend.Decline[backend.Void]()
	}
	return f.create(dom)
}

func (f *fakeAdapter) DefineXML(_ context.Context, xml string) backend.Result[backend.Domain] {
	f.log.add("define %s", f.id)
	if f.define == nil {
		return backend.Decline[backend.Domain]()
	}
	return f.define(xml)
}

func (f *fakeAdapter) Undefine(_ context.Context, dom backend.Domain) backend.Result[backend.Void] {
	f.log.add("undefine %s", f.id)
	if f.undefine == nil {
		return backend.Decline[backend.Void]()
	}
	return f.undefine(dom)
}

func (f *fakeAdapter) ListDefined(context.Context) backend.Result[[]string] {
	f.log.add("list_defined %s", f.id)
	if f.listDefined == nil {
		return backend.Decline[[]string]()
	}
	return f.listDefined()
}

func (f *fakeAdapter) NumDefined(context.Context) backend.Result[int] {
	f.log.add("num_defined %s", f.id)
	if f.listDefined == nil {
		return backend.Decline[int]()
	}
	r := f.listDefined()
	return backend.Result[int]{Value: len(r.Value), Status: r.Status, Err: r.Err}
}

func (f *fakeAdapter) AttachDevice(_ context.Context, _ backend.Domain, xml string, flags backend.DeviceFlags) backend.Result[backend.Void] {
	f.log.add("attach %s flags=%d", f.id, flags)
	if f.attach == nil {
		return backend.Decline[backend.Void]()
	}
	return f.attach(xml, flags)
}

func (f *fakeAdapter) DetachDevice(_ context.Context, _ backend.Domain, xml string, flags backend.DeviceFlags) backend.Result[backend.Void] {
	f.log.add("detach %s flags=%d", f.id, flags)
	if f.detach == nil {
		return backend.Decline[backend.Void]()
	}
	return f.detach(xml, flags)
}

func (f *fakeAdapter) PinVcpu(_ context.Context, _ backend.Domain, vcpu uint32, cpumap []byte) backend.Result[backend.Void] {
	f.log.add("pin_vcpu %s", f.id)
	if f.pin == nil {
		return backend.Decline[backend.Void]()
	}
	return f.pin(vcpu, cpumap)
}

func (f *fakeAdapter) GetVcpus(_ context.Context, _ backend.Domain, maxInfo, mapLen int) backend.Result[backend.VcpuList] {
	f.log.add("get_vcpus %s", f.id)
	if f.getVcpus == nil {
		return backend.Decline[backend.VcpuList]()
	}
	return f.getVcpus(maxInfo, mapLen)
}

func (f *fakeAdapter) SetVcpusFlags(_ context.Context, _ backend.Domain, n uint, flags backend.VcpuFlags) backend.Result[backend.Void] {
	f.log.add("set_vcpus %s", f.id)
	if f.setVcpus == nil {
		return backend.Decline[backend.Void]()
	}
	return f.setVcpus(n, flags)
}

func (f *fakeAdapter) GetVcpusFlags(_ context.Context, _ backend.Domain, flags backend.VcpuFlags) backend.Result[int] {
	f.log.add("get_vcpus_flags %s", f.id)
	if f.getVcpusFlags == nil {
		return backend.Decline[int]()
	}
	return f.getVcpusFlags(flags)
}

func (f *fakeAdapter) GetVcpuMax(context.Context, backend.Domain) backend.Result[int] {
	f.log.add("get_vcpu_max %s", f.id)
	if f.getVcpuMax == nil {
		return backend.Decline[int]()
	}
	return f.getVcpuMax()
}

func (f *fakeAdapter) SchedulerType(context.Context, backend.Domain) backend.Result[backend.SchedType] {
	f.log.add("sched_type %s", f.id)
	if f.schedType == nil {
		return backend.Decline[backend.SchedType]()
	}
	return f.schedType()
}

func (f *fakeAdapter) SchedulerParams(context.Context, backend.Domain) backend.Result[[]backend.SchedParam] {
	f.log.add("sched_params %s", f.id)
	if f.schedParams == nil {
		return backend.Decline[[]backend.SchedParam]()
	}
	return f.schedParams()
}

func (f *fakeAdapter) SetSchedulerParams(_ context.Context, _ backend.Domain, params []backend.SchedParam) backend.Result[backend.Void] {
	f.log.add("set_sched %s", f.id)
	if f.setSched == nil {
		return backend.Decline[backend.Void]()
	}
	return f.setSched(params)
}

func (f *fakeAdapter) NodeInfo(context.Context) backend.Result[backend.NodeInfo] {
	f.log.add("node_info %s", f.id)
	if f.nodeInfo == nil {
		return backend.Decline[backend.NodeInfo]()
	}
	return f.nodeInfo()
}

func (f *fakeAdapter) Info(context.Context, backend.Domain) (backend.Info, error) {
	f.log.add("info %s", f.id)
	return f.info, nil
}

func (f *fakeAdapter) State(context.Context, backend.Domain) (backend.State, error) {
	f.log.add("state %s", f.id)
	return f.info.State, nil
}

func (f *fakeAdapter) OSType(context.Context, backend.Domain) (string, error) {
	f.log.add("os_type %s", f.id)
	return f.osType, nil
}

func (f *fakeAdapter) MaxMemory(context.Context, backend.Domain) (uint64, error) {
	f.log.add("max_memory %s", f.id)
	return f.maxMemKiB, nil
}

func (f *fakeAdapter) SetMaxMemory(_ context.Context, _ backend.Domain, kib uint64) error {
	f.log.add("set_max_memory %s %d", f.id, kib)
	return nil
}

func (f *fakeAdapter) SetMemory(_ context.Context, _ backend.Domain, kib uint64) error {
	f.log.add("set_memory %s %d", f.id, kib)
	return nil
}

func (f *fakeAdapter) Autostart(context.Context, backend.Domain) (bool, error) {
	f.log.add("autostart %s", f.id)
	return f.autostart, nil
}

func (f *fakeAdapter) SetAutostart(_ context.Context, _ backend.Domain, on bool) error {
	f.log.add("set_autostart %s %t", f.id, on)
	f.autostart = on
	return nil
}

func (f *fakeAdapter) XMLDesc(_ context.Context, _ backend.Domain, _ uint32, cpus string) (string, error) {
	f.log.add("xml_desc %s cpus=%s", f.id, cpus)
	return f.xml, nil
}

func (f *fakeAdapter) CreateXML(_ context.Context, _ string, _ uint32) (backend.Domain, error) {
	f.log.add("create_xml %s", f.id)
	return backend.Domain{ID: 1, Name: "transient"}, nil
}

func (f *fakeAdapter) Suspend(context.Context, backend.Domain) error {
	f.log.add("suspend %s", f.id)
	return nil
}

func (f *fakeAdapter) Resume(context.Context, backend.Domain) error {
	f.log.add("resume %s", f.id)
	return nil
}

func (f *fakeAdapter) Shutdown(context.Context, backend.Domain) error {
	f.log.add("shutdown %s", f.id)
	return nil
}

func (f *fakeAdapter) Reboot(context.Context, backend.Domain, uint32) error {
	f.log.add("reboot %s", f.id)
	return nil
}

func (f *fakeAdapter) Destroy(context.Context, backend.Domain) error {
	f.log.add("destroy %s", f.id)
	return nil
}

func (f *fakeAdapter) Save(_ context.Context, _ backend.Domain, path string) error {
	f.log.add("save %s %s", f.id, filepath.Base(path))
	return nil
}

func (f *fakeAdapter) Restore(_ context.Context, path string) error {
	f.log.add("restore %s %s", f.id, filepath.Base(path))
	return f.restore
}

func (f *fakeAdapter) CoreDump(_ context.Context, _ backend.Domain, path string, _ uint32) error {
	f.log.add("core_dump %s %s", f.id, filepath.Base(path))
	return nil
}

func (f *fakeAdapter) UpdateDevice(_ context.Context, _ backend.Domain, _ string, flags backend.DeviceFlags) error {
	f.log.add("update_device %s flags=%d", f.id, flags)
	return nil
}

func (f *fakeAdapter) Version(context.Context) (uint64, error) {
	return 9_002_000, nil
}

func (f *fakeAdapter) ListDomains(context.Context) ([]int, error) {
	return []int{101, 202}, nil
}

func (f *fakeAdapter) FreeMemory(context.Context) (uint64, error) {
	return 1 << 30, nil
}

func (f *fakeAdapter) Watching() bool {
	return f.watching
}

// fakeDaemon also reports a config version.
type fakeDaemon struct {
	*fakeAdapter
	version int
}

func (f *fakeDaemon) ConfigVersion() int {
	return f.version
}

// fixture is a driver wired to one fake per registry slot.
type fixture struct {
	log      *callLog
	cfg      *config.Config
	hyp      *fakeAdapter
	daemon   *fakeDaemon
	store    *fakeAdapter
	watch    *fakeAdapter
	registry Registry
	drv      *Driver
}

// newFixture builds a privileged driver whose daemon reports version. The
// hypervisor reports a 4 cpu single-cell node.
func newFixture(t *testing.T, version int) *fixture {
	t.Helper()

	dir := t.TempDir()
	log := &callLog{}
	cfg := config.Default()
	cfg.SaveDir = filepath.Join(dir, "save")
	cfg.PersistentConfigDir = filepath.Join(dir, "persistent")
	cfg.Hypervisor.Device = filepath.Join(dir, "kvm")

	f := &fixture{
		log:    log,
		cfg:    cfg,
		hyp:    newFakeAdapter(backend.Hypervisor, log),
		daemon: &fakeDaemon{fakeAdapter: newFakeAdapter(backend.Daemon, log), version: version},
		store:  newFakeAdapter(backend.FileStore, log),
		watch:  newFakeAdapter(backend.Watch, log),
	}
	f.hyp.nodeInfo = func() backend.Result[backend.NodeInfo] {
		return backend.Ok(backend.NodeInfo{CPUs: 4, Nodes: 1, Sockets: 1, Cores: 4, Threads: 1})
	}
	f.watch.watching = true

	f.registry = Registry{
		{ID: backend.Hypervisor, New: func() backend.Backend { return f.hyp }},
		{ID: backend.Daemon, New: func() backend.Backend { return f.daemon }},
		{ID: backend.FileStore, New: func() backend.Backend { return f.store }},
		{ID: backend.Watch, New: func() backend.Backend { return f.watch }},
	}
	f.drv = New(cfg, true, WithRegistry(f.registry))
	return f
}

// open opens a connection and clears the call log.
func (f *fixture) open(t *testing.T) *Conn {
	t.Helper()
	conn, err := f.drv.Open(context.Background(), "vmux:///")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	f.log.reset()
	return conn
}

var (
	testUUID    = uuid.MustParse("8d3f5e0a-2b7c-4f1e-9a6d-0c4b2e8f1a37")
	runningDom  = backend.Domain{ID: 7, UUID: testUUID, Name: "web"}
	inactiveDom = backend.Domain{ID: -1, UUID: testUUID, Name: "web"}
)
