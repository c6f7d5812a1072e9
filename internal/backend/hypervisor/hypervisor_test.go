package hypervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/jbweber/vmux/internal/backend"
)

var webUUID = uuid.MustParse("11111111-2222-3333-4444-555555555555")

func webGuest() guest {
	return guest{PID: 4242, Name: "web", UUID: webUUID}
}

func webDomain() backend.Domain {
	return backend.Domain{ID: 4242, UUID: webUUID, Name: "web"}
}

func twoVcpus() []cpuInfoFast {
	return []cpuInfoFast{
		{CPUIndex: 1, QOMPath: "/machine/unattached/device[1]", ThreadID: 5001},
		{CPUIndex: 0, QOMPath: "/machine/unattached/device[0]", ThreadID: 5000},
	}
}

func TestParseCmdline(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantOK   bool
		wantName string
		wantUUID uuid.UUID
	}{
		{
			name:     "guest option form",
			args:     []string{"qemu-system-x86_64", "-name", "guest=web,debug-threads=on", "-uuid", webUUID.String()},
			wantOK:   true,
			wantName: "web",
			wantUUID: webUUID,
		},
		{
			name:     "plain name",
			args:     []string{"qemu-system-x86_64", "-uuid", webUUID.String(), "-name", "db"},
			wantOK:   true,
			wantName: "db",
			wantUUID: webUUID,
		},
		{
			name:     "missing uuid is derived from the name",
			args:     []string{"qemu-system-x86_64", "-name", "cache"},
			wantOK:   true,
			wantName: "cache",
			wantUUID: uuid.NewSHA1(nameNamespace, []byte("cache")),
		},
		{
			name:   "no name",
			args:   []string{"qemu-system-x86_64", "-uuid", webUUID.String()},
			wantOK: false,
		},
		{
			name:   "dangling flag",
			args:   []string{"qemu-system-x86_64", "-name"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, ok := parseCmdline(tt.args)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantName, g.Name)
			assert.Equal(t, tt.wantUUID, g.UUID)
		})
	}
}

func TestParseThreadStat(t *testing.T) {
	fields := make([]string, 50)
	for i := range fields {
		fields[i] = "0"
	}
	fields[0] = "S"
	fields[11] = "250"
	fields[12] = "50"
	fields[36] = "3"
	line := "5000 (CPU 0/KVM) " + strings.Join(fields, " ") + "\n"

	st, err := parseThreadStat(line, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(3_000_000_000), st.CPUTime)
	assert.Equal(t, 3, st.Processor)

	_, err = parseThreadStat("5000 (CPU 0/KVM) S 1 2", 100)
	assert.Error(t, err)
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		release string
		want    uint64
		wantErr bool
	}{
		{release: "6.8.12-300.fc40.x86_64", want: 6_008_012},
		{release: "5.15.0", want: 5_015_000},
		{release: "6.1", want: 6_001_000},
		{release: "6.18.44-fc-v130", want: 6_018_044},
		{release: "4.19.0rc1", want: 4_019_000},
		{release: "garbage", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseVersion(tt.release)
		if tt.wantErr {
			assert.Error(t, err, tt.release)
			continue
		}
		require.NoError(t, err, tt.release)
		assert.Equal(t, tt.want, got, tt.release)
	}
}

func TestTopology(t *testing.T) {
	info := topology(16, 8, 2, 2)
	assert.Equal(t, backend.NodeInfo{CPUs: 16, Nodes: 2, Sockets: 1, Cores: 4, Threads: 2}, info)
	assert.Equal(t, 16, info.MaxCPUs())

	info = topology(4, 0, 0, 0)
	assert.Equal(t, 1, info.Nodes)
	assert.Equal(t, 1, info.Sockets)
	assert.Equal(t, 4, info.Threads)
}

func TestRunState(t *testing.T) {
	assert.Equal(t, backend.StateRunning, runState(statusInfo{Status: "running", Running: true}))
	assert.Equal(t, backend.StatePaused, runState(statusInfo{Status: "paused"}))
	assert.Equal(t, backend.StatePMSuspended, runState(statusInfo{Status: "suspended"}))
	assert.Equal(t, backend.StateShutdown, runState(statusInfo{Status: "shutdown"}))
	assert.Equal(t, backend.StateCrashed, runState(statusInfo{Status: "guest-panicked"}))
	assert.Equal(t, backend.StateRunning, runState(statusInfo{Status: "new-state", Running: true}))
	assert.Equal(t, backend.StateNoState, runState(statusInfo{Status: "new-state"}))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	device := filepath.Join(dir, "kvm")

	h := New(Options{Device: device})
	assert.Error(t, h.Open(context.Background(), backend.OpenParams{}))

	require.NoError(t, os.WriteFile(device, nil, 0o600))
	assert.NoError(t, h.Open(context.Background(), backend.OpenParams{}))
	assert.NoError(t, h.Close())
}

func TestLookup(t *testing.T) {
	other := guest{PID: 7, Name: "db", UUID: uuid.New()}
	h := newTestHypervisor(&fakeGuests{guests: []guest{other, webGuest()}}, newFakeMonitor(), newFakeThreads(), nil)
	ctx := context.Background()

	r := h.LookupByID(ctx, 4242)
	require.True(t, r.Succeeded())
	assert.Equal(t, webDomain(), r.Value)

	r = h.LookupByUUID(ctx, webUUID)
	require.True(t, r.Succeeded())
	assert.Equal(t, "web", r.Value.Name)

	assert.True(t, h.LookupByID(ctx, 1).Declined())
	assert.True(t, h.LookupByUUID(ctx, uuid.New()).Declined())

	ids, err := h.ListDomains(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 4242}, ids)
}

func TestLookup_SourceError(t *testing.T) {
	h := newTestHypervisor(&fakeGuests{err: errors.New("proc unreadable")}, newFakeMonitor(), newFakeThreads(), nil)

	r := h.LookupByID(context.Background(), 1)
	assert.Equal(t, backend.StatusFailed, r.Status)
	assert.ErrorContains(t, r.Err, "proc unreadable")
}

func TestInfo(t *testing.T) {
	mon := newFakeMonitor()
	mon.replies["query-status"] = statusInfo{Status: "running", Running: true}
	mon.replies["query-cpus-fast"] = twoVcpus()
	mon.replies["query-memory-size-summary"] = memorySizeSummary{BaseMemory: 4 << 30}
	mon.replies["query-balloon"] = balloonInfo{Actual: 2 << 30}

	var dialed []string
	h := newTestHypervisor(&fakeGuests{cpuTime: 42}, mon, newFakeThreads(), &dialed)

	info, err := h.Info(context.Background(), webDomain())
	require.NoError(t, err)
	assert.Equal(t, backend.Info{
		State:     backend.StateRunning,
		MaxMemKiB: 4 << 20,
		MemoryKiB: 2 << 20,
		NrVirtCPU: 2,
		CPUTime:   42,
	}, info)
	assert.Equal(t, []string{"/run/test/web.monitor"}, dialed)
	assert.Equal(t, 1, mon.closed)
}

func TestInfo_NoBalloon(t *testing.T) {
	mon := newFakeMonitor()
	mon.replies["query-status"] = statusInfo{Status: "paused"}
	mon.replies["query-memory-size-summary"] = memorySizeSummary{BaseMemory: 1 << 30, PluggedMemory: 1 << 30}
	mon.errs["query-balloon"] = &MonitorError{Command: "query-balloon", Class: "DeviceNotActive", Description: "No balloon device has been activated"}

	h := newTestHypervisor(&fakeGuests{}, mon, newFakeThreads(), nil)

	info, err := h.Info(context.Background(), webDomain())
	require.NoError(t, err)
	assert.Equal(t, backend.StatePaused, info.State)
	assert.Equal(t, uint64(2<<20), info.MemoryKiB)
	assert.Equal(t, info.MaxMemKiB, info.MemoryKiB)
}

func TestInactiveDomainIsRejected(t *testing.T) {
	h := newTestHypervisor(&fakeGuests{}, newFakeMonitor(), newFakeThreads(), nil)
	dom := backend.Domain{ID: -1, UUID: webUUID, Name: "web"}
	ctx := context.Background()

	_, err := h.State(ctx, dom)
	assert.ErrorIs(t, err, backend.ErrInvalidArgument)
	assert.True(t, h.PinVcpu(ctx, dom, 0, []byte{1}).Declined())
	assert.True(t, h.GetVcpus(ctx, dom, 1, 1).Declined())
	assert.True(t, h.GetVcpuMax(ctx, dom).Declined())
	assert.True(t, h.SchedulerType(ctx, dom).Declined())
}

func TestSetMemory(t *testing.T) {
	mon := newFakeMonitor()
	h := newTestHypervisor(&fakeGuests{}, mon, newFakeThreads(), nil)

	require.NoError(t, h.SetMemory(context.Background(), webDomain(), 1024))
	calls := mon.commands("balloon")
	require.Len(t, calls, 1)
	assert.Equal(t, uint64(1024*1024), calls[0].Args["value"])

	assert.ErrorIs(t, h.SetMaxMemory(context.Background(), webDomain(), 1024), backend.ErrUnsupported)
}

func TestPinVcpu(t *testing.T) {
	mon := newFakeMonitor()
	mon.replies["query-cpus-fast"] = twoVcpus()
	threads := newFakeThreads()
	h := newTestHypervisor(&fakeGuests{}, mon, threads, nil)
	ctx := context.Background()

	r := h.PinVcpu(ctx, webDomain(), 1, []byte{0x06})
	require.True(t, r.Succeeded(), "err: %v", r.Err)

	set := threads.affinity[5001]
	assert.False(t, set.IsSet(0))
	assert.True(t, set.IsSet(1))
	assert.True(t, set.IsSet(2))
	assert.Equal(t, 2, set.Count())

	r = h.PinVcpu(ctx, webDomain(), 5, []byte{0x01})
	assert.Equal(t, backend.StatusFailed, r.Status)
	assert.ErrorIs(t, r.Err, backend.ErrInvalidArgument)

	r = h.PinVcpu(ctx, webDomain(), 0, []byte{0x00})
	assert.ErrorIs(t, r.Err, backend.ErrInvalidArgument)
}

func TestGetVcpus(t *testing.T) {
	mon := newFakeMonitor()
	mon.replies["query-cpus-fast"] = twoVcpus()
	threads := newFakeThreads()

	var a0, a1 unix.CPUSet
	a0.Set(0)
	a0.Set(9)
	a1.Set(3)
	threads.affinity[5000] = a0
	threads.affinity[5001] = a1
	threads.stats[5000] = threadStat{CPUTime: 100, Processor: 9}
	threads.stats[5001] = threadStat{CPUTime: 200, Processor: 3}

	h := newTestHypervisor(&fakeGuests{}, mon, threads, nil)

	r := h.GetVcpus(context.Background(), webDomain(), 4, 2)
	require.True(t, r.Succeeded(), "err: %v", r.Err)
	require.Len(t, r.Value.Info, 2)
	assert.Equal(t, backend.VcpuInfo{Number: 0, State: backend.VcpuRunning, CPUTime: 100, CPU: 9}, r.Value.Info[0])
	assert.Equal(t, backend.VcpuInfo{Number: 1, State: backend.VcpuRunning, CPUTime: 200, CPU: 3}, r.Value.Info[1])
	assert.Equal(t, []byte{0x01, 0x02, 0x08, 0x00}, r.Value.CPUMaps)

	r = h.GetVcpus(context.Background(), webDomain(), 1, 2)
	require.True(t, r.Succeeded())
	assert.Len(t, r.Value.Info, 1)
	assert.Len(t, r.Value.CPUMaps, 2)
}

func hotplugSlots(plugged ...string) []hotpluggableCPU {
	slots := []hotpluggableCPU{
		{Type: "host-x86_64-cpu", VcpusCount: 1, Props: map[string]any{"socket-id": 3, "core-id": 0, "thread-id": 0}},
		{Type: "host-x86_64-cpu", VcpusCount: 1, Props: map[string]any{"socket-id": 2, "core-id": 0, "thread-id": 0}},
		{Type: "host-x86_64-cpu", VcpusCount: 1, Props: map[string]any{"socket-id": 1, "core-id": 0, "thread-id": 0}},
		{Type: "host-x86_64-cpu", VcpusCount: 1, Props: map[string]any{"socket-id": 0, "core-id": 0, "thread-id": 0}},
	}
	for i, p := range plugged {
		slots[len(slots)-1-i].QOMPath = p
	}
	return slots
}

func TestSetVcpusFlags(t *testing.T) {
	ctx := context.Background()

	t.Run("only live changes are handled", func(t *testing.T) {
		h := newTestHypervisor(&fakeGuests{}, newFakeMonitor(), newFakeThreads(), nil)
		assert.True(t, h.SetVcpusFlags(ctx, webDomain(), 2, backend.VcpuConfig).Declined())
		assert.True(t, h.SetVcpusFlags(ctx, webDomain(), 2, backend.VcpuLive|backend.VcpuConfig).Declined())
	})

	t.Run("plugs missing vcpus", func(t *testing.T) {
		mon := newFakeMonitor()
		mon.replies["query-hotpluggable-cpus"] = hotplugSlots("/machine/unattached/device[0]")
		h := newTestHypervisor(&fakeGuests{}, mon, newFakeThreads(), nil)

		r := h.SetVcpusFlags(ctx, webDomain(), 3, backend.VcpuLive)
		require.True(t, r.Succeeded(), "err: %v", r.Err)

		adds := mon.commands("device_add")
		require.Len(t, adds, 2)
		assert.Equal(t, "vcpu2", adds[0].Args["id"])
		assert.Equal(t, "host-x86_64-cpu", adds[0].Args["driver"])
		assert.Equal(t, float64(1), adds[0].Args["socket-id"])
		assert.Equal(t, "vcpu1", adds[1].Args["id"])
	})

	t.Run("unplugs runtime vcpus", func(t *testing.T) {
		mon := newFakeMonitor()
		mon.replies["query-hotpluggable-cpus"] = hotplugSlots(
			"/machine/unattached/device[0]", "/machine/peripheral/vcpu2", "/machine/peripheral/vcpu1")
		h := newTestHypervisor(&fakeGuests{}, mon, newFakeThreads(), nil)

		r := h.SetVcpusFlags(ctx, webDomain(), 2, backend.VcpuLive)
		require.True(t, r.Succeeded(), "err: %v", r.Err)

		dels := mon.commands("device_del")
		require.Len(t, dels, 1)
		assert.Equal(t, "vcpu1", dels[0].Args["id"])
	})

	t.Run("boot vcpus cannot be removed", func(t *testing.T) {
		mon := newFakeMonitor()
		mon.replies["query-hotpluggable-cpus"] = hotplugSlots("/machine/unattached/device[0]", "/machine/unattached/device[1]")
		h := newTestHypervisor(&fakeGuests{}, mon, newFakeThreads(), nil)

		r := h.SetVcpusFlags(ctx, webDomain(), 1, backend.VcpuLive)
		assert.Equal(t, backend.StatusFailed, r.Status)
		assert.ErrorIs(t, r.Err, backend.ErrInvalidArgument)
	})

	t.Run("beyond the slot count", func(t *testing.T) {
		mon := newFakeMonitor()
		mon.replies["query-hotpluggable-cpus"] = hotplugSlots("/machine/unattached/device[0]")
		h := newTestHypervisor(&fakeGuests{}, mon, newFakeThreads(), nil)

		r := h.SetVcpusFlags(ctx, webDomain(), 8, backend.VcpuLive)
		assert.Equal(t, backend.StatusFailed, r.Status)
	})
}

func TestGetVcpuMax(t *testing.T) {
	ctx := context.Background()

	mon := newFakeMonitor()
	mon.replies["query-hotpluggable-cpus"] = hotplugSlots("/machine/unattached/device[0]")
	h := newTestHypervisor(&fakeGuests{}, mon, newFakeThreads(), nil)

	r := h.GetVcpuMax(ctx, webDomain())
	require.True(t, r.Succeeded())
	assert.Equal(t, 4, r.Value)

	mon = newFakeMonitor()
	mon.errs["query-hotpluggable-cpus"] = &MonitorError{Command: "query-hotpluggable-cpus", Class: "GenericError", Description: "machine does not support hot-plugging CPUs"}
	mon.replies["query-cpus-fast"] = twoVcpus()
	h = newTestHypervisor(&fakeGuests{}, mon, newFakeThreads(), nil)

	r = h.GetVcpuMax(ctx, webDomain())
	require.True(t, r.Succeeded())
	assert.Equal(t, 2, r.Value)
}

func TestScheduler(t *testing.T) {
	ctx := context.Background()
	mon := newFakeMonitor()
	mon.replies["query-cpus-fast"] = twoVcpus()
	threads := newFakeThreads()
	threads.nice[4242] = 5
	h := newTestHypervisor(&fakeGuests{}, mon, threads, nil)

	st := h.SchedulerType(ctx, webDomain())
	require.True(t, st.Succeeded())
	assert.Equal(t, backend.SchedType{Name: "posix", NParams: 1}, st.Value)

	params := h.SchedulerParams(ctx, webDomain())
	require.True(t, params.Succeeded())
	assert.Equal(t, []backend.SchedParam{{Field: "nice", Value: 5}}, params.Value)

	r := h.SetSchedulerParams(ctx, webDomain(), []backend.SchedParam{{Field: "nice", Value: -3}})
	require.True(t, r.Succeeded(), "err: %v", r.Err)
	assert.Equal(t, -3, threads.nice[4242])
	assert.Equal(t, -3, threads.nice[5000])
	assert.Equal(t, -3, threads.nice[5001])

	r = h.SetSchedulerParams(ctx, webDomain(), []backend.SchedParam{{Field: "weight", Value: 256}})
	assert.ErrorIs(t, r.Err, backend.ErrInvalidArgument)

	r = h.SetSchedulerParams(ctx, webDomain(), []backend.SchedParam{{Field: "nice", Value: 40}})
	assert.ErrorIs(t, r.Err, backend.ErrInvalidArgument)
}
