package hypervisor

import (
	"context"
	"encoding/json"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/jbweber/vmux/internal/logging"
)

// fakeGuests is a guestSource with a fixed process table.
type fakeGuests struct {
	guests  []guest
	err     error
	cpuTime uint64
}

func (f *fakeGuests) Guests(context.Context) ([]guest, error) {
	return f.guests, f.err
}

func (f *fakeGuests) CPUTime(context.Context, int) (uint64, error) {
	return f.cpuTime, nil
}

type monitorCall struct {
	Command string
	Args    map[string]any
}

// fakeMonitor answers commands from canned replies.
type fakeMonitor struct {
	mu      sync.Mutex
	replies map[string]any
	errs    map[string]error
	calls   []monitorCall
	closed  int
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{
		replies: make(map[string]any),
		errs:    make(map[string]error),
	}
}

func (m *fakeMonitor) Execute(_ context.Context, command string, args map[string]any, out any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, monitorCall{Command: command, Args: args})

	if err := m.errs[command]; err != nil {
		return err
	}
	reply, ok := m.replies[command]
	if !ok || out == nil {
		return nil
	}
	data, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (m *fakeMonitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *fakeMonitor) commands(name string) []monitorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []monitorCall
	for _, c := range m.calls {
		if c.Command == name {
			out = append(out, c)
		}
	}
	return out
}

// fakeThreads is a threadControl over in-memory thread state.
type fakeThreads struct {
	mu       sync.Mutex
	affinity map[int]unix.CPUSet
	nice     map[int]int
	stats    map[int]threadStat
}

func newFakeThreads() *fakeThreads {
	return &fakeThreads{
		affinity: make(map[int]unix.CPUSet),
		nice:     make(map[int]int),
		stats:    make(map[int]threadStat),
	}
}

func (f *fakeThreads) Affinity(tid int) (unix.CPUSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.affinity[tid], nil
}

func (f *fakeThreads) SetAffinity(tid int, set *unix.CPUSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.affinity[tid] = *set
	return nil
}

func (f *fakeThreads) Nice(tid int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nice[tid], nil
}

func (f *fakeThreads) SetNice(tid, nice int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nice[tid] = nice
	return nil
}

func (f *fakeThreads) Stat(_, tid int) (threadStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats[tid], nil
}

// newTestHypervisor wires fakes into an adapter. dialed collects the
// monitor socket paths.
func newTestHypervisor(guests *fakeGuests, mon *fakeMonitor, threads *fakeThreads, dialed *[]string) *Hypervisor {
	return &Hypervisor{
		opts:    Options{Device: "/dev/null", QMPDir: "/run/test", ProcDir: "/proc", SysDir: "/sys"},
		log:     logging.WithField("backend", "hypervisor"),
		guests:  guests,
		threads: threads,
		dial: func(_ context.Context, path string) (monitor, error) {
			if dialed != nil {
				*dialed = append(*dialed, path)
			}
			return mon, nil
		},
	}
}
