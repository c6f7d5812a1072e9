package hypervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tklauser/go-sysconf"
	"golang.org/x/sys/unix"
)

// threadStat is the scheduling state of one thread.
type threadStat struct {
	// CPUTime is the user plus system time in nanoseconds.
	CPUTime uint64
	// Processor is the CPU the thread last ran on.
	Processor int
}

// threadControl reads and changes per-thread scheduling of guest threads.
type threadControl interface {
	Affinity(tid int) (unix.CPUSet, error)
	SetAffinity(tid int, set *unix.CPUSet) error
	Nice(tid int) (int, error)
	SetNice(tid, nice int) error
	Stat(pid, tid int) (threadStat, error)
}

// hostThreads is threadControl on the running kernel.
type hostThreads struct {
	procDir string
	ticks   int64
}

func newHostThreads(procDir string) *hostThreads {
	ticks, err := sysconf.Sysconf(sysconf.SC_CLK_TCK)
	if err != nil || ticks <= 0 {
		ticks = 100
	}
	return &hostThreads{procDir: procDir, ticks: ticks}
}

func (h *hostThreads) Affinity(tid int) (unix.CPUSet, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(tid, &set); err != nil {
		return set, fmt.Errorf("failed to get affinity of thread %d: %w", tid, err)
	}
	return set, nil
}

func (h *hostThreads) SetAffinity(tid int, set *unix.CPUSet) error {
	if err := unix.SchedSetaffinity(tid, set); err != nil {
		return fmt.Errorf("failed to set affinity of thread %d: %w", tid, err)
	}
	return nil
}

// Nice returns the nice value of tid. The raw syscall reports 20-nice.
func (h *hostThreads) Nice(tid int) (int, error) {
	prio, err := unix.Getpriority(unix.PRIO_PROCESS, tid)
	if err != nil {
		return 0, fmt.Errorf("failed to get priority of thread %d: %w", tid, err)
	}
	return 20 - prio, nil
}

func (h *hostThreads) SetNice(tid, nice int) error {
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, nice); err != nil {
		return fmt.Errorf("failed to set priority of thread %d: %w", tid, err)
	}
	return nil
}

// Stat reads {procDir}/{pid}/task/{tid}/stat.
func (h *hostThreads) Stat(pid, tid int) (threadStat, error) {
	path := filepath.Join(h.procDir, strconv.Itoa(pid), "task", strconv.Itoa(tid), "stat")
	data, err := os.ReadFile(path)
	if err != nil {
		return threadStat{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return parseThreadStat(string(data), h.ticks)
}

// parseThreadStat parses a proc stat line. Fields are counted after the
// parenthesised command name, which may itself contain spaces.
func parseThreadStat(line string, ticks int64) (threadStat, error) {
	end := strings.LastIndexByte(line, ')')
	if end < 0 {
		return threadStat{}, fmt.Errorf("malformed stat line")
	}
	fields := strings.Fields(line[end+1:])
	// fields[0] is field 3 (state); utime is 14, stime 15, processor 39.
	if len(fields) < 37 {
		return threadStat{}, fmt.Errorf("short stat line: %d fields", len(fields)+2)
	}

	utime, err := strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return threadStat{}, fmt.Errorf("bad utime: %w", err)
	}
	stime, err := strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return threadStat{}, fmt.Errorf("bad stime: %w", err)
	}
	cpu, err := strconv.Atoi(fields[36])
	if err != nil {
		return threadStat{}, fmt.Errorf("bad processor: %w", err)
	}

	return threadStat{
		CPUTime:   (utime + stime) * uint64(1e9/ticks),
		Processor: cpu,
	}, nil
}
