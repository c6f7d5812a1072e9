package hypervisor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"
)

// nameNamespace derives a stable UUID for guests started without -uuid.
var nameNamespace = uuid.MustParse("6ba7b812-9dad-11d1-80b4-00c04fd430c8")

// guest is a running emulator process. Its PID is the domain ID.
type guest struct {
	PID  int
	Name string
	UUID uuid.UUID
}

// guestSource finds running guests.
type guestSource interface {
	Guests(ctx context.Context) ([]guest, error)
	CPUTime(ctx context.Context, pid int) (uint64, error)
}

// procScanner finds guests in the process table.
type procScanner struct{}

// Guests returns every emulator process with a parsable -name, sorted by
// PID.
func (procScanner) Guests(ctx context.Context) ([]guest, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	var guests []guest
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || !strings.HasPrefix(name, "qemu") {
			continue
		}
		args, err := p.CmdlineSliceWithContext(ctx)
		if err != nil {
			continue
		}
		g, ok := parseCmdline(args)
		if !ok {
			continue
		}
		g.PID = int(p.Pid)
		guests = append(guests, g)
	}

	sort.Slice(guests, func(i, j int) bool { return guests[i].PID < guests[j].PID })
	return guests, nil
}

// CPUTime returns the CPU time consumed by pid in nanoseconds.
func (procScanner) CPUTime(ctx context.Context, pid int) (uint64, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return 0, fmt.Errorf("failed to open process %d: %w", pid, err)
	}
	times, err := p.TimesWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read CPU times of process %d: %w", pid, err)
	}
	return uint64((times.User + times.System) * 1e9), nil
}

// parseCmdline extracts the guest identity from an emulator command line.
// -name accepts both "NAME" and "guest=NAME,opt=..." forms.
func parseCmdline(args []string) (guest, bool) {
	var g guest
	var rawUUID string

	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case "-name":
			g.Name = guestName(args[i+1])
		case "-uuid":
			rawUUID = args[i+1]
		}
	}
	if g.Name == "" {
		return guest{}, false
	}

	if id, err := uuid.Parse(rawUUID); err == nil {
		g.UUID = id
	} else {
		g.UUID = uuid.NewSHA1(nameNamespace, []byte(g.Name))
	}
	return g, true
}

func guestName(value string) string {
	for i, part := range strings.Split(value, ",") {
		if v, ok := strings.CutPrefix(part, "guest="); ok {
			return v
		}
		if i == 0 && !strings.Contains(part, "=") {
			return part
		}
	}
	return ""
}
