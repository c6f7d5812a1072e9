package hypervisor

import (
	"context"
	"fmt"

	"github.com/jbweber/vmux/internal/backend"
)

const (
	schedulerName = "posix"
	niceField     = "nice"
)

// SchedulerType implements backend.Scheduler. Guests run under the host
// scheduler with one tunable, the nice value.
func (h *Hypervisor) SchedulerType(_ context.Context, dom backend.Domain) backend.Result[backend.SchedType] {
	if !dom.IsActive() {
		return backend.Decline[backend.SchedType]()
	}
	return backend.Ok(backend.SchedType{Name: schedulerName, NParams: 1})
}

// SchedulerParams implements backend.Scheduler.
func (h *Hypervisor) SchedulerParams(_ context.Context, dom backend.Domain) backend.Result[[]backend.SchedParam] {
	if !dom.IsActive() {
		return backend.Decline[[]backend.SchedParam]()
	}
	nice, err := h.threads.Nice(dom.ID)
	if err != nil {
		return backend.Fail[[]backend.SchedParam](err)
	}
	return backend.Ok([]backend.SchedParam{{Field: niceField, Value: int64(nice)}})
}

// SetSchedulerParams implements backend.Scheduler. The nice value is
// applied to the emulator process and every vcpu thread.
func (h *Hypervisor) SetSchedulerParams(ctx context.Context, dom backend.Domain, params []backend.SchedParam) backend.Result[backend.Void] {
	if !dom.IsActive() {
		return backend.Decline[backend.Void]()
	}

	nice, ok := 0, false
	for _, p := range params {
		if p.Field != niceField {
			return backend.Fail[backend.Void](fmt.Errorf("%w: unknown scheduler parameter %q", backend.ErrInvalidArgument, p.Field))
		}
		if p.Value < -20 || p.Value > 19 {
			return backend.Fail[backend.Void](fmt.Errorf("%w: nice %d out of range", backend.ErrInvalidArgument, p.Value))
		}
		nice, ok = int(p.Value), true
	}
	if !ok {
		return backend.Done()
	}

	cpus, err := h.vcpuThreads(ctx, dom)
	if err != nil {
		return backend.Fail[backend.Void](err)
	}
	tids := []int{dom.ID}
	for _, c := range cpus {
		tids = append(tids, c.ThreadID)
	}
	for _, tid := range tids {
		if err := h.threads.SetNice(tid, nice); err != nil {
			return backend.Fail[backend.Void](err)
		}
	}
	return backend.Done()
}
