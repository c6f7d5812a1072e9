package daemon

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/vmux/internal/backend"
)

// Typed parameter discriminators, from virTypedParameterType.
const (
	paramInt     uint32 = 1
	paramUint    uint32 = 2
	paramLlong   uint32 = 3
	paramUllong  uint32 = 4
	paramDouble  uint32 = 5
	paramBoolean uint32 = 6
)

// SchedulerType implements backend.Scheduler.
func (d *Daemon) SchedulerType(_ context.Context, dom backend.Domain) backend.Result[backend.SchedType] {
	name, n, err := d.client.DomainGetSchedulerType(toWire(dom))
	return result(backend.SchedType{Name: name, NParams: int(n)}, err)
}

// SchedulerParams implements backend.Scheduler. Parameters that are not
// integers are skipped.
func (d *Daemon) SchedulerParams(ctx context.Context, dom backend.Domain) backend.Result[[]backend.SchedParam] {
	raw, r := d.rawSchedulerParams(ctx, dom)
	if !r.Succeeded() {
		return backend.Result[[]backend.SchedParam]{Status: r.Status, Err: r.Err}
	}

	params := make([]backend.SchedParam, 0, len(raw))
	for _, p := range raw {
		v, ok := paramValue(p.Value)
		if !ok {
			continue
		}
		params = append(params, backend.SchedParam{Field: p.Field, Value: v})
	}
	return backend.Ok(params)
}

// SetSchedulerParams implements backend.Scheduler. Each field keeps the
// wire type the daemon reports for it.
func (d *Daemon) SetSchedulerParams(ctx context.Context, dom backend.Domain, params []backend.SchedParam) backend.Result[backend.Void] {
	raw, r := d.rawSchedulerParams(ctx, dom)
	if !r.Succeeded() {
		return backend.Result[backend.Void]{Status: r.Status, Err: r.Err}
	}

	types := make(map[string]uint32, len(raw))
	for _, p := range raw {
		types[p.Field] = p.Value.D
	}

	out := make([]libvirt.TypedParam, 0, len(params))
	for _, p := range params {
		kind, ok := types[p.Field]
		if !ok {
			return backend.Fail[backend.Void](fmt.Errorf("%w: unknown scheduler parameter %q", backend.ErrInvalidArgument, p.Field))
		}
		out = append(out, libvirt.TypedParam{Field: p.Field, Value: typedValue(kind, p.Value)})
	}

	d.log.WithField("domain", dom.Name).WithField("params", len(out)).Debug("Setting scheduler parameters")
	return resultErr(d.client.DomainSetSchedulerParameters(toWire(dom), out))
}

func (d *Daemon) rawSchedulerParams(_ context.Context, dom backend.Domain) ([]libvirt.TypedParam, backend.Result[backend.Void]) {
	w := toWire(dom)
	_, n, err := d.client.DomainGetSchedulerType(w)
	if err != nil {
		return nil, resultErr(err)
	}
	raw, err := d.client.DomainGetSchedulerParameters(w, n)
	if err != nil {
		return nil, resultErr(err)
	}
	return raw, backend.Done()
}

func paramValue(v libvirt.TypedParamValue) (int64, bool) {
	switch x := v.I.(type) {
	case int32:
		return int64(x), true
	case uint32:
		return int64(x), true
	case int64:
		return x, true
	case uint64:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func typedValue(kind uint32, v int64) libvirt.TypedParamValue {
	switch kind {
	case paramInt, paramBoolean:
		return libvirt.TypedParamValue{D: kind, I: int32(v)}
	case paramUint:
		return libvirt.TypedParamValue{D: kind, I: uint32(v)}
	case paramUllong:
		return libvirt.TypedParamValue{D: kind, I: uint64(v)}
	case paramDouble:
		return libvirt.TypedParamValue{D: kind, I: float64(v)}
	default:
		return libvirt.TypedParamValue{D: paramLlong, I: v}
	}
}
