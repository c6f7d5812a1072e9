package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jbweber/vmux/api/v1alpha1"
	"github.com/jbweber/vmux/internal/backend"
	"github.com/jbweber/vmux/internal/driver"
	"github.com/jbweber/vmux/internal/logging"
)

// resolveDomain finds a domain by numeric id, UUID or name, in that order,
// the way the argument parses.
func resolveDomain(ctx context.Context, conn *driver.Conn, arg string) (backend.Domain, error) {
	if id, err := strconv.Atoi(arg); err == nil && id >= 0 {
		dom, err := conn.LookupByID(ctx, id)
		if err == nil || !errors.Is(err, backend.ErrNotFound) {
			return dom, err
		}
	}
	if id, err := uuid.Parse(arg); err == nil {
		dom, err := conn.LookupByUUID(ctx, id)
		if err == nil || !errors.Is(err, backend.ErrNotFound) {
			return dom, err
		}
	}
	return conn.LookupByName(ctx, arg)
}

var stateNames = map[backend.State]v1alpha1.DomainState{
	backend.StateNoState:     v1alpha1.DomainStateNoState,
	backend.StateRunning:     v1alpha1.DomainStateRunning,
	backend.StateBlocked:     v1alpha1.DomainStateBlocked,
	backend.StatePaused:      v1alpha1.DomainStatePaused,
	backend.StateShutdown:    v1alpha1.DomainStateShutdown,
	backend.StateShutoff:     v1alpha1.DomainStateShutoff,
	backend.StateCrashed:     v1alpha1.DomainStateCrashed,
	backend.StatePMSuspended: v1alpha1.DomainStatePMSuspended,
}

func toDomainState(s backend.State) v1alpha1.DomainState {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return v1alpha1.DomainStateNoState
}

// describe builds the printable resource for dom. Only the identity is
// required; every other field is best effort and left empty when no
// backend can answer.
func describe(ctx context.Context, conn *driver.Conn, dom backend.Domain) *v1alpha1.Domain {
	log := logging.WithField("domain", dom.Name)
	d := v1alpha1.NewDomain(dom.Name, dom.UUID.String())
	d.Status.ID = dom.ID
	d.Status.ObservedAt = v1alpha1.Time{Time: time.Now().UTC().Truncate(time.Second)}

	if info, err := conn.GetInfo(ctx, dom); err == nil {
		d.Status.State = toDomainState(info.State)
		d.Status.CPUTimeNs = info.CPUTime
		d.Spec.VCPUs = int(info.NrVirtCPU)
		d.Spec.MemoryKiB = info.MemoryKiB
		d.Spec.MaxMemoryKiB = info.MaxMemKiB
	} else {
		log.WithError(err).Debug("No domain info")
		if !dom.IsActive() {
			d.Status.State = v1alpha1.DomainStateShutoff
		}
	}

	if n, err := conn.GetMaxVcpus(ctx, dom); err == nil {
		d.Spec.MaxVCPUs = n
	}
	if osType, err := conn.GetOSType(ctx, dom); err == nil {
		d.Spec.OSType = osType
	}
	if on, err := conn.GetAutostart(ctx, dom); err == nil {
		d.SetAutostart(on)
	}
	if used, err := conn.UsedCPUs(ctx, dom); err == nil && used != nil {
		d.Status.UsedCPUs = used.String()
	}

	if persistent, err := conn.IsPersistent(ctx, dom); err == nil {
		d.SetCondition(v1alpha1.ConditionPersistent, v1alpha1.BoolCondition(persistent), "", "")
	} else {
		d.SetCondition(v1alpha1.ConditionPersistent, v1alpha1.ConditionUnknown, "LookupFailed", err.Error())
	}
	if saved, err := conn.HasManagedSaveImage(ctx, dom, 0); err == nil {
		d.SetCondition(v1alpha1.ConditionManagedSave, v1alpha1.BoolCondition(saved), "", "")
	}

	return d
}

// listDomains returns the running domains and, when all is set, the
// defined but inactive ones. Domains that vanish between listing and
// lookup are skipped.
func listDomains(ctx context.Context, conn *driver.Conn, all bool) ([]backend.Domain, error) {
	ids, err := conn.ListDomains(ctx)
	if err != nil && !errors.Is(err, backend.ErrUnsupported) {
		return nil, fmt.Errorf("failed to list running domains: %w", err)
	}

	var doms []backend.Domain
	seen := make(map[string]bool)
	for _, id := range ids {
		dom, err := conn.LookupByID(ctx, id)
		if err != nil {
			logging.WithError(err).WithField("id", id).Debug("Skipping domain")
			continue
		}
		seen[dom.Name] = true
		doms = append(doms, dom)
	}

	if !all {
		return doms, nil
	}

	names, err := conn.ListDefinedDomains(ctx)
	if err != nil && !errors.Is(err, backend.ErrUnsupported) {
		return nil, fmt.Errorf("failed to list defined domains: %w", err)
	}
	for _, name := range names {
		if seen[name] {
			continue
		}
		dom, err := conn.LookupByName(ctx, name)
		if err != nil {
			logging.WithError(err).WithField("name", name).Debug("Skipping domain")
			continue
		}
		doms = append(doms, dom)
	}
	return doms, nil
}
