package daemon

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"

	"github.com/jbweber/vmux/internal/backend"
)

// LookupByUUID implements backend.UUIDLookup.
func (d *Daemon) LookupByUUID(_ context.Context, id uuid.UUID) backend.Result[backend.Domain] {
	dom, err := d.client.DomainLookupByUUID(libvirt.UUID(id))
	return d.lookupResult(dom, err, id.String())
}

// LookupByName implements backend.NameLookup.
func (d *Daemon) LookupByName(_ context.Context, name string) backend.Result[backend.Domain] {
	dom, err := d.client.DomainLookupByName(name)
	return d.lookupResult(dom, err, name)
}

func (d *Daemon) lookupResult(dom libvirt.Domain, err error, key string) backend.Result[backend.Domain] {
	if err != nil {
		if isNotFound(err) {
			return backend.Decline[backend.Domain]()
		}
		return backend.Fail[backend.Domain](fmt.Errorf("failed to look up domain %s: %w", key, err))
	}
	return backend.Ok(fromWire(dom))
}
