package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/jbweber/vmux/internal/backend"
	"github.com/jbweber/vmux/internal/naming"
)

// LookupByID resolves a live numeric id. Only the hypervisor knows them.
func (c *Conn) LookupByID(ctx context.Context, id int) (backend.Domain, error) {
	if id < 0 {
		return backend.Domain{}, fmt.Errorf("%w: negative domain id %d", backend.ErrInvalidArgument, id)
	}
	lk, err := capability[backend.IDLookup](c, backend.Hypervisor)
	if err != nil {
		return backend.Domain{}, err
	}
	r := lk.LookupByID(ctx, id)
	c.observe("lookup_by_id", backend.Hypervisor, r.Status)
	return lookupResult(r, fmt.Sprintf("id %d", id), nil)
}

// LookupByUUID resolves a UUID: running domains through the hypervisor,
// then inactive ones through the file store or the daemon, whichever owns
// them for this config version.
func (c *Conn) LookupByUUID(ctx context.Context, id uuid.UUID) (backend.Domain, error) {
	var firstErr error

	if lk, err := capability[backend.UUIDLookup](c, backend.Hypervisor); err == nil {
		r := lk.LookupByUUID(ctx, id)
		c.observe("lookup_by_uuid", backend.Hypervisor, r.Status)
		switch r.Status {
		case backend.StatusSuccess:
			return r.Value, nil
		case backend.StatusFailed:
			firstErr = r.Err
		}
	}

	fallback := backend.Daemon
	if c.protocolVersion <= backend.ConfigVersionLegacyMax {
		fallback = backend.FileStore
	}

	lk, err := capability[backend.UUIDLookup](c, fallback)
	if err != nil {
		return lookupResult(backend.Decline[backend.Domain](), id.String(), firstErr)
	}
	r := lk.LookupByUUID(ctx, id)
	c.observe("lookup_by_uuid", fallback, r.Status)
	return lookupResult(r, id.String(), firstErr)
}

// LookupByName resolves a name through the daemon. When the file store is
// open, a hit there takes precedence.
func (c *Conn) LookupByName(ctx context.Context, name string) (backend.Domain, error) {
	if name == "" {
		return backend.Domain{}, fmt.Errorf("%w: empty domain name", backend.ErrInvalidArgument)
	}

	result := backend.Decline[backend.Domain]()
	if lk, err := capability[backend.NameLookup](c, backend.Daemon); err == nil {
		result = lk.LookupByName(ctx, name)
		c.observe("lookup_by_name", backend.Daemon, result.Status)
	}

	if lk, err := capability[backend.NameLookup](c, backend.FileStore); err == nil {
		r := lk.LookupByName(ctx, name)
		c.observe("lookup_by_name", backend.FileStore, r.Status)
		if r.Succeeded() {
			result = r
		}
	}

	return lookupResult(result, name, nil)
}

// lookupResult converts a lookup result to the caller-facing form. A
// decline becomes ErrNotFound unless an earlier tier already failed.
func lookupResult(r backend.Result[backend.Domain], key string, earlier error) (backend.Domain, error) {
	switch r.Status {
	case backend.StatusSuccess:
		return r.Value, nil
	case backend.StatusFailed:
		return backend.Domain{}, r.Err
	}
	if earlier != nil {
		return backend.Domain{}, earlier
	}
	return backend.Domain{}, fmt.Errorf("%w: %s", backend.ErrNotFound, key)
}

// IsActive reports whether dom is currently running, by looking it up again.
func (c *Conn) IsActive(ctx context.Context, dom backend.Domain) (bool, error) {
	cur, err := c.LookupByUUID(ctx, dom.UUID)
	if err != nil {
		return false, err
	}
	return cur.IsActive(), nil
}

// IsPersistent reports whether dom survives being stopped. With the file
// store open the answer is whether it holds the domain. Otherwise inactive
// domains are persistent by construction, and running ones are persistent
// when the daemon keeps a readable config for their UUID. The latter is a
// heuristic: the daemon does not publish that directory as an interface.
func (c *Conn) IsPersistent(ctx context.Context, dom backend.Domain) (bool, error) {
	if lk, err := capability[backend.UUIDLookup](c, backend.FileStore); err == nil {
		r := lk.LookupByUUID(ctx, dom.UUID)
		c.observe("is_persistent", backend.FileStore, r.Status)
		switch r.Status {
		case backend.StatusSuccess:
			return true, nil
		case backend.StatusDeclined:
			return false, nil
		default:
			return false, r.Err
		}
	}

	lk, err := capability[backend.UUIDLookup](c, backend.Daemon)
	if err != nil {
		return false, err
	}
	r := lk.LookupByUUID(ctx, dom.UUID)
	c.observe("is_persistent", backend.Daemon, r.Status)
	cur, err := lookupResult(r, dom.UUID.String(), nil)
	if err != nil {
		return false, err
	}
	if !cur.IsActive() {
		return true, nil
	}

	path := naming.PersistentConfigPath(c.persistentDir, dom.UUID)
	switch err := unix.Access(path, unix.R_OK); {
	case err == nil:
		return true, nil
	case errors.Is(err, unix.ENOENT):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check persistent config %s: %w", path, err)
	}
}

// IsUpdated reports whether the persistent config differs from the running
// one. No adapter tracks that, so it is always false.
func (c *Conn) IsUpdated(context.Context, backend.Domain) (bool, error) {
	return false, nil
}
