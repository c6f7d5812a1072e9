package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/jbweber/vmux/internal/backend"
	"github.com/jbweber/vmux/internal/naming"
)

// LookupByName implements backend.NameLookup.
func (s *FileStore) LookupByName(_ context.Context, name string) backend.Result[backend.Domain] {
	if naming.ValidateDomainName(name) != nil {
		return backend.Decline[backend.Domain]()
	}
	def, err := s.load(name)
	if errors.Is(err, errNoDomain) {
		return backend.Decline[backend.Domain]()
	}
	if err != nil {
		return backend.Fail[backend.Domain](err)
	}
	return backend.Ok(toDomain(def))
}

// LookupByUUID implements backend.UUIDLookup.
func (s *FileStore) LookupByUUID(_ context.Context, id uuid.UUID) backend.Result[backend.Domain] {
	defs, err := s.all()
	if err != nil {
		return backend.Fail[backend.Domain](err)
	}
	for _, def := range defs {
		if dom := toDomain(def); dom.UUID == id {
			return backend.Ok(dom)
		}
	}
	return backend.Decline[backend.Domain]()
}

// ListDefined implements backend.DefinedLister.
func (s *FileStore) ListDefined(_ context.Context) backend.Result[[]string] {
	names, err := s.names()
	if err != nil {
		return backend.Fail[[]string](err)
	}
	if names == nil {
		names = []string{}
	}
	return backend.Ok(names)
}

// NumDefined implements backend.DefinedLister.
func (s *FileStore) NumDefined(_ context.Context) backend.Result[int] {
	names, err := s.names()
	return backend.Check(len(names), err)
}

// DefineXML implements backend.Definer. A description without a UUID gets
// a new one; redefining a name keeps its UUID.
func (s *FileStore) DefineXML(_ context.Context, xml string) backend.Result[backend.Domain] {
	def, err := parse(xml, "domain description")
	if err != nil {
		return backend.Fail[backend.Domain](fmt.Errorf("%w: %v", backend.ErrInvalidArgument, err))
	}
	if err := naming.ValidateDomainName(def.Name); err != nil {
		return backend.Fail[backend.Domain](fmt.Errorf("%w: %v", backend.ErrInvalidArgument, err))
	}
	// Hidden files are skipped when listing the store.
	if strings.HasPrefix(def.Name, ".") {
		return backend.Fail[backend.Domain](fmt.Errorf("%w: domain name %q starts with a dot", backend.ErrInvalidArgument, def.Name))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.all()
	if err != nil {
		return backend.Fail[backend.Domain](err)
	}
	for _, other := range existing {
		switch {
		case other.Name == def.Name && def.UUID == "":
			def.UUID = other.UUID
		case other.Name == def.Name && other.UUID != def.UUID:
			return backend.Fail[backend.Domain](fmt.Errorf("%w: domain %s already exists with uuid %s", backend.ErrInvalidArgument, def.Name, other.UUID))
		case other.Name != def.Name && def.UUID != "" && other.UUID == def.UUID:
			return backend.Fail[backend.Domain](fmt.Errorf("%w: uuid %s already used by domain %s", backend.ErrInvalidArgument, def.UUID, other.Name))
		}
	}

	if def.UUID == "" {
		def.UUID = uuid.NewString()
	} else if _, err := uuid.Parse(def.UUID); err != nil {
		return backend.Fail[backend.Domain](fmt.Errorf("%w: malformed uuid %q", backend.ErrInvalidArgument, def.UUID))
	}

	if err := s.store(def); err != nil {
		return backend.Fail[backend.Domain](err)
	}
	s.log.WithField("domain", def.Name).Info("Defined domain")
	return backend.Ok(toDomain(def))
}

// Undefine implements backend.Undefiner. Removing a domain also removes
// its autostart link.
func (s *FileStore) Undefine(_ context.Context, dom backend.Domain) backend.Result[backend.Void] {
	path, err := naming.ConfigFile(s.opts.Dir, dom.Name)
	if err != nil {
		return backend.Decline[backend.Void]()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return backend.Decline[backend.Void]()
		}
		return backend.Fail[backend.Void](fmt.Errorf("failed to remove %s: %w", path, err))
	}

	link, _ := naming.AutostartLink(s.opts.AutostartDir, dom.Name)
	if err := os.Remove(link); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.WithError(err).WithField("domain", dom.Name).Warn("Failed to remove autostart link")
	}
	s.log.WithField("domain", dom.Name).Info("Undefined domain")
	return backend.Done()
}
