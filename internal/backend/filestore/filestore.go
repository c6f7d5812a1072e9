package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/vmux/internal/backend"
	"github.com/jbweber/vmux/internal/logging"
	"github.com/jbweber/vmux/internal/naming"
)

// DefaultDir is used when Options.Dir is empty.
const DefaultDir = "/etc/vmux/domains"

// Options configures the file store.
type Options struct {
	// Dir holds one {name}.xml domain description per domain.
	Dir string
	// AutostartDir holds {name}.xml symlinks for domains started with the
	// host. Empty means {Dir}/autostart.
	AutostartDir string
}

// FileStore is the adapter for the legacy directory of domain
// configuration files. It only knows inactive configuration; live
// operations decline.
type FileStore struct {
	opts Options
	log  *logrus.Entry

	// mu serialises read-modify-write cycles on the files.
	mu sync.Mutex
}

// New creates an unopened file store adapter.
func New(opts Options) *FileStore {
	if opts.Dir == "" {
		opts.Dir = DefaultDir
	}
	if opts.AutostartDir == "" {
		opts.AutostartDir = filepath.Join(opts.Dir, "autostart")
	}
	return &FileStore{
		opts: opts,
		log:  logging.WithField("backend", backend.FileStore.String()),
	}
}

// ID implements backend.Backend.
func (s *FileStore) ID() backend.ID {
	return backend.FileStore
}

// Open creates the store directories when missing.
func (s *FileStore) Open(_ context.Context, _ backend.OpenParams) error {
	for _, dir := range []string{s.opts.Dir, s.opts.AutostartDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create file store directory %s: %w", dir, err)
		}
	}
	s.log.WithField("dir", s.opts.Dir).Debug("File store opened")
	return nil
}

// Close implements backend.Backend.
func (s *FileStore) Close() error {
	return nil
}

// errNoDomain is returned by load for a name without a file.
var errNoDomain = errors.New("no such domain in file store")

// load parses the description of name.
func (s *FileStore) load(name string) (*libvirtxml.Domain, error) {
	path, err := naming.ConfigFile(s.opts.Dir, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrInvalidArgument, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errNoDomain
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return parse(string(data), path)
}

func parse(xml, path string) (*libvirtxml.Domain, error) {
	def := &libvirtxml.Domain{}
	if err := def.Unmarshal(xml); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return def, nil
}

// store writes def atomically under its name.
func (s *FileStore) store(def *libvirtxml.Domain) error {
	path, err := naming.ConfigFile(s.opts.Dir, def.Name)
	if err != nil {
		return fmt.Errorf("%w: %v", backend.ErrInvalidArgument, err)
	}
	out, err := def.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal domain %s: %w", def.Name, err)
	}

	tmp, err := os.CreateTemp(s.opts.Dir, "."+def.Name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(out); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to install %s: %w", path, err)
	}
	return nil
}

// names returns the domain names in the store, sorted.
func (s *FileStore) names() ([]string, error) {
	entries, err := os.ReadDir(s.opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read file store %s: %w", s.opts.Dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if name, ok := naming.DomainFromConfigFile(e.Name()); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// all parses every description in the store. Unparsable files are
// skipped with a warning.
func (s *FileStore) all() ([]*libvirtxml.Domain, error) {
	names, err := s.names()
	if err != nil {
		return nil, err
	}
	defs := make([]*libvirtxml.Domain, 0, len(names))
	for _, name := range names {
		def, err := s.load(name)
		if err != nil {
			s.log.WithError(err).WithField("domain", name).Warn("Skipping unreadable domain file")
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// toDomain converts a stored description. Stored domains are never
// running.
func toDomain(def *libvirtxml.Domain) backend.Domain {
	id, err := uuid.Parse(def.UUID)
	if err != nil {
		id = uuid.Nil
	}
	return backend.Domain{ID: -1, UUID: id, Name: def.Name}
}

// modify runs fn on the stored description of dom and writes the result.
func (s *FileStore) modify(dom backend.Domain, fn func(*libvirtxml.Domain) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, err := s.load(dom.Name)
	if err != nil {
		return s.notFound(dom, err)
	}
	if err := fn(def); err != nil {
		return err
	}
	return s.store(def)
}

// read returns the stored description of dom.
func (s *FileStore) read(dom backend.Domain) (*libvirtxml.Domain, error) {
	def, err := s.load(dom.Name)
	if err != nil {
		return nil, s.notFound(dom, err)
	}
	return def, nil
}

func (s *FileStore) notFound(dom backend.Domain, err error) error {
	if errors.Is(err, errNoDomain) {
		return fmt.Errorf("%w: %s", backend.ErrNotFound, dom.Name)
	}
	return err
}
