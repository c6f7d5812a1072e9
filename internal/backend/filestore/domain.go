package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/vmux/internal/backend"
	"github.com/jbweber/vmux/internal/naming"
)

// Info implements backend.InfoGetter. Stored domains are always shut off.
func (s *FileStore) Info(_ context.Context, dom backend.Domain) (backend.Info, error) {
	def, err := s.read(dom)
	if err != nil {
		return backend.Info{}, err
	}
	maxKiB, err := maxMemoryKiB(def)
	if err != nil {
		return backend.Info{}, fmt.Errorf("domain %s: %w", dom.Name, err)
	}
	curKiB, err := currentMemoryKiB(def)
	if err != nil {
		return backend.Info{}, fmt.Errorf("domain %s: %w", dom.Name, err)
	}
	current, _ := vcpuCounts(def)
	return backend.Info{
		State:     backend.StateShutoff,
		MaxMemKiB: maxKiB,
		MemoryKiB: curKiB,
		NrVirtCPU: uint16(current),
	}, nil
}

// State implements backend.InfoGetter.
func (s *FileStore) State(_ context.Context, dom backend.Domain) (backend.State, error) {
	if _, err := s.read(dom); err != nil {
		return backend.StateNoState, err
	}
	return backend.StateShutoff, nil
}

// MaxMemory implements backend.MemoryManager.
func (s *FileStore) MaxMemory(_ context.Context, dom backend.Domain) (uint64, error) {
	def, err := s.read(dom)
	if err != nil {
		return 0, err
	}
	return maxMemoryKiB(def)
}

// SetMaxMemory implements backend.MemoryManager. The current memory is
// lowered when it would exceed the new maximum.
func (s *FileStore) SetMaxMemory(_ context.Context, dom backend.Domain, kib uint64) error {
	if kib == 0 {
		return fmt.Errorf("%w: memory size must be positive", backend.ErrInvalidArgument)
	}
	return s.modify(dom, func(def *libvirtxml.Domain) error {
		cur, err := currentMemoryKiB(def)
		if err != nil {
			return err
		}
		def.Memory = &libvirtxml.DomainMemory{Value: uint(kib), Unit: "KiB"}
		if cur > kib || def.CurrentMemory == nil {
			cur = kib
		}
		def.CurrentMemory = &libvirtxml.DomainCurrentMemory{Value: uint(cur), Unit: "KiB"}
		return nil
	})
}

// SetMemory implements backend.MemoryManager.
func (s *FileStore) SetMemory(_ context.Context, dom backend.Domain, kib uint64) error {
	return s.modify(dom, func(def *libvirtxml.Domain) error {
		limit, err := maxMemoryKiB(def)
		if err != nil {
			return err
		}
		if kib == 0 || kib > limit {
			return fmt.Errorf("%w: memory %d KiB outside 1..%d", backend.ErrInvalidArgument, kib, limit)
		}
		def.CurrentMemory = &libvirtxml.DomainCurrentMemory{Value: uint(kib), Unit: "KiB"}
		return nil
	})
}

// Autostart implements backend.Autostarter.
func (s *FileStore) Autostart(_ context.Context, dom backend.Domain) (bool, error) {
	if _, err := s.read(dom); err != nil {
		return false, err
	}
	link, err := naming.AutostartLink(s.opts.AutostartDir, dom.Name)
	if err != nil {
		return false, fmt.Errorf("%w: %v", backend.ErrInvalidArgument, err)
	}
	if _, err := os.Lstat(link); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", link, err)
	}
	return true, nil
}

// SetAutostart implements backend.Autostarter with a symlink to the
// domain's file.
func (s *FileStore) SetAutostart(_ context.Context, dom backend.Domain, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.read(dom); err != nil {
		return err
	}
	target, _ := naming.ConfigFile(s.opts.Dir, dom.Name)
	link, _ := naming.AutostartLink(s.opts.AutostartDir, dom.Name)

	if !on {
		if err := os.Remove(link); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove autostart link %s: %w", link, err)
		}
		return nil
	}

	if _, err := os.Lstat(link); err == nil {
		return nil
	}
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("failed to create autostart link %s: %w", link, err)
	}
	s.log.WithField("domain", dom.Name).Debug("Enabled autostart")
	return nil
}

// XMLDesc implements backend.XMLDescriber. A non-empty cpus fills in a
// missing vcpu placement.
func (s *FileStore) XMLDesc(_ context.Context, dom backend.Domain, _ uint32, cpus string) (string, error) {
	def, err := s.read(dom)
	if err != nil {
		return "", err
	}
	if cpus != "" && def.VCPU != nil && def.VCPU.CPUSet == "" {
		def.VCPU.CPUSet = cpus
	}
	out, err := def.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain %s: %w", dom.Name, err)
	}
	return out, nil
}
