package driver

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jbweber/vmux/internal/backend"
	"github.com/jbweber/vmux/internal/naming"
)

// managedSavePath returns the managed-save image path of dom.
func (c *Conn) managedSavePath(dom backend.Domain) (string, error) {
	c.mu.Lock()
	dir := c.saveDir
	c.mu.Unlock()

	if dir == "" {
		return "", fmt.Errorf("%w: no managed save directory", backend.ErrUnsupported)
	}
	path, err := naming.ManagedSaveFile(dir, dom.Name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", backend.ErrInvalidArgument, err)
	}
	return path, nil
}

func checkNoFlags(op string, flags uint32) error {
	if flags != 0 {
		return fmt.Errorf("%w: %s takes no flags, got 0x%x", backend.ErrInvalidArgument, op, flags)
	}
	return nil
}

// ManagedSave saves dom to its managed-save image. The next Create resumes
// from it.
func (c *Conn) ManagedSave(ctx context.Context, dom backend.Domain, flags uint32) error {
	if err := checkNoFlags("managed save", flags); err != nil {
		return err
	}
	path, err := c.managedSavePath(dom)
	if err != nil {
		return err
	}
	s, err := c.saver()
	if err != nil {
		return err
	}
	c.log.WithField("domain", dom.Name).WithField("path", path).Info("Saving domain to managed save image")
	return s.Save(ctx, dom, path)
}

// HasManagedSaveImage reports whether dom has a managed-save image.
func (c *Conn) HasManagedSaveImage(_ context.Context, dom backend.Domain, flags uint32) (bool, error) {
	if err := checkNoFlags("managed save check", flags); err != nil {
		return false, err
	}
	path, err := c.managedSavePath(dom)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check managed save image %s: %w", path, err)
	}
	return true, nil
}

// ManagedSaveRemove deletes the managed-save image of dom.
func (c *Conn) ManagedSaveRemove(_ context.Context, dom backend.Domain, flags uint32) error {
	if err := checkNoFlags("managed save remove", flags); err != nil {
		return err
	}
	path, err := c.managedSavePath(dom)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove managed save image %s: %w", path, err)
	}
	return nil
}

// Create starts a defined domain. A managed-save image, when present, is
// restored through the daemon and deleted once the restore succeeded;
// otherwise each adapter that can start domains is tried in order. An
// image that cannot be restored fails the call.
func (c *Conn) Create(ctx context.Context, dom backend.Domain) error {
	path, err := c.managedSavePath(dom)
	if err != nil {
		return err
	}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		return c.restoreManagedSave(ctx, dom, path)
	case !errors.Is(statErr, os.ErrNotExist):
		return fmt.Errorf("failed to check managed save image %s: %w", path, statErr)
	}

	_, err = tryEach(c, "create", c.forward(), func(cr backend.DomainCreator) backend.Result[backend.Void] {
		return cr.Create(ctx, dom)
	})
	return err
}

func (c *Conn) restoreManagedSave(ctx context.Context, dom backend.Domain, path string) error {
	s, err := c.saver()
	if err != nil {
		return fmt.Errorf("cannot restore managed save image %s: %w", path, err)
	}
	c.log.WithField("domain", dom.Name).Info("Restoring domain from managed save image")
	if err := s.Restore(ctx, path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		c.log.WithError(err).WithField("path", path).Warn("Failed to remove managed save image after restore")
	}
	return nil
}
