package driver

import (
	"github.com/jbweber/vmux/internal/backend"
	"github.com/jbweber/vmux/internal/backend/daemon"
	"github.com/jbweber/vmux/internal/backend/filestore"
	"github.com/jbweber/vmux/internal/backend/hypervisor"
	"github.com/jbweber/vmux/internal/config"
)

// Descriptor registers one adapter. New is called once per connection.
type Descriptor struct {
	ID  backend.ID
	New func() backend.Backend
}

// Registry lists the available adapters, at most one per backend ID. The
// slice order is not significant: adapters are opened and consulted in
// backend ID order.
type Registry []Descriptor

// Lookup returns the descriptor registered for id.
func (r Registry) Lookup(id backend.ID) (Descriptor, bool) {
	for _, d := range r {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

// DefaultRegistry returns the adapters built into this binary, configured
// from cfg.
func DefaultRegistry(cfg *config.Config) Registry {
	r := Registry{
		{
			ID: backend.Hypervisor,
			New: func() backend.Backend {
				return hypervisor.New(hypervisor.Options{
					Device:  cfg.Hypervisor.Device,
					QMPDir:  cfg.Hypervisor.QMPDir,
					ProcDir: cfg.Hypervisor.ProcDir,
					SysDir:  cfg.Hypervisor.SysDir,
				})
			},
		},
		{
			ID: backend.Daemon,
			New: func() backend.Backend {
				return daemon.New(daemon.Options{
					Socket:        cfg.Daemon.Socket,
					Timeout:       cfg.Daemon.Timeout,
					ConfigVersion: cfg.Daemon.ConfigVersion,
				})
			},
		},
	}

	if cfg.FileStore.Enabled {
		r = append(r, Descriptor{
			ID: backend.FileStore,
			New: func() backend.Backend {
				return filestore.New(filestore.Options{
					Dir:          cfg.FileStore.Dir,
					AutostartDir: cfg.FileStore.AutostartDir,
				})
			},
		})
	}

	if d, ok := watchDescriptor(cfg); ok {
		r = append(r, d)
	}

	return r
}
