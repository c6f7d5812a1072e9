//go:build !nowatch

package driver

import (
	"github.com/jbweber/vmux/internal/backend"
	"github.com/jbweber/vmux/internal/backend/watch"
	"github.com/jbweber/vmux/internal/config"
)

func watchDescriptor(cfg *config.Config) (Descriptor, bool) {
	if !cfg.Watch.Enabled || !cfg.FileStore.Enabled {
		return Descriptor{}, false
	}
	return Descriptor{
		ID: backend.Watch,
		New: func() backend.Backend {
			return watch.New(watch.Options{Dir: cfg.FileStore.Dir})
		},
	}, true
}
