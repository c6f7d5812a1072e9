//go:build nowatch

package driver

import "github.com/jbweber/vmux/internal/config"

func watchDescriptor(*config.Config) (Descriptor, bool) {
	return Descriptor{}, false
}
