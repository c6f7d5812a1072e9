// Package naming provides the on-disk naming conventions shared by the
// facade and its adapters: managed-save images, file store configuration
// files, autostart links and monitor sockets.
//
// Every helper that builds a path from a domain name goes through
// ValidateDomainName first so a name can never escape its directory.
package naming

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	saveSuffix    = ".save"
	configSuffix  = ".xml"
	monitorSuffix = ".monitor"
)

// ValidateDomainName rejects names that cannot be used as a single file
// name component: empty names, "." and "..", and names containing a path
// separator or a NUL byte.
func ValidateDomainName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("domain name is required")
	case name == "." || name == "..":
		return fmt.Errorf("invalid domain name %q", name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("domain name %q contains a NUL byte", name)
	case strings.ContainsRune(name, '/') || filepath.Base(name) != name:
		return fmt.Errorf("domain name %q contains a path separator", name)
	}
	return nil
}

// ManagedSaveFile returns the managed-save image path of a domain.
// Format: {dir}/{name}.save
func ManagedSaveFile(dir, name string) (string, error) {
	if err := ValidateDomainName(name); err != nil {
		return "", err
	}
	return filepath.Join(dir, name+saveSuffix), nil
}

// ConfigFile returns the file store path of a domain definition.
// Format: {dir}/{name}.xml
func ConfigFile(dir, name string) (string, error) {
	if err := ValidateDomainName(name); err != nil {
		return "", err
	}
	return filepath.Join(dir, name+configSuffix), nil
}

// DomainFromConfigFile returns the domain name encoded in a file store path,
// and false when the path is not a configuration file.
func DomainFromConfigFile(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, configSuffix) || strings.HasPrefix(base, ".") {
		return "", false
	}
	name := strings.TrimSuffix(base, configSuffix)
	if ValidateDomainName(name) != nil {
		return "", false
	}
	return name, true
}

// AutostartLink returns the autostart symlink path of a domain.
// Format: {dir}/{name}.xml
func AutostartLink(dir, name string) (string, error) {
	return ConfigFile(dir, name)
}

// MonitorSocket returns the QMP monitor socket path of a running domain.
// Format: {dir}/{name}.monitor
func MonitorSocket(dir, name string) (string, error) {
	if err := ValidateDomainName(name); err != nil {
		return "", err
	}
	return filepath.Join(dir, name+monitorSuffix), nil
}

// PersistentConfigPath returns the daemon's per-UUID configuration path
// consulted to decide whether a running domain is persistent.
// Format: {dir}/{uuid}
func PersistentConfigPath(dir string, id uuid.UUID) string {
	return filepath.Join(dir, id.String())
}
