package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default locations used when the configuration file leaves a field empty.
const (
	DefaultURI                 = "vmux:///"
	DefaultHypervisorDevice    = "/dev/kvm"
	DefaultQMPDir              = "/run/vmux/monitor"
	DefaultProcDir             = "/proc"
	DefaultSysDir              = "/sys"
	DefaultDaemonSocket        = "/var/run/libvirt/libvirt-sock"
	DefaultDaemonTimeout       = 5 * time.Second
	DefaultFileStoreDir        = "/etc/vmux/domains"
	DefaultSaveDir             = "/var/lib/vmux/save"
	DefaultPersistentConfigDir = "/var/lib/vmux/domains"
)

// Config is the facade configuration.
type Config struct {
	URI                 string           `yaml:"uri,omitempty"`
	Hypervisor          HypervisorConfig `yaml:"hypervisor"`
	Daemon              DaemonConfig     `yaml:"daemon"`
	FileStore           FileStoreConfig  `yaml:"filestore"`
	Watch               WatchConfig      `yaml:"watch"`
	SaveDir             string           `yaml:"save_dir,omitempty"`             // Managed-save images, <name>.save
	PersistentConfigDir string           `yaml:"persistent_config_dir,omitempty"` // Daemon's per-UUID config directory
	Log                 LogConfig        `yaml:"log"`
	Metrics             MetricsConfig    `yaml:"metrics"`
}

// HypervisorConfig configures direct access to running guests.
type HypervisorConfig struct {
	Device  string `yaml:"device,omitempty"`   // Checked when no URI is given
	QMPDir  string `yaml:"qmp_dir,omitempty"`  // Where <name>.monitor sockets live
	ProcDir string `yaml:"proc_dir,omitempty"` // procfs mount, for tests
	SysDir  string `yaml:"sys_dir,omitempty"`  // sysfs mount, for NUMA node counts
}

// DaemonConfig configures the management daemon connection.
type DaemonConfig struct {
	Socket        string        `yaml:"socket,omitempty"`
	Timeout       time.Duration `yaml:"timeout,omitempty"`
	ConfigVersion int           `yaml:"config_version,omitempty"` // 0 = detect from the daemon
}

// FileStoreConfig configures the legacy configuration directory.
type FileStoreConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Dir          string `yaml:"dir,omitempty"`
	AutostartDir string `yaml:"autostart_dir,omitempty"` // default: <dir>/autostart
}

// WatchConfig configures the file store watcher.
type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // text or json
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"` // empty disables the endpoint
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := unset()
	c.ApplyDefaults()
	return c
}

// unset returns a configuration with only the switches that default to on.
// Derived fields stay empty until ApplyDefaults runs.
func unset() *Config {
	return &Config{
		FileStore: FileStoreConfig{Enabled: true},
		Watch:     WatchConfig{Enabled: true},
	}
}

// ApplyDefaults fills empty fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.URI == "" {
		c.URI = DefaultURI
	}
	if c.Hypervisor.Device == "" {
		c.Hypervisor.Device = DefaultHypervisorDevice
	}
	if c.Hypervisor.QMPDir == "" {
		c.Hypervisor.QMPDir = DefaultQMPDir
	}
	if c.Hypervisor.ProcDir == "" {
		c.Hypervisor.ProcDir = DefaultProcDir
	}
	if c.Hypervisor.SysDir == "" {
		c.Hypervisor.SysDir = DefaultSysDir
	}
	if c.Daemon.Socket == "" {
		c.Daemon.Socket = DefaultDaemonSocket
	}
	if c.Daemon.Timeout == 0 {
		c.Daemon.Timeout = DefaultDaemonTimeout
	}
	if c.FileStore.Dir == "" {
		c.FileStore.Dir = DefaultFileStoreDir
	}
	if c.FileStore.AutostartDir == "" {
		c.FileStore.AutostartDir = filepath.Join(c.FileStore.Dir, "autostart")
	}
	if c.SaveDir == "" {
		c.SaveDir = DefaultSaveDir
	}
	if c.PersistentConfigDir == "" {
		c.PersistentConfigDir = DefaultPersistentConfigDir
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// LoadFromFile reads a YAML configuration file, applies defaults and
// validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return LoadFromYAML(data)
}

// LoadFromYAML parses a YAML configuration document.
func LoadFromYAML(data []byte) (*Config, error) {
	c := unset()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	c.ApplyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	u, err := url.Parse(c.URI)
	if err != nil {
		return fmt.Errorf("uri: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "vmux") {
		return fmt.Errorf("uri: scheme must be vmux, got %q", u.Scheme)
	}

	if err := c.Daemon.Validate(); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	if err := c.FileStore.Validate(); err != nil {
		return fmt.Errorf("filestore: %w", err)
	}
	if c.Watch.Enabled && !c.FileStore.Enabled {
		return fmt.Errorf("watch: requires filestore to be enabled")
	}
	if !filepath.IsAbs(c.SaveDir) {
		return fmt.Errorf("save_dir must be an absolute path, got %q", c.SaveDir)
	}
	if !filepath.IsAbs(c.PersistentConfigDir) {
		return fmt.Errorf("persistent_config_dir must be an absolute path, got %q", c.PersistentConfigDir)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// Validate checks the daemon section.
func (d *DaemonConfig) Validate() error {
	if d.Socket == "" {
		return fmt.Errorf("socket is required")
	}
	if d.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %s", d.Timeout)
	}
	if d.ConfigVersion < 0 || d.ConfigVersion > 4 {
		return fmt.Errorf("config_version must be between 0 and 4, got %d", d.ConfigVersion)
	}
	return nil
}

// Validate checks the file store section.
func (f *FileStoreConfig) Validate() error {
	if !f.Enabled {
		return nil
	}
	if !filepath.IsAbs(f.Dir) {
		return fmt.Errorf("dir must be an absolute path, got %q", f.Dir)
	}
	if !filepath.IsAbs(f.AutostartDir) {
		return fmt.Errorf("autostart_dir must be an absolute path, got %q", f.AutostartDir)
	}
	return nil
}

// Validate checks the log section.
func (l *LogConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		return fmt.Errorf("unknown level %q", l.Level)
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("format must be text or json, got %q", l.Format)
	}
	return nil
}
