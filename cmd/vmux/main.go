package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbweber/vmux/internal/config"
	"github.com/jbweber/vmux/internal/driver"
	"github.com/jbweber/vmux/internal/logging"
	"github.com/jbweber/vmux/internal/metrics"
	"github.com/jbweber/vmux/internal/output"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Global flags
var (
	cfgFile      string
	connectURI   string
	logLevel     string
	outputFormat string
	noHeaders    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vmux",
	Short: "vmux - multi-backend virtual machine management",
	Long: `vmux manages virtual machines through one connection that spans the
running hypervisor, the management daemon and the legacy configuration
directory.

Each operation is routed to the backend that owns it for the daemon's
configuration version, or tried on each backend in turn until one
answers.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return output.ValidateFormat(outputFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to the vmux configuration file")
	rootCmd.PersistentFlags().StringVar(&connectURI, "uri", "", "Connection URI (default from config, e.g. vmux:///)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: "+output.FormatNames())
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false, "Omit table headers")

	rootCmd.AddCommand(testConnCmd)
	rootCmd.AddCommand(nodeInfoCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(domInfoCmd)
	rootCmd.AddCommand(dumpXMLCmd)
	rootCmd.AddCommand(defineCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(undefineCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(suspendCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(shutdownCmd)
	rootCmd.AddCommand(rebootCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(managedSaveCmd)
	rootCmd.AddCommand(managedSaveRemoveCmd)
	rootCmd.AddCommand(autostartCmd)
	rootCmd.AddCommand(setMemCmd)
	rootCmd.AddCommand(setMaxMemCmd)
	rootCmd.AddCommand(vcpuInfoCmd)
	rootCmd.AddCommand(vcpuPinCmd)
	rootCmd.AddCommand(vcpuCountCmd)
	rootCmd.AddCommand(setVcpusCmd)
	rootCmd.AddCommand(schedInfoCmd)
	rootCmd.AddCommand(attachDeviceCmd)
	rootCmd.AddCommand(detachDeviceCmd)
	rootCmd.AddCommand(updateDeviceCmd)
	rootCmd.AddCommand(eventsCmd)
}

// loadConfig reads --config when given, otherwise the built-in defaults,
// then applies the command-line overrides and initialises logging.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		loaded, err := config.LoadFromFile(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if err := logging.Init(&logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		return nil, fmt.Errorf("failed to initialise logging: %w", err)
	}
	return cfg, nil
}

// session is an open connection plus what was needed to open it.
type session struct {
	cfg     *config.Config
	conn    *driver.Conn
	metrics *metrics.Recorder
}

// connect opens a connection for one command. The caller must call close.
func connect(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	rec, err := metrics.NewRecorder()
	if err != nil {
		return nil, err
	}

	uri := connectURI
	if uri == "" && cfgFile != "" {
		uri = cfg.URI
	}

	drv := driver.New(cfg, os.Geteuid() == 0, driver.WithMetrics(rec))
	conn, err := drv.Open(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return &session{cfg: cfg, conn: conn, metrics: rec}, nil
}

func (s *session) close() {
	if err := s.conn.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close connection: %v\n", err)
	}
}

// withSession runs fn against a fresh connection.
func withSession(fn func(ctx context.Context, s *session) error) error {
	ctx := context.Background()
	s, err := connect(ctx)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(ctx, s)
}

func newFormatter() (output.Formatter, error) {
	return output.NewFormatter(output.Options{
		Format:    output.Format(outputFormat),
		NoHeaders: noHeaders,
	})
}
