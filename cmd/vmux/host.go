package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test the connection",
	Long: `Open a connection and report which backends were activated, the
daemon's configuration version and the hypervisor version.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session) error {
			fmt.Printf("✓ Connected to %s\n", s.conn.URI())
			fmt.Printf("✓ Backends: %v\n", s.conn.Activated())

			if v := s.conn.ProtocolVersion(); v > 0 {
				fmt.Printf("✓ Configuration version: %d\n", v)
			} else {
				fmt.Println("✓ Configuration version: unknown")
			}

			if v, err := s.conn.Version(ctx); err == nil {
				fmt.Printf("✓ Hypervisor version: %s\n", formatVersion(v))
			}

			hostname, err := s.conn.Hostname()
			if err != nil {
				return err
			}
			fmt.Printf("✓ Hostname: %s\n", hostname)
			return nil
		})
	},
}

var nodeInfoCmd = &cobra.Command{
	Use:   "nodeinfo",
	Short: "Show host CPU and memory information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session) error {
			info, err := s.conn.NodeGetInfo(ctx)
			if err != nil {
				return fmt.Errorf("failed to get node info: %w", err)
			}
			fmt.Printf("%-20s %s\n", "CPU model:", info.Model)
			fmt.Printf("%-20s %d\n", "CPU(s):", info.CPUs)
			fmt.Printf("%-20s %d MHz\n", "CPU frequency:", info.MHz)
			fmt.Printf("%-20s %d\n", "CPU socket(s):", info.Sockets)
			fmt.Printf("%-20s %d\n", "Core(s) per socket:", info.Cores)
			fmt.Printf("%-20s %d\n", "Thread(s) per core:", info.Threads)
			fmt.Printf("%-20s %d\n", "NUMA cell(s):", info.Nodes)
			fmt.Printf("%-20s %d KiB\n", "Memory size:", info.MemoryKiB)

			if free, err := s.conn.NodeGetFreeMemory(ctx); err == nil {
				fmt.Printf("%-20s %d KiB\n", "Free memory:", free/1024)
			}
			return nil
		})
	},
}

// formatVersion unpacks major*1000000 + minor*1000 + micro.
func formatVersion(v uint64) string {
	return fmt.Sprintf("%d.%d.%d", v/1000000, (v%1000000)/1000, v%1000)
}
