package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/vmux/internal/backend"
)

// lifecycleCommand wraps a single-call state change.
func lifecycleCommand(use, short, done string, fn func(ctx context.Context, s *session, dom backend.Domain) error) *cobra.Command {
	cmd := domainCommand(use, short, func(ctx context.Context, s *session, dom backend.Domain, _ []string) error {
		if err := fn(ctx, s, dom); err != nil {
			return err
		}
		fmt.Printf("✓ Domain %s %s\n", dom.Name, done)
		return nil
	})
	cmd.Args = cobra.ExactArgs(1)
	return cmd
}

var startCmd = lifecycleCommand("start <domain>", "Start a defined domain", "started",
	func(ctx context.Context, s *session, dom backend.Domain) error {
		return s.conn.Create(ctx, dom)
	})

var suspendCmd = lifecycleCommand("suspend <domain>", "Pause a running domain", "suspended",
	func(ctx context.Context, s *session, dom backend.Domain) error {
		return s.conn.Suspend(ctx, dom)
	})

var resumeCmd = lifecycleCommand("resume <domain>", "Resume a paused domain", "resumed",
	func(ctx context.Context, s *session, dom backend.Domain) error {
		return s.conn.Resume(ctx, dom)
	})

var shutdownCmd = lifecycleCommand("shutdown <domain>", "Ask the guest to power off", "is being shutdown",
	func(ctx context.Context, s *session, dom backend.Domain) error {
		return s.conn.Shutdown(ctx, dom)
	})

var rebootCmd = lifecycleCommand("reboot <domain>", "Ask the guest to restart", "is being rebooted",
	func(ctx context.Context, s *session, dom backend.Domain) error {
		return s.conn.Reboot(ctx, dom, 0)
	})

var destroyCmd = lifecycleCommand("destroy <domain>", "Stop a domain immediately", "destroyed",
	func(ctx context.Context, s *session, dom backend.Domain) error {
		return s.conn.Destroy(ctx, dom)
	})

var managedSaveCmd = lifecycleCommand("managedsave <domain>", "Save a domain so the next start resumes it", "state saved",
	func(ctx context.Context, s *session, dom backend.Domain) error {
		return s.conn.ManagedSave(ctx, dom, 0)
	})

var managedSaveRemoveCmd = domainCommand("managedsave-remove <domain>", "Discard the managed save image of a domain",
	func(ctx context.Context, s *session, dom backend.Domain, _ []string) error {
		saved, err := s.conn.HasManagedSaveImage(ctx, dom, 0)
		if err != nil {
			return err
		}
		if !saved {
			fmt.Printf("Domain %s has no managed save image; removal skipped\n", dom.Name)
			return nil
		}
		if err := s.conn.ManagedSaveRemove(ctx, dom, 0); err != nil {
			return err
		}
		fmt.Printf("✓ Removed managed save image for domain %s\n", dom.Name)
		return nil
	})

var saveCmd = domainCommand("save <domain> <file>", "Save a running domain to a file",
	func(ctx context.Context, s *session, dom backend.Domain, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("expected a save file path")
		}
		if err := s.conn.Save(ctx, dom, args[0], "", 0); err != nil {
			return err
		}
		fmt.Printf("✓ Domain %s saved to %s\n", dom.Name, args[0])
		return nil
	})

var dumpCmd = domainCommand("dump <domain> <file>", "Dump the memory of a domain to a file",
	func(ctx context.Context, s *session, dom backend.Domain, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("expected a dump file path")
		}
		if err := s.conn.CoreDump(ctx, dom, args[0], 0); err != nil {
			return err
		}
		fmt.Printf("✓ Domain %s dumped to %s\n", dom.Name, args[0])
		return nil
	})

var restoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Restore a domain from a saved state file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session) error {
			if err := s.conn.Restore(ctx, args[0], "", 0); err != nil {
				return err
			}
			fmt.Printf("✓ Domain restored from %s\n", args[0])
			return nil
		})
	},
}
