package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jbweber/vmux/api/v1alpha1"
	"github.com/jbweber/vmux/internal/backend"
)

// xmlInactive asks GetXMLDesc for the persistent description.
const xmlInactive uint32 = 1 << 1

// domainCommand builds a command that takes one domain argument and runs fn
// with it resolved.
func domainCommand(use, short string, fn func(ctx context.Context, s *session, dom backend.Domain, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, s *session) error {
				dom, err := resolveDomain(ctx, s.conn, args[0])
				if err != nil {
					return fmt.Errorf("failed to find domain %s: %w", args[0], err)
				}
				return fn(ctx, s, dom, args[1:])
			})
		},
	}
}

var listAll bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List domains",
	Long: `List running domains. With --all, defined but inactive domains are
listed too.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   One YAML document per domain
  -o json   A DomainList object`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session) error {
			doms, err := listDomains(ctx, s.conn, listAll)
			if err != nil {
				return err
			}

			resources := make([]*v1alpha1.Domain, 0, len(doms))
			for _, dom := range doms {
				resources = append(resources, describe(ctx, s.conn, dom))
			}

			formatter, err := newFormatter()
			if err != nil {
				return err
			}
			result, err := formatter.FormatDomainList(resources)
			if err != nil {
				return fmt.Errorf("failed to format output: %w", err)
			}
			fmt.Print(result)
			return nil
		})
	},
}

var domInfoCmd = domainCommand("dominfo <domain>", "Show domain information",
	func(ctx context.Context, s *session, dom backend.Domain, _ []string) error {
		formatter, err := newFormatter()
		if err != nil {
			return err
		}
		result, err := formatter.FormatDomain(describe(ctx, s.conn, dom))
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		fmt.Print(result)
		return nil
	})

var dumpInactive bool

var dumpXMLCmd = domainCommand("dumpxml <domain>", "Print the domain description",
	func(ctx context.Context, s *session, dom backend.Domain, _ []string) error {
		var flags uint32
		if dumpInactive {
			flags |= xmlInactive
		}
		xml, err := s.conn.GetXMLDesc(ctx, dom, flags)
		if err != nil {
			return err
		}
		fmt.Println(xml)
		return nil
	})

var defineCmd = &cobra.Command{
	Use:   "define <file.xml>",
	Short: "Define a domain from a description file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		return withSession(func(ctx context.Context, s *session) error {
			dom, err := s.conn.DefineXML(ctx, string(data))
			if err != nil {
				return fmt.Errorf("failed to define domain: %w", err)
			}
			fmt.Printf("✓ Domain %s defined from %s\n", dom.Name, args[0])
			return nil
		})
	},
}

var createCmd = &cobra.Command{
	Use:   "create <file.xml>",
	Short: "Create and start a transient domain from a description file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		return withSession(func(ctx context.Context, s *session) error {
			dom, err := s.conn.CreateXML(ctx, string(data), 0)
			if err != nil {
				return fmt.Errorf("failed to create domain: %w", err)
			}
			fmt.Printf("✓ Domain %s created from %s\n", dom.Name, args[0])
			return nil
		})
	},
}

var undefineCmd = domainCommand("undefine <domain>", "Remove a domain definition",
	func(ctx context.Context, s *session, dom backend.Domain, _ []string) error {
		if err := s.conn.Undefine(ctx, dom); err != nil {
			return err
		}
		fmt.Printf("✓ Domain %s has been undefined\n", dom.Name)
		return nil
	})

var autostartDisable bool

var autostartCmd = domainCommand("autostart <domain>", "Start a domain with the host",
	func(ctx context.Context, s *session, dom backend.Domain, _ []string) error {
		if err := s.conn.SetAutostart(ctx, dom, !autostartDisable); err != nil {
			return err
		}
		if autostartDisable {
			fmt.Printf("✓ Domain %s unmarked as autostarted\n", dom.Name)
		} else {
			fmt.Printf("✓ Domain %s marked as autostarted\n", dom.Name)
		}
		return nil
	})

var setMemCmd = domainCommand("setmem <domain> <kib>", "Change the current memory allocation",
	func(ctx context.Context, s *session, dom backend.Domain, args []string) error {
		kib, err := kibArg(args)
		if err != nil {
			return err
		}
		return s.conn.SetMemory(ctx, dom, kib)
	})

var setMaxMemCmd = domainCommand("setmaxmem <domain> <kib>", "Change the maximum memory limit",
	func(ctx context.Context, s *session, dom backend.Domain, args []string) error {
		kib, err := kibArg(args)
		if err != nil {
			return err
		}
		return s.conn.SetMaxMemory(ctx, dom, kib)
	})

func kibArg(args []string) (uint64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected a memory size in KiB")
	}
	kib, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid memory size %q: %w", args[0], err)
	}
	return kib, nil
}

func init() {
	listCmd.Flags().BoolVar(&listAll, "all", false, "Include inactive domains")
	dumpXMLCmd.Flags().BoolVar(&dumpInactive, "inactive", false, "Show the persistent description")
	autostartCmd.Flags().BoolVar(&autostartDisable, "disable", false, "Turn autostart off")
}
