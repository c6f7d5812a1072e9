package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jbweber/vmux/internal/backend"
	"github.com/jbweber/vmux/internal/cpumap"
)

var vcpuStateNames = map[int32]string{
	backend.VcpuOffline: "offline",
	backend.VcpuRunning: "running",
	backend.VcpuBlocked: "blocked",
}

var vcpuInfoCmd = domainCommand("vcpuinfo <domain>", "Show per-vcpu placement and affinity",
	func(ctx context.Context, s *session, dom backend.Domain, _ []string) error {
		node, err := s.conn.NodeGetInfo(ctx)
		if err != nil {
			return fmt.Errorf("failed to get node info: %w", err)
		}
		maxInfo, err := s.conn.GetMaxVcpus(ctx, dom)
		if err != nil {
			maxInfo, err = s.conn.GetVcpusFlags(ctx, dom, backend.VcpuConfig|backend.VcpuMaximum)
			if err != nil {
				return err
			}
		}
		mapLen := cpumap.MapLen(node.MaxCPUs())

		list, err := s.conn.GetVcpus(ctx, dom, maxInfo, mapLen)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		if !noHeaders {
			_, _ = fmt.Fprintln(w, "VCPU\tCPU\tSTATE\tCPU TIME\tAFFINITY")
		}
		for i, v := range list.Info {
			cpu := "-"
			if v.CPU >= 0 {
				cpu = strconv.Itoa(int(v.CPU))
			}
			state, ok := vcpuStateNames[v.State]
			if !ok {
				state = "unknown"
			}
			affinity := affinityRow(list.CPUMaps, mapLen, i, node.CPUs)
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				v.Number, cpu, state, time.Duration(v.CPUTime).Round(time.Millisecond), affinity)
		}
		return w.Flush()
	})

// affinityRow formats row vcpu of a packed affinity table.
func affinityRow(maps []byte, mapLen, vcpu, cpus int) string {
	start := vcpu * mapLen
	if mapLen <= 0 || start+mapLen > len(maps) {
		return "-"
	}
	set := cpumap.FromBytes(maps[start:start+mapLen], cpus)
	if set.Count() == 0 {
		return "-"
	}
	return set.String()
}

var vcpuPinCmd = domainCommand("vcpupin <domain> <vcpu> <cpulist>", "Pin a vcpu to host CPUs",
	func(ctx context.Context, s *session, dom backend.Domain, args []string) error {
		if len(args) != 2 {
			return fmt.Errorf("expected a vcpu number and a cpu list")
		}
		vcpu, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid vcpu number %q: %w", args[0], err)
		}
		node, err := s.conn.NodeGetInfo(ctx)
		if err != nil {
			return fmt.Errorf("failed to get node info: %w", err)
		}
		set, err := cpumap.Parse(args[1], node.MaxCPUs())
		if err != nil {
			return fmt.Errorf("invalid cpu list %q: %w", args[1], err)
		}
		if set.Count() == 0 {
			return fmt.Errorf("cpu list %q selects no host cpu", args[1])
		}
		return s.conn.PinVcpu(ctx, dom, uint32(vcpu), set.Bytes())
	})

var (
	vcpuConfig  bool
	vcpuLive    bool
	vcpuMaximum bool
)

// vcpuFlags maps the command-line switches. Neither --config nor --live
// means the current state: live for a running domain, config otherwise.
func vcpuFlags(dom backend.Domain, config, live, maximum bool) backend.VcpuFlags {
	var flags backend.VcpuFlags
	if config {
		flags |= backend.VcpuConfig
	}
	if live {
		flags |= backend.VcpuLive
	}
	if flags == 0 {
		if dom.IsActive() {
			flags = backend.VcpuLive
		} else {
			flags = backend.VcpuConfig
		}
	}
	if maximum {
		flags |= backend.VcpuMaximum
	}
	return flags
}

var setVcpusCmd = domainCommand("setvcpus <domain> <count>", "Change the number of vcpus",
	func(ctx context.Context, s *session, dom backend.Domain, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("expected a vcpu count")
		}
		n, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid vcpu count %q: %w", args[0], err)
		}
		if !vcpuConfig && !vcpuLive && !vcpuMaximum {
			return s.conn.SetVcpus(ctx, dom, uint(n))
		}
		return s.conn.SetVcpusFlags(ctx, dom, uint(n), vcpuFlags(dom, vcpuConfig, vcpuLive, vcpuMaximum))
	})

var vcpuCountCmd = domainCommand("vcpucount <domain>", "Show the configured and live vcpu counts",
	func(ctx context.Context, s *session, dom backend.Domain, _ []string) error {
		rows := []struct {
			label string
			flags backend.VcpuFlags
		}{
			{"maximum config", backend.VcpuConfig | backend.VcpuMaximum},
			{"maximum live", backend.VcpuLive | backend.VcpuMaximum},
			{"current config", backend.VcpuConfig},
			{"current live", backend.VcpuLive},
		}
		for _, row := range rows {
			if row.flags&backend.VcpuLive != 0 && !dom.IsActive() {
				continue
			}
			n, err := s.conn.GetVcpusFlags(ctx, dom, row.flags)
			if err != nil {
				fmt.Printf("%-15s %s\n", row.label, "-")
				continue
			}
			fmt.Printf("%-15s %d\n", row.label, n)
		}
		return nil
	})

var schedSet []string

var schedInfoCmd = domainCommand("schedinfo <domain>", "Show or change scheduler parameters",
	func(ctx context.Context, s *session, dom backend.Domain, _ []string) error {
		if len(schedSet) > 0 {
			params, err := parseSchedParams(schedSet)
			if err != nil {
				return err
			}
			if err := s.conn.SetSchedulerParameters(ctx, dom, params); err != nil {
				return err
			}
		}

		st, err := s.conn.GetSchedulerType(ctx, dom)
		if err != nil {
			return err
		}
		fmt.Printf("%-20s: %s\n", "Scheduler", st.Name)

		params, err := s.conn.GetSchedulerParameters(ctx, dom)
		if err != nil {
			return err
		}
		for _, p := range params {
			fmt.Printf("%-20s: %d\n", p.Field, p.Value)
		}
		return nil
	})

// parseSchedParams reads field=value pairs.
func parseSchedParams(pairs []string) ([]backend.SchedParam, error) {
	params := make([]backend.SchedParam, 0, len(pairs))
	for _, pair := range pairs {
		field, value, ok := strings.Cut(pair, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid scheduler parameter %q, expected field=value", pair)
		}
		v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", field, err)
		}
		params = append(params, backend.SchedParam{Field: field, Value: v})
	}
	return params, nil
}

func init() {
	setVcpusCmd.Flags().BoolVar(&vcpuConfig, "config", false, "Change the persistent configuration")
	setVcpusCmd.Flags().BoolVar(&vcpuLive, "live", false, "Change the running domain")
	setVcpusCmd.Flags().BoolVar(&vcpuMaximum, "maximum", false, "Change the maximum instead of the current count")
	schedInfoCmd.Flags().StringArrayVar(&schedSet, "set", nil, "Set a parameter, field=value (repeatable)")
}
