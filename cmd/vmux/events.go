package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jbweber/vmux/internal/backend"
)

var (
	eventsDomain      string
	eventsTimeout     time.Duration
	eventsMetricsAddr string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print domain lifecycle events as they happen",
	Long: `Subscribe to domain lifecycle events and print one line per event
until interrupted or --timeout expires.

With --metrics-addr (or metrics.addr in the configuration file) the
backend dispatch counters are served on /metrics while waiting.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if eventsTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, eventsTimeout)
			defer cancel()
		}

		s, err := connect(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		var filter *backend.Domain
		if eventsDomain != "" {
			dom, err := resolveDomain(ctx, s.conn, eventsDomain)
			if err != nil {
				return fmt.Errorf("failed to find domain %s: %w", eventsDomain, err)
			}
			filter = &dom
		}

		id, err := s.conn.DomainEventRegisterAny(filter, backend.EventClassLifecycle, func(ev backend.Event) {
			fmt.Println(formatEvent(time.Now(), ev))
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to events: %w", err)
		}
		defer func() {
			if err := s.conn.DomainEventDeregisterAny(id); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to unsubscribe: %v\n", err)
			}
		}()

		addr := eventsMetricsAddr
		if addr == "" {
			addr = s.cfg.Metrics.Addr
		}

		g, gctx := errgroup.WithContext(ctx)
		if addr != "" {
			g.Go(func() error {
				return s.metrics.Serve(gctx, addr)
			})
		}
		g.Go(func() error {
			<-gctx.Done()
			return nil
		})

		err = g.Wait()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	},
}

// formatEvent renders one event line.
func formatEvent(at time.Time, ev backend.Event) string {
	return fmt.Sprintf("%s event 'lifecycle' for domain '%s': %s (detail %d)",
		at.Format("2006-01-02 15:04:05.000-0700"), ev.Domain.Name, ev.Type, ev.Detail)
}

func init() {
	eventsCmd.Flags().StringVar(&eventsDomain, "domain", "", "Only show events for this domain")
	eventsCmd.Flags().DurationVar(&eventsTimeout, "timeout", 0, "Stop after this long (0 waits for an interrupt)")
	eventsCmd.Flags().StringVar(&eventsMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while waiting")
}
