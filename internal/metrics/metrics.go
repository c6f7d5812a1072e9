// Package metrics counts backend dispatch outcomes and connection opens with
// Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jbweber/vmux/internal/backend"
)

const namespace = "vmux"

// Recorder owns the vmux collectors. A nil *Recorder records nothing.
type Recorder struct {
	registry    *prometheus.Registry
	calls       *prometheus.CounterVec
	opens       *prometheus.CounterVec
	activations *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them on a fresh registry.
func NewRecorder() (*Recorder, error) {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Backend calls made by the routers, by operation, backend and outcome.",
		}, []string{"op", "backend", "outcome"}),
		opens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_opens_total",
			Help:      "Connection open attempts by result.",
		}, []string{"result"}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_activations_total",
			Help:      "Backend activations during connection open, by backend and result.",
		}, []string{"backend", "result"}),
	}

	for _, c := range []prometheus.Collector{r.calls, r.opens, r.activations} {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return r, nil
}

// Registry exposes the registry, for tests and custom handlers.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Call records one router-to-backend call.
func (r *Recorder) Call(op string, id backend.ID, status backend.Status) {
	if r == nil {
		return
	}
	r.calls.WithLabelValues(op, id.String(), status.String()).Inc()
}

// Open records one connection open attempt.
func (r *Recorder) Open(err error) {
	if r == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, backend.ErrDeclined):
		result = "declined"
	case err != nil:
		result = "failed"
	}
	r.opens.WithLabelValues(result).Inc()
}

// Activation records the outcome of opening one backend.
func (r *Recorder) Activation(id backend.ID, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	r.activations.WithLabelValues(id.String(), result).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	if r == nil {
		return fmt.Errorf("metrics recorder not configured")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	}
}
