// Package metrics exposes the Prometheus registry used by the scraper.
// Metrics are defined in their own packages (transport, hostlimit, cache,
// scraper) and registered via promauto; this package serves them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the /metrics handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServer returns an HTTP server exposing Handler on /metrics.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Serve runs a metrics server on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	srv := NewServer(addr)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Metrics Documentation
//
// Transport Metrics (pkg/transport):
//   - rosacams_requests_total{host, status} (Counter): Upstream requests by host and HTTP status
//   - rosacams_request_duration_seconds{host} (Histogram): Request duration by host
//   - rosacams_errors_total{class} (Counter): Errors by class (client, server, network)
//
// Connection Cap Metrics (pkg/hostlimit):
//   - rosacams_host_inflight_requests{host} (Gauge): Requests currently holding a host slot
//   - rosacams_host_queued_total{host} (Counter): Requests that had to wait for a host slot
//
// Cache Metrics (pkg/cache):
//   - rosacams_cache_hits_total (Counter): Response cache hits
//   - rosacams_cache_misses_total (Counter): Response cache misses
//   - rosacams_cache_errors_total{operation} (Counter): Cache operation errors
//
// Scraper Metrics (pkg/scraper):
//   - rosacams_advances_total{result} (Counter): Next calls by result (ok, empty, exhausted, error)
//   - rosacams_cameras_total (Counter): Cameras returned
//   - rosacams_advance_duration_seconds (Histogram): Duration of one Next call
//   - rosacams_wave_requests_total{wave} (Counter): Fan-out requests by wave (widget, detail)
//
// Example Prometheus Queries:
//
//   # Upstream Error Rate
//   rate(rosacams_errors_total[5m])
//
//   # P95 Page Advance Latency
//   histogram_quantile(0.95, rate(rosacams_advance_duration_seconds_bucket[5m]))
//
//   # Hosts Saturating Their Connection Cap
//   rate(rosacams_host_queued_total[5m]) > 0
//
//   # Cache Hit Rate
//   sum(rate(rosacams_cache_hits_total[5m])) /
//   (sum(rate(rosacams_cache_hits_total[5m])) + sum(rate(rosacams_cache_misses_total[5m])))
