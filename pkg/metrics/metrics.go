// Package metrics provides the /metrics endpoint for
// the bioactivity dump. All metrics are defined in their respective packages
// (client, pagination, loader, checkpoint) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Handler returns the HTTP handler exposing the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server exposes /metrics for the lifetime of a run.
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics server listening on addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves in the background. Listen errors are logged.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("Serving metrics")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", s.srv.Addr).Msg("Metrics server failed")
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - bioactivity_api_requests_total{status} (Counter): Upstream requests by HTTP status
//   - bioactivity_api_request_duration_seconds (Histogram): Upstream request duration
//   - bioactivity_api_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Retry Metrics (pkg/client):
//   - bioactivity_api_retries_total{error_class} (Counter): Retry attempts by error class
//   - bioactivity_api_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - bioactivity_api_retry_exhausted_total{error_class} (Counter): Fetches that exhausted max retries
//
// Extraction Metrics (pkg/pagination):
//   - bioactivity_pages_loaded_total (Counter): Pages fetched and committed
//   - bioactivity_pages_skipped_total (Counter): Pages skipped after the fetch failed
//   - bioactivity_pages_resumed_total (Counter): Pages skipped because a checkpoint marked them loaded
//   - bioactivity_rows_loaded_total (Counter): Rows committed by extraction workers
//   - bioactivity_workers_active (Gauge): Workers currently running
//
// Loader Metrics (pkg/loader):
//   - bioactivity_loader_rows_written_total{table} (Counter): Rows committed by table
//   - bioactivity_loader_commits_total{table} (Counter): Transaction commits by table
//   - bioactivity_loader_write_errors_total{table} (Counter): Row write failures by table
//
// Checkpoint Metrics (pkg/checkpoint):
//   - bioactivity_checkpoint_hits_total (Counter): Pages found already loaded
//   - bioactivity_checkpoint_misses_total (Counter): Pages not yet loaded in this run
//   - bioactivity_checkpoint_writes_total (Counter): Pages marked loaded
//   - bioactivity_checkpoint_errors_total{operation} (Counter): Checkpoint store errors
//
// Example Prometheus Queries:
//
//   # Skipped page ratio
//   sum(bioactivity_pages_skipped_total) /
//   (sum(bioactivity_pages_loaded_total) + sum(bioactivity_pages_skipped_total))
//
//   # Upstream error rate
//   rate(bioactivity_api_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(bioactivity_api_request_duration_seconds_bucket[5m]))
//
//   # Load throughput
//   rate(bioactivity_loader_rows_written_total[1m])
