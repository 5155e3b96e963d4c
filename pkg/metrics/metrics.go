// Package metrics exposes the harvester's Prometheus metrics over HTTP.
// All metrics are defined in their respective packages (cache, client,
// ratelimit, extract, pagination) and registered via promauto.
//
// Cache Metrics (pkg/cache):
//   - harvest_cache_hits_total{tier} (Counter): Cache hits by tier (raw, parsed)
//   - harvest_cache_misses_total{tier} (Counter): Cache misses by tier
//   - harvest_cache_writes_total{tier} (Counter): Artifacts written by tier
//   - harvest_cache_size_bytes{tier} (Gauge): Bytes written this run by tier
//   - harvest_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - harvest_requests_total{status} (Counter): Live requests by final HTTP status
//   - harvest_request_duration_seconds (Histogram): Live request duration, retries included
//   - harvest_session_resets_total (Counter): Sessions replaced after transient errors
//   - harvest_fetch_outcomes_total{outcome, source} (Counter): Fetch outcomes by source
//   - harvest_retries_total{reason} (Counter): Session retries by status or "network"
//   - harvest_retry_backoff_seconds (Histogram): Backoff before session retries
//
// Pacing Metrics (pkg/ratelimit):
//   - harvest_throttle_wait_seconds (Histogram): Time spent waiting before live requests
//   - harvest_cooldowns_total (Counter): Cooldowns started
//   - harvest_cooldown_remaining_seconds (Gauge): Seconds until requests resume
//
// Extraction Metrics (pkg/extract):
//   - harvest_rows_extracted_total (Counter): Records extracted
//   - harvest_rows_skipped_total{reason} (Counter): Rows skipped by reason
//   - harvest_tables_missing_total (Counter): Pages without a results table
//
// Pagination Metrics (pkg/pagination):
//   - harvest_pages_total{outcome} (Counter): Pages processed by outcome
//   - harvest_consecutive_failures (Gauge): Current consecutive failure count
//
// Example Prometheus Queries:
//
//	# Cache Hit Rate
//	sum(rate(harvest_cache_hits_total[5m])) /
//	(sum(rate(harvest_cache_hits_total[5m])) + sum(rate(harvest_cache_misses_total[5m])))
//
//	# Transient error rate
//	rate(harvest_fetch_outcomes_total{outcome="transient"}[5m])
//
//	# P95 Request Latency
//	histogram_quantile(0.95, rate(harvest_request_duration_seconds_bucket[5m]))
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the Prometheus registerer the harvester's metrics live in.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the matching gatherer served on /metrics.
var Gatherer = prometheus.DefaultGatherer

// Handler returns a mux serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Server serves metrics for the duration of a run.
type Server struct {
	server   *http.Server
	listener net.Listener
	logger   zerolog.Logger
}

// Listen binds addr and starts serving in the background.
func Listen(addr string, logger zerolog.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	s := &Server{
		server: &http.Server{
			Handler:           Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: listener,
		logger:   logger,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	logger.Info().Str("addr", listener.Addr().String()).Msg("Serving metrics")
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
