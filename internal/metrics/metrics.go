package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewlens_analyses_total",
			Help: "Total number of analysis requests by outcome",
		},
		[]string{"outcome"}, // ok, error, cache_hit, rate_limited, invalid
	)

	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reviewlens_analysis_duration_seconds",
			Help:    "Duration of full (non-cached) analysis pipelines in seconds",
			Buckets: []float64{1, 5, 10, 20, 40, 60, 90, 120},
		},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewlens_cache_hits_total",
			Help: "Result cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewlens_cache_misses_total",
			Help: "Result cache misses",
		},
	)

	SearchResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewlens_search_results_total",
			Help: "Candidate URLs contributed per search provider",
		},
		[]string{"provider"},
	)

	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewlens_fetches_total",
			Help: "Page fetches by result",
		},
		[]string{"result"}, // ok, failed, blocked
	)

	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reviewlens_fetch_duration_seconds",
			Help:    "Duration of page fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20},
		},
	)

	FetchBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewlens_fetch_bytes_total",
			Help: "Total bytes downloaded across page fetches",
		},
	)

	AIProviderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewlens_ai_provider_failures_total",
			Help: "AI provider calls that failed and advanced the fallback chain",
		},
		[]string{"provider"},
	)

	AIProviderSuccesses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewlens_ai_provider_successes_total",
			Help: "AI provider calls that produced the final analysis",
		},
		[]string{"provider"},
	)
)

// RecordFetch updates the fetch metrics for one page fetch.
func RecordFetch(result string, duration time.Duration, bytes int) {
	FetchesTotal.WithLabelValues(result).Inc()
	FetchDuration.Observe(duration.Seconds())
	FetchBytesTotal.Add(float64(bytes))
}

// Server encapsulates a standalone HTTP server for Prometheus metrics, for
// deployments that keep /metrics off the public listener.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
