package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reviewlens/reviewlens/internal/cache"
	"github.com/reviewlens/reviewlens/internal/metrics"
	"github.com/reviewlens/reviewlens/internal/progress"
	"github.com/reviewlens/reviewlens/internal/query"
	"github.com/reviewlens/reviewlens/pkg/ratelimit"
)

// Runner executes one analysis request, terminating the stream itself.
type Runner interface {
	Run(ctx context.Context, q query.Query, stream *progress.Stream)
}

// Config wires the HTTP surface to the pipeline and its shared state.
type Config struct {
	Port int
	// Providers maps provider names to whether they are configured, for the
	// health endpoint.
	Providers map[string]bool
	// StreamBuffer sizes each request's progress channel.
	StreamBuffer int
	// MountMetrics exposes /metrics on this router; off when a standalone
	// metrics listener is running instead.
	MountMetrics bool
}

// Server is the public HTTP surface: the SSE analysis endpoint, health, and
// optionally metrics.
type Server struct {
	cfg     Config
	runner  Runner
	limiter *ratelimit.Window
	cache   *cache.Cache
	logger  *slog.Logger
	router  *chi.Mux
	srv     *http.Server
}

// New builds the server and its routes.
func New(cfg Config, runner Runner, limiter *ratelimit.Window, c *cache.Cache, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = 64
	}

	s := &Server{
		cfg:     cfg,
		runner:  runner,
		limiter: limiter,
		cache:   c,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/analyze", s.handleAnalyze)
	r.Get("/health", s.handleHealth)
	if cfg.MountMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	s.router = r
	return s
}

// Handler exposes the router, primarily for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens until the context is cancelled, then shuts down gracefully
// within the given timeout. In-flight SSE streams get that long to finish.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: SSE responses are long-lived by design.
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "port", s.cfg.Port)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// handleAnalyze validates the product, admits the client through the rate
// limiter, and streams pipeline progress as SSE frames. Every stream ends in
// exactly one terminal event.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	q, err := query.New(r.URL.Query().Get("product"))
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("invalid").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if !s.limiter.Admit(clientID(r)) {
		metrics.AnalysesTotal.WithLabelValues("rate_limited").Inc()
		s.logger.Warn("rate limited", "client", clientID(r), "key", q.Key)
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": "rate limit exceeded, try again later",
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	stream := progress.NewStream(s.cfg.StreamBuffer)
	go s.runner.Run(r.Context(), q, stream)

	for ev := range stream.Events() {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("marshal progress event", "err", err)
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			// Client went away; the pipeline notices via r.Context().
			return
		}
		flusher.Flush()
	}
}

// handleHealth reports liveness plus which external providers are configured
// and how full the result cache is.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":     "ok",
		"cache_size": s.cache.Len(),
	}
	for name, configured := range s.cfg.Providers {
		resp[name] = configured
	}
	writeJSON(w, http.StatusOK, resp)
}

// clientID buckets rate limiting by client IP. middleware.RealIP has already
// resolved X-Forwarded-For / X-Real-IP into RemoteAddr.
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
