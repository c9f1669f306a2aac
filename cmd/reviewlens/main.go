package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reviewlens/reviewlens/internal/analysis"
	"github.com/reviewlens/reviewlens/internal/cache"
	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/corpus"
	"github.com/reviewlens/reviewlens/internal/fingerprint"
	"github.com/reviewlens/reviewlens/internal/metrics"
	"github.com/reviewlens/reviewlens/internal/pipeline"
	"github.com/reviewlens/reviewlens/internal/scraper"
	"github.com/reviewlens/reviewlens/internal/serp"
	"github.com/reviewlens/reviewlens/internal/server"
	"github.com/reviewlens/reviewlens/internal/storage"
	"github.com/reviewlens/reviewlens/internal/storage/jsonbackend"
	"github.com/reviewlens/reviewlens/internal/storage/postgres"
	"github.com/reviewlens/reviewlens/internal/storage/sqlite"
	"github.com/reviewlens/reviewlens/pkg/httpclient"
	"github.com/reviewlens/reviewlens/pkg/proxy"
	"github.com/reviewlens/reviewlens/pkg/ratelimit"
	"github.com/reviewlens/reviewlens/pkg/useragent"
)

func main() {
	configPath := flag.String("config", "", "optional path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// API client for the search and AI providers. Generation calls run long,
	// so the client timeout sits above the per-call context deadlines.
	apiClient, err := httpclient.New(httpclient.Config{Timeout: cfg.AI.Timeout + 20*time.Second})
	if err != nil {
		logger.Error("create api client", "err", err)
		os.Exit(1)
	}

	// Search providers.
	uas := useragent.NewPool(nil)
	free, err := serp.NewDuckDuckGo(cfg.Search.DuckDuckGoEndpoint, apiClient, uas)
	if err != nil {
		logger.Error("create duckduckgo provider", "err", err)
		os.Exit(1)
	}
	var paid serp.Provider
	if cfg.Search.SerperAPIKey != "" {
		paid, err = serp.NewSerper(cfg.Search.SerperAPIKey, cfg.Search.SerperEndpoint, apiClient)
		if err != nil {
			logger.Error("create serper provider", "err", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("no serper api key, free search only")
	}
	search := serp.NewAggregator(paid, free, serp.AggregatorConfig{
		TargetCount:     cfg.Search.TargetCount,
		ProviderTimeout: cfg.Search.ProviderTimeout,
	}, logger)

	// Page fetcher.
	var proxies *proxy.Pool
	if cfg.Fetch.ProxyFile != "" {
		proxies = proxy.NewPool(proxy.Config{})
		if err := proxies.LoadFile(cfg.Fetch.ProxyFile); err != nil {
			logger.Error("load proxy file", "path", cfg.Fetch.ProxyFile, "err", err)
			os.Exit(1)
		}
		logger.Info("proxy pool loaded", "proxies", proxies.Len())
	}
	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:     cfg.Fetch.Timeout,
		ProxyPool:   proxies,
		UAPool:      uas,
		Fingerprint: fingerprint.Profile(cfg.Fetch.Fingerprint),
	})
	if err != nil {
		logger.Error("create fetcher", "err", err)
		os.Exit(1)
	}
	batch := scraper.NewBatch(scraper.BatchConfig{
		MaxPages:          cfg.Fetch.MaxPages,
		Concurrency:       cfg.Fetch.Concurrency,
		PerPageChars:      cfg.Fetch.PerPageChars,
		FetchTimeout:      cfg.Fetch.Timeout,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		Jitter:            cfg.Fetch.Jitter,
	}, fetcher, logger)

	// AI fallback chain, in strict preference order.
	var providers []analysis.Provider
	if cfg.AI.GeminiAPIKey != "" {
		p, err := analysis.NewGemini(cfg.AI.GeminiAPIKey, cfg.AI.GeminiBaseURL, cfg.AI.GeminiModel, apiClient)
		if err != nil {
			logger.Error("create gemini provider", "err", err)
			os.Exit(1)
		}
		providers = append(providers, p)
	}
	if cfg.AI.GroqAPIKey != "" {
		p, err := analysis.NewGroq(cfg.AI.GroqAPIKey, cfg.AI.GroqEndpoint, apiClient)
		if err != nil {
			logger.Error("create groq provider", "err", err)
			os.Exit(1)
		}
		providers = append(providers, p)
	}
	if cfg.AI.OpenRouterAPIKey != "" {
		p, err := analysis.NewOpenRouter(cfg.AI.OpenRouterAPIKey, cfg.AI.OpenRouterEndpoint, apiClient)
		if err != nil {
			logger.Error("create openrouter provider", "err", err)
			os.Exit(1)
		}
		providers = append(providers, p)
	}
	chain := analysis.NewChain(providers, cfg.AI.Timeout, logger)
	logger.Info("ai chain configured", "providers", chain.Len())

	// Archive backend.
	archive, err := openArchive(ctx, cfg.Archive)
	if err != nil {
		logger.Error("open archive", "backend", cfg.Archive.Backend, "err", err)
		os.Exit(1)
	}
	if archive != nil {
		defer archive.Close()
	}

	// Shared request state.
	results := cache.New(cfg.Cache.TTL, cfg.Cache.Size)
	limiter := ratelimit.NewWindow(cfg.Limit.Requests, cfg.Limit.Window)
	go sweepLoop(ctx, limiter, cfg.Limit, logger)

	pipe := pipeline.New(search, batch, chain, results, archive, pipeline.Config{
		Corpus: corpus.Config{
			TotalChars:     cfg.Corpus.TotalChars,
			MinPageChars:   cfg.Corpus.MinPageChars,
			RequireOverlap: cfg.Corpus.RequireOverlap,
			OverlapRatio:   cfg.Corpus.OverlapRatio,
		},
		HeartbeatInterval: cfg.AI.Heartbeat,
	}, logger)

	// Optional standalone metrics listener.
	var metricsSrv *metrics.Server
	if cfg.Metrics.Port > 0 {
		metricsSrv = metrics.Start(cfg.Metrics.Port)
		logger.Info("metrics listening", "port", cfg.Metrics.Port)
	}

	srv := server.New(server.Config{
		Port: cfg.Server.Port,
		Providers: map[string]bool{
			"serper":     cfg.Search.SerperAPIKey != "",
			"gemini":     cfg.AI.GeminiAPIKey != "",
			"groq":       cfg.AI.GroqAPIKey != "",
			"openrouter": cfg.AI.OpenRouterAPIKey != "",
		},
		MountMetrics: cfg.Metrics.Port == 0,
	}, pipe, limiter, results, logger)

	if err := srv.Start(ctx, cfg.Server.ShutdownTimeout); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}

	if metricsSrv != nil {
		if err := metricsSrv.Stop(context.Background()); err != nil {
			logger.Warn("stop metrics server", "err", err)
		}
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var lvl slog.Level
	switch cfg.Level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func openArchive(ctx context.Context, cfg config.ArchiveConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "sqlite":
		return sqlite.New(cfg.DSN)
	case "postgres":
		return postgres.New(ctx, cfg.DSN)
	case "json":
		return jsonbackend.New(cfg.DSN)
	}
	return nil, nil // unreachable, config validation rejects other values
}

// sweepLoop periodically drops idle clients from the rate limiter so its
// memory stays proportional to active traffic.
func sweepLoop(ctx context.Context, limiter *ratelimit.Window, cfg config.LimitConfig, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := limiter.Sweep(cfg.MaxIdle); removed > 0 {
				logger.Debug("rate limiter sweep", "removed", removed, "remaining", limiter.Clients())
			}
		}
	}
}
