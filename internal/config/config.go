package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration. Everything is overridable from
// the environment with the REVIEWLENS_ prefix (dots become underscores, e.g.
// REVIEWLENS_SERVER_PORT) and optionally from a YAML file.
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Search  SearchConfig
	Fetch   FetchConfig
	Corpus  CorpusConfig
	AI      AIConfig
	Cache   CacheConfig
	Limit   LimitConfig
	Archive ArchiveConfig
	Metrics MetricsConfig
}

type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

type SearchConfig struct {
	SerperAPIKey       string
	SerperEndpoint     string
	DuckDuckGoEndpoint string
	TargetCount        int
	ProviderTimeout    time.Duration
}

type FetchConfig struct {
	MaxPages          int
	Concurrency       int
	PerPageChars      int
	Timeout           time.Duration
	RequestsPerSecond float64
	Jitter            float64
	Fingerprint       string // chrome, firefox, safari
	ProxyFile         string // optional list of proxy URLs, one per line
}

type CorpusConfig struct {
	TotalChars     int
	MinPageChars   int
	RequireOverlap bool
	OverlapRatio   float64
}

type AIConfig struct {
	GeminiAPIKey       string
	GeminiModel        string
	GeminiBaseURL      string
	GroqAPIKey         string
	GroqEndpoint       string
	OpenRouterAPIKey   string
	OpenRouterEndpoint string
	Timeout            time.Duration
	Heartbeat          time.Duration
}

type CacheConfig struct {
	TTL  time.Duration
	Size int
}

type LimitConfig struct {
	Requests   int
	Window     time.Duration
	SweepEvery time.Duration
	MaxIdle    time.Duration
}

type ArchiveConfig struct {
	// Backend selects the archive store: "", "sqlite", "postgres", "json".
	// Empty disables archiving.
	Backend string
	// DSN is the sqlite path, postgres connection string, or NDJSON file
	// path, depending on Backend.
	DSN string
}

type MetricsConfig struct {
	// Port runs a standalone /metrics listener; 0 mounts /metrics on the
	// main router instead.
	Port int
}

// Load reads configuration from the optional file path and the environment.
// A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REVIEWLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            v.GetInt("server.port"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Search: SearchConfig{
			SerperAPIKey:       v.GetString("search.serper_api_key"),
			SerperEndpoint:     v.GetString("search.serper_endpoint"),
			DuckDuckGoEndpoint: v.GetString("search.duckduckgo_endpoint"),
			TargetCount:        v.GetInt("search.target_count"),
			ProviderTimeout:    v.GetDuration("search.provider_timeout"),
		},
		Fetch: FetchConfig{
			MaxPages:          v.GetInt("fetch.max_pages"),
			Concurrency:       v.GetInt("fetch.concurrency"),
			PerPageChars:      v.GetInt("fetch.per_page_chars"),
			Timeout:           v.GetDuration("fetch.timeout"),
			RequestsPerSecond: v.GetFloat64("fetch.requests_per_second"),
			Jitter:            v.GetFloat64("fetch.jitter"),
			Fingerprint:       v.GetString("fetch.fingerprint"),
			ProxyFile:         v.GetString("fetch.proxy_file"),
		},
		Corpus: CorpusConfig{
			TotalChars:     v.GetInt("corpus.total_chars"),
			MinPageChars:   v.GetInt("corpus.min_page_chars"),
			RequireOverlap: v.GetBool("corpus.require_overlap"),
			OverlapRatio:   v.GetFloat64("corpus.overlap_ratio"),
		},
		AI: AIConfig{
			GeminiAPIKey:       v.GetString("ai.gemini_api_key"),
			GeminiModel:        v.GetString("ai.gemini_model"),
			GeminiBaseURL:      v.GetString("ai.gemini_base_url"),
			GroqAPIKey:         v.GetString("ai.groq_api_key"),
			GroqEndpoint:       v.GetString("ai.groq_endpoint"),
			OpenRouterAPIKey:   v.GetString("ai.openrouter_api_key"),
			OpenRouterEndpoint: v.GetString("ai.openrouter_endpoint"),
			Timeout:            v.GetDuration("ai.timeout"),
			Heartbeat:          v.GetDuration("ai.heartbeat"),
		},
		Cache: CacheConfig{
			TTL:  v.GetDuration("cache.ttl"),
			Size: v.GetInt("cache.size"),
		},
		Limit: LimitConfig{
			Requests:   v.GetInt("limit.requests"),
			Window:     v.GetDuration("limit.window"),
			SweepEvery: v.GetDuration("limit.sweep_every"),
			MaxIdle:    v.GetDuration("limit.max_idle"),
		},
		Archive: ArchiveConfig{
			Backend: v.GetString("archive.backend"),
			DSN:     v.GetString("archive.dsn"),
		},
		Metrics: MetricsConfig{
			Port: v.GetInt("metrics.port"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("search.serper_endpoint", "https://google.serper.dev/search")
	v.SetDefault("search.duckduckgo_endpoint", "https://html.duckduckgo.com/html/")
	v.SetDefault("search.target_count", 6)
	v.SetDefault("search.provider_timeout", 10*time.Second)

	v.SetDefault("fetch.max_pages", 10)
	v.SetDefault("fetch.concurrency", 5)
	v.SetDefault("fetch.per_page_chars", 2500)
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.requests_per_second", 0.0)
	v.SetDefault("fetch.jitter", 0.3)
	v.SetDefault("fetch.fingerprint", "chrome")

	v.SetDefault("corpus.total_chars", 15000)
	v.SetDefault("corpus.min_page_chars", 64)
	v.SetDefault("corpus.require_overlap", false)
	v.SetDefault("corpus.overlap_ratio", 0.7)

	v.SetDefault("ai.gemini_model", "gemini-2.0-flash")
	v.SetDefault("ai.gemini_base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("ai.groq_endpoint", "https://api.groq.com/openai/v1/chat/completions")
	v.SetDefault("ai.openrouter_endpoint", "https://openrouter.ai/api/v1/chat/completions")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.heartbeat", 5*time.Second)

	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.size", 100)

	v.SetDefault("limit.requests", 10)
	v.SetDefault("limit.window", time.Minute)
	v.SetDefault("limit.sweep_every", 5*time.Minute)
	v.SetDefault("limit.max_idle", 10*time.Minute)

	v.SetDefault("archive.backend", "")
	v.SetDefault("archive.dsn", "")

	v.SetDefault("metrics.port", 0)
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	switch c.Archive.Backend {
	case "", "sqlite", "postgres", "json":
	default:
		return fmt.Errorf("config: unknown archive backend %q", c.Archive.Backend)
	}
	if c.Archive.Backend != "" && c.Archive.DSN == "" {
		return fmt.Errorf("config: archive backend %q requires a dsn", c.Archive.Backend)
	}
	switch c.Fetch.Fingerprint {
	case "chrome", "firefox", "safari", "go", "random":
	default:
		return fmt.Errorf("config: unknown fingerprint profile %q", c.Fetch.Fingerprint)
	}
	if c.AI.GeminiAPIKey == "" && c.AI.GroqAPIKey == "" && c.AI.OpenRouterAPIKey == "" {
		return fmt.Errorf("config: at least one AI provider key is required")
	}
	return nil
}
