package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/reviewlens/reviewlens/internal/analysis"
	"github.com/reviewlens/reviewlens/internal/cache"
	"github.com/reviewlens/reviewlens/internal/corpus"
	"github.com/reviewlens/reviewlens/internal/metrics"
	"github.com/reviewlens/reviewlens/internal/progress"
	"github.com/reviewlens/reviewlens/internal/query"
	"github.com/reviewlens/reviewlens/internal/scraper"
	"github.com/reviewlens/reviewlens/internal/serp"
	"github.com/reviewlens/reviewlens/internal/storage"
)

// Searcher turns a product name into ranked candidate URLs.
type Searcher interface {
	Search(ctx context.Context, product string) []serp.Candidate
}

// Fetcher downloads a bounded batch of candidates and extracts their text.
type Fetcher interface {
	FetchAll(ctx context.Context, candidates []serp.Candidate) []scraper.Page
}

// Analyzer produces the final analysis text from the product name and the
// assembled corpus.
type Analyzer interface {
	Analyze(ctx context.Context, product, corpusText string) (analysis.Result, error)
}

// Config tunes the pipeline itself; the stages carry their own knobs.
type Config struct {
	// Corpus is the assembly configuration handed to corpus.Build.
	Corpus corpus.Config
	// HeartbeatInterval paces keep-alive events during the generation call.
	HeartbeatInterval time.Duration
	// ArchiveTimeout bounds the fire-and-forget archive write.
	ArchiveTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
	if c.ArchiveTimeout <= 0 {
		c.ArchiveTimeout = 10 * time.Second
	}
	return c
}

// Pipeline runs one analysis request end to end: cache check, search fan-out,
// bounded page fetch, corpus assembly, AI fallback chain, and archive. All
// intermediate failures degrade; the only terminal failure a client sees is
// the whole AI chain being down.
type Pipeline struct {
	search  Searcher
	fetch   Fetcher
	analyze Analyzer
	cache   *cache.Cache
	archive storage.Backend // nil disables archiving
	cfg     Config
	logger  *slog.Logger
}

// New wires the pipeline stages. archive may be nil.
func New(search Searcher, fetch Fetcher, analyze Analyzer, c *cache.Cache, archive storage.Backend, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		search:  search,
		fetch:   fetch,
		analyze: analyze,
		cache:   c,
		archive: archive,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// Run executes the pipeline for a validated query, publishing progress to the
// stream. It always terminates the stream: Done on success (cached or fresh),
// Fail only when every AI provider was exhausted.
func (p *Pipeline) Run(ctx context.Context, q query.Query, stream *progress.Stream) {
	if res, ok := p.cache.Get(q.Key); ok {
		metrics.CacheHits.Inc()
		metrics.AnalysesTotal.WithLabelValues("cache_hit").Inc()
		p.logger.Info("cache hit", "key", q.Key, "model", res.ModelUsed)
		stream.Publish(10, "found a recent analysis")
		stream.Done("analysis complete (cached)", res.Text)
		return
	}
	metrics.CacheMisses.Inc()
	start := time.Now()

	stream.Publish(10, "searching for reviews")
	candidates := p.search.Search(ctx, q.Product)
	countByProvider(candidates)
	p.logger.Info("search complete", "key", q.Key, "candidates", len(candidates))

	stream.Publish(45, fmt.Sprintf("reading %d pages", min(len(candidates), 10)))
	pages := p.fetch.FetchAll(ctx, candidates)
	body := corpus.Build(pages, q, p.cfg.Corpus)
	if body.Empty() {
		p.logger.Warn("no usable pages, falling back to model knowledge", "key", q.Key)
	}

	stream.Publish(75, "analyzing reviews")
	stopHeartbeat := stream.HeartbeatEvery(ctx, p.cfg.HeartbeatInterval, "still analyzing")
	res, err := p.analyze.Analyze(ctx, q.Product, body.Text)
	stopHeartbeat()

	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("error").Inc()
		p.logger.Error("analysis failed", "key", q.Key, "err", err)
		stream.Fail("analysis unavailable: all AI providers failed")
		return
	}

	// Only evidence-backed results are worth memoizing; a model-knowledge
	// answer produced because the web was unreachable should not mask fresh
	// reviews for the next hour.
	if res.SourceKind == analysis.SourceCorpus {
		p.cache.Put(q.Key, res)
	}

	elapsed := time.Since(start)
	metrics.AnalysesTotal.WithLabelValues("ok").Inc()
	metrics.AnalysisDuration.Observe(elapsed.Seconds())
	p.logger.Info("analysis complete",
		"key", q.Key,
		"model", res.ModelUsed,
		"source", res.SourceKind,
		"sources", len(body.Sources),
		"duration", elapsed,
	)

	p.archiveAsync(q, res, body.Sources, elapsed)
	stream.Done("analysis complete", res.Text)
}

// archiveAsync persists the completed analysis without holding up the
// response. The write runs on a detached context so a client disconnect does
// not lose the record.
func (p *Pipeline) archiveAsync(q query.Query, res analysis.Result, sources []string, elapsed time.Duration) {
	if p.archive == nil {
		return
	}
	rec := &storage.Record{
		ID:         uuid.New().String(),
		Key:        q.Key,
		Product:    q.Product,
		ModelUsed:  res.ModelUsed,
		SourceKind: string(res.SourceKind),
		Answer:     res.Text,
		Sources:    sources,
		Duration:   elapsed,
		CreatedAt:  time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ArchiveTimeout)
		defer cancel()
		if err := p.archive.Save(ctx, rec); err != nil {
			p.logger.Warn("archive write failed", "key", rec.Key, "err", err)
		}
	}()
}

func countByProvider(candidates []serp.Candidate) {
	counts := make(map[string]int)
	for _, c := range candidates {
		counts[c.Provider]++
	}
	for provider, n := range counts {
		metrics.SearchResultsTotal.WithLabelValues(provider).Add(float64(n))
	}
}
