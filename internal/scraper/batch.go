package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reviewlens/reviewlens/internal/metrics"
	"github.com/reviewlens/reviewlens/internal/serp"
	"github.com/reviewlens/reviewlens/pkg/ratelimit"
	"golang.org/x/sync/semaphore"
)

// Page is the cleaned, bounded text of one fetched candidate URL. Failed
// fetches come back with OK=false and empty text; they are dropped, never
// retried within the request.
type Page struct {
	URL       string
	Text      string
	FetchedAt time.Time
	OK        bool
}

// BatchConfig bounds one request's fetch batch.
type BatchConfig struct {
	// MaxPages caps how many top-ranked candidates are attempted; the rest
	// are discarded, not queued.
	MaxPages int
	// Concurrency is the in-flight fetch bound for the batch.
	Concurrency int
	// PerPageChars caps each page's extracted text.
	PerPageChars int
	// FetchTimeout bounds each individual fetch.
	FetchTimeout time.Duration
	// RequestsPerSecond paces fetches (0 = unpaced); Jitter randomizes the
	// pacing to avoid a mechanical cadence.
	RequestsPerSecond float64
	Jitter            float64
}

func (c BatchConfig) withDefaults() BatchConfig {
	if c.MaxPages <= 0 {
		c.MaxPages = 10
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.PerPageChars <= 0 {
		c.PerPageChars = 2500
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 15 * time.Second
	}
	return c
}

// Batch fetches a bounded set of candidate pages concurrently and extracts
// their text. The semaphore is scoped to one request's batch; simultaneous
// requests each get their own in-flight budget.
type Batch struct {
	cfg     BatchConfig
	fetcher *Fetcher
	logger  *slog.Logger
}

// NewBatch creates a batch fetcher around a single-page Fetcher.
func NewBatch(cfg BatchConfig, fetcher *Fetcher, logger *slog.Logger) *Batch {
	if logger == nil {
		logger = slog.Default()
	}
	return &Batch{cfg: cfg.withDefaults(), fetcher: fetcher, logger: logger}
}

// FetchAll attempts the first MaxPages candidates in rank order and returns
// one Page per attempted candidate, in that same order. Fetch failures are
// logged and surface only as OK=false entries; a batch with zero successes
// is the caller's "no corpus" degraded path, not an error.
func (b *Batch) FetchAll(ctx context.Context, candidates []serp.Candidate) []Page {
	if len(candidates) > b.cfg.MaxPages {
		candidates = candidates[:b.cfg.MaxPages]
	}
	pages := make([]Page, len(candidates))

	limiter := ratelimit.NewLimiter(b.cfg.RequestsPerSecond, b.cfg.Jitter)
	defer limiter.Stop()

	sem := semaphore.NewWeighted(int64(b.cfg.Concurrency))
	var wg sync.WaitGroup

	for i, cand := range candidates {
		if err := sem.Acquire(ctx, 1); err != nil {
			pages[i] = Page{URL: cand.URL, FetchedAt: time.Now().UTC()}
			continue
		}
		wg.Add(1)
		go func(i int, cand serp.Candidate) {
			defer wg.Done()
			defer sem.Release(1)
			pages[i] = b.fetchOne(ctx, cand, limiter)
		}(i, cand)
	}
	wg.Wait()

	return pages
}

func (b *Batch) fetchOne(ctx context.Context, cand serp.Candidate, limiter *ratelimit.Limiter) Page {
	if err := limiter.Wait(ctx); err != nil {
		return Page{URL: cand.URL, FetchedAt: time.Now().UTC()}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, b.cfg.FetchTimeout)
	defer cancel()

	resp := b.fetcher.Fetch(fetchCtx, cand.URL)
	switch {
	case resp.BlockedBy != "":
		b.logger.Warn("fetch blocked by bot protection", "url", cand.URL, "vendor", resp.BlockedBy)
		metrics.RecordFetch("blocked", resp.Duration, len(resp.Body))
		return Page{URL: cand.URL, FetchedAt: resp.FetchedAt}
	case !resp.OK():
		b.logger.Warn("fetch failed", "url", cand.URL, "status", resp.StatusCode, "err", resp.Error)
		metrics.RecordFetch("failed", resp.Duration, len(resp.Body))
		return Page{URL: cand.URL, FetchedAt: resp.FetchedAt}
	}

	metrics.RecordFetch("ok", resp.Duration, len(resp.Body))
	text := ExtractText(resp.Body, cand.URL, b.cfg.PerPageChars)
	return Page{
		URL:       cand.URL,
		Text:      text,
		FetchedAt: resp.FetchedAt,
		OK:        text != "",
	}
}
