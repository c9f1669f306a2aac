package serp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// AggregatorConfig tunes the search fan-out.
type AggregatorConfig struct {
	// TargetCount is how many free-provider results we want before skipping
	// the sequential fallback query.
	TargetCount int
	// ProviderTimeout bounds each individual provider call.
	ProviderTimeout time.Duration
	// FallbackBackoff separates sequential free-provider queries; hammering
	// the free tier back-to-back trips anti-bot throttling.
	FallbackBackoff time.Duration
	// RateLimitBackoff is the longer pause before the single retry granted
	// to a rate-limited provider.
	RateLimitBackoff time.Duration
}

func (c AggregatorConfig) withDefaults() AggregatorConfig {
	if c.TargetCount <= 0 {
		c.TargetCount = 6
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 10 * time.Second
	}
	if c.FallbackBackoff <= 0 {
		c.FallbackBackoff = 2 * time.Second
	}
	if c.RateLimitBackoff <= 0 {
		c.RateLimitBackoff = 5 * time.Second
	}
	return c
}

// Aggregator fans a product query out to the configured providers and merges
// their results into a deduplicated, rank-ordered candidate list. It fails
// softly: whatever providers respond is what the pipeline gets, and an empty
// list is a legitimate outcome.
type Aggregator struct {
	paid   Provider // nil when no API key is configured
	free   Provider
	cfg    AggregatorConfig
	logger *slog.Logger

	// sleep is swappable so tests do not wait out real backoffs.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAggregator wires the paid and free providers. paid may be nil.
func NewAggregator(paid, free Provider, cfg AggregatorConfig, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		paid:   paid,
		free:   free,
		cfg:    cfg.withDefaults(),
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Search runs the paid provider and the free provider's reddit-scoped query
// concurrently, then — if the free side came back thin — one fallback query
// sequentially. Results merge in priority order (paid first) and are
// deduplicated by exact URL, first seen wins.
func (a *Aggregator) Search(ctx context.Context, product string) []Candidate {
	var paidResults, freeResults []Result
	freeAbandoned := false

	g, gCtx := errgroup.WithContext(ctx)

	if a.paid != nil {
		g.Go(func() error {
			paidResults = a.callProvider(gCtx, a.paid, product+" real user review pros cons", a.cfg.TargetCount)
			return nil
		})
	}
	if a.free != nil {
		g.Go(func() error {
			freeResults, freeAbandoned = a.callFreeWithRetry(gCtx, product+" review site:reddit.com", a.cfg.TargetCount/2+1)
			return nil
		})
	}
	_ = g.Wait() // goroutines only log, they never return errors

	// Sequential fallback on the free tier, separated by a short backoff.
	if a.free != nil && !freeAbandoned && len(freeResults) < a.cfg.TargetCount {
		if err := a.sleep(ctx, a.cfg.FallbackBackoff); err == nil {
			extra, _ := a.callFreeWithRetry(ctx, product+" real user drawbacks complaints", a.cfg.TargetCount)
			freeResults = append(freeResults, extra...)
		}
	}

	return merge(a.providerName(a.paid), paidResults, a.providerName(a.free), freeResults)
}

// callProvider runs one provider call under its own timeout and try/catch
// boundary; failures are logged and produce nothing.
func (a *Aggregator) callProvider(ctx context.Context, p Provider, query string, limit int) []Result {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.ProviderTimeout)
	defer cancel()

	results, err := p.Search(callCtx, query, limit)
	if err != nil {
		a.logger.Warn("search provider failed", "provider", p.Name(), "err", err)
		return nil
	}
	return results
}

// callFreeWithRetry grants the free provider exactly one retry after a longer
// backoff when it signals rate limiting. The second value reports whether the
// provider should be abandoned for the rest of the request.
func (a *Aggregator) callFreeWithRetry(ctx context.Context, query string, limit int) ([]Result, bool) {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.ProviderTimeout)
	results, err := a.free.Search(callCtx, query, limit)
	cancel()
	if err == nil {
		return results, false
	}
	if !errors.Is(err, ErrRateLimited) {
		a.logger.Warn("search provider failed", "provider", a.free.Name(), "err", err)
		return nil, false
	}

	a.logger.Warn("search provider rate limited, retrying once", "provider", a.free.Name())
	if err := a.sleep(ctx, a.cfg.RateLimitBackoff); err != nil {
		return nil, true
	}

	callCtx, cancel = context.WithTimeout(ctx, a.cfg.ProviderTimeout)
	results, err = a.free.Search(callCtx, query, limit)
	cancel()
	if err != nil {
		a.logger.Warn("search provider abandoned after retry", "provider", a.free.Name(), "err", err)
		return nil, true
	}
	return results, false
}

func (a *Aggregator) providerName(p Provider) string {
	if p == nil {
		return ""
	}
	return p.Name()
}

// merge concatenates provider result lists in priority order and deduplicates
// by exact URL while preserving first-seen order, so the paid provider keeps
// rank priority without excluding free-only URLs.
func merge(paidName string, paid []Result, freeName string, free []Result) []Candidate {
	seen := make(map[string]struct{}, len(paid)+len(free))
	var out []Candidate

	add := func(provider string, results []Result) {
		for _, r := range results {
			if r.URL == "" {
				continue
			}
			if _, dup := seen[r.URL]; dup {
				continue
			}
			seen[r.URL] = struct{}{}
			out = append(out, Candidate{URL: r.URL, Provider: provider, Rank: len(out)})
		}
	}
	add(paidName, paid)
	add(freeName, free)
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
