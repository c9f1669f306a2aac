package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/reviewlens/reviewlens/internal/metrics"
)

// Chain tries providers strictly in configured order until one produces
// text. Every class of provider failure — transport error, bad status,
// malformed shape, empty output — means the same thing: advance. Only
// exhausting the whole chain is an error, and it is ErrExhausted.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	logger    *slog.Logger
}

// NewChain builds a fallback chain. Generation is slow, so the per-provider
// timeout defaults to 60 seconds.
func NewChain(providers []Provider, timeout time.Duration, logger *slog.Logger) *Chain {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{providers: providers, timeout: timeout, logger: logger}
}

// Len reports how many providers are configured.
func (c *Chain) Len() int { return len(c.providers) }

// Analyze builds the prompt from the corpus text (or the no-external-data
// marker) and walks the chain. The result names the provider that succeeded
// and whether it was grounded in web evidence.
func (c *Chain) Analyze(ctx context.Context, product, corpusText string) (Result, error) {
	prompt, kind := BuildPrompt(product, corpusText)

	for _, p := range c.providers {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		text, err := p.Generate(callCtx, prompt)
		cancel()
		if err != nil {
			c.logger.Warn("ai provider failed, advancing chain", "provider", p.Name(), "err", err)
			metrics.AIProviderFailures.WithLabelValues(p.Name()).Inc()
			continue
		}
		metrics.AIProviderSuccesses.WithLabelValues(p.Name()).Inc()
		return Result{ModelUsed: p.Name(), Text: text, SourceKind: kind}, nil
	}
	return Result{}, ErrExhausted
}
