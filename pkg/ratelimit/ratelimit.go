package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"
)

// Limiter paces outbound operations to a target rate, with optional jitter so
// successive calls do not land on an exact cadence (free search backends and
// review sites throttle suspiciously regular traffic).
// It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	ticker   *time.Ticker
	jitter   float64 // 0.0 to 1.0
	interval time.Duration
	ch       <-chan time.Time
}

// NewLimiter creates a limiter allowing rps operations per second. Jitter is
// clamped to [0, 1]. If rps <= 0 the limiter never blocks.
func NewLimiter(rps float64, jitter float64) *Limiter {
	if rps <= 0 {
		return &Limiter{jitter: jitter}
	}
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}

	interval := time.Duration(float64(time.Second) / rps)
	ticker := time.NewTicker(interval)

	return &Limiter{
		ticker:   ticker,
		jitter:   jitter,
		interval: interval,
		ch:       ticker.C,
	}
}

// Wait blocks until the next operation may proceed or the context is
// canceled. Positive jitter adds up to jitter*interval of extra sleep; a
// ticker already enforces the minimum spacing, so negative jitter collapses
// to "run on the tick".
func (l *Limiter) Wait(ctx context.Context) error {
	if l.ch == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ch:
		if l.jitter > 0 {
			extra := time.Duration(rand.Float64() * l.jitter * float64(l.interval))
			if extra > 0 {
				select {
				case <-time.After(extra):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return nil
}

// Stop releases the limiter's ticker.
func (l *Limiter) Stop() {
	if l.ticker != nil {
		l.ticker.Stop()
	}
}
