package ratelimit

import (
	"sync"
	"time"
)

// Window is per-client sliding-window admission control: at most limit
// requests per client within the trailing span. Expired timestamps are pruned
// lazily on each Admit for that client; Sweep drops clients that have gone
// idle so the outer map cannot grow without bound.
type Window struct {
	mu      sync.Mutex
	limit   int
	span    time.Duration
	clients map[string][]time.Time
	now     func() time.Time
}

// NewWindow creates a sliding-window admission controller. Non-positive
// arguments fall back to 10 requests per 60 seconds.
func NewWindow(limit int, span time.Duration) *Window {
	if limit <= 0 {
		limit = 10
	}
	if span <= 0 {
		span = 60 * time.Second
	}
	return &Window{
		limit:   limit,
		span:    span,
		clients: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Admit reports whether clientID may proceed, recording the admission
// timestamp when it may. The (limit+1)-th request inside one span is denied;
// once the oldest admitted timestamp ages out, capacity frees up again.
func (w *Window) Admit(clientID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.span)

	stamps := w.clients[clientID]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= w.limit {
		w.clients[clientID] = kept
		return false
	}

	w.clients[clientID] = append(kept, now)
	return true
}

// Sweep removes clients whose newest admission is older than maxIdle and
// returns how many were dropped. Meant to run on a coarse ticker; Admit's
// lazy pruning never removes the map key itself.
func (w *Window) Sweep(maxIdle time.Duration) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-maxIdle)
	dropped := 0
	for id, stamps := range w.clients {
		if len(stamps) == 0 || stamps[len(stamps)-1].Before(cutoff) {
			delete(w.clients, id)
			dropped++
		}
	}
	return dropped
}

// Clients reports the number of tracked client identifiers.
func (w *Window) Clients() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.clients)
}
