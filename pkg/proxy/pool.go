package proxy

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// endpoint tracks the health of a single proxy.
type endpoint struct {
	url           *url.URL
	failures      int
	disabledUntil time.Time
}

// Pool manages a rotating collection of outbound proxies. A proxy that fails
// MaxFailures times in a row is benched for the cooldown period, then given
// another chance. Page fetches work fine with an empty pool; Next simply
// returns nil.
type Pool struct {
	mu          sync.Mutex
	endpoints   []*endpoint
	current     int
	maxFailures int
	cooldown    time.Duration
}

// Config defines settings for the proxy pool.
type Config struct {
	// MaxFailures before benching a proxy temporarily.
	MaxFailures int
	// Cooldown is how long a benched proxy stays out of rotation.
	Cooldown time.Duration
}

// NewPool creates a proxy pool. Zero config values get reasonable defaults.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
	}
}

// Add parses and registers proxy URLs.
func (p *Pool) Add(rawURLs ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, raw := range rawURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: parse %q: %w", raw, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("proxy: %q missing scheme or host", raw)
		}
		p.endpoints = append(p.endpoints, &endpoint{url: u})
	}
	return nil
}

// LoadFile reads proxies from a file, one URL per line. Empty lines and
// lines starting with '#' are ignored.
func (p *Pool) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	return p.Add(urls...)
}

// Next returns the next healthy proxy in rotation, or nil when the pool is
// empty or every proxy is benched.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.endpoints)
	if n == 0 {
		return nil
	}
	now := time.Now()
	for i := 0; i < n; i++ {
		e := p.endpoints[p.current%n]
		p.current++
		if e.disabledUntil.After(now) {
			continue
		}
		return e.url
	}
	return nil
}

// MarkFailure records a failed request through the given proxy, benching it
// once it reaches the failure limit.
func (p *Pool) MarkFailure(u *url.URL) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.endpoints {
		if e.url.String() == u.String() {
			e.failures++
			if e.failures >= p.maxFailures {
				e.disabledUntil = time.Now().Add(p.cooldown)
				e.failures = 0
			}
			return
		}
	}
}

// MarkSuccess resets the failure streak of the given proxy.
func (p *Pool) MarkSuccess(u *url.URL) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.endpoints {
		if e.url.String() == u.String() {
			e.failures = 0
			return
		}
	}
}

// Len reports the number of registered proxies, benched or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}
