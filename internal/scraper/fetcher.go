package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/reviewlens/reviewlens/internal/bypass"
	"github.com/reviewlens/reviewlens/internal/fingerprint"
	"github.com/reviewlens/reviewlens/pkg/httpclient"
	"github.com/reviewlens/reviewlens/pkg/proxy"
	"github.com/reviewlens/reviewlens/pkg/useragent"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// maxBodyBytes caps how much of a page body is read. Review pages past a
// couple of megabytes are never worth the extra text.
const maxBodyBytes = 2 << 20

// FetchConfig configures a single-page fetcher.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
}

// Response is the soft-fail outcome of one page fetch. Error is non-empty
// when the fetch failed before or at the HTTP layer; BlockedBy names the bot
// protection vendor when a challenge page came back instead of content.
type Response struct {
	ID         string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
	FetchedAt  time.Time
	Error      string
	BlockedBy  string
}

// OK reports whether the response carries usable page content.
func (r *Response) OK() bool {
	return r.Error == "" && r.BlockedBy == "" &&
		r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetcher performs single URL fetches with browser UA rotation, an optional
// rotating proxy pool, and a browser TLS fingerprint. Holding one client
// across requests keeps connection pooling effective.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
}

// NewFetcher initializes a Fetcher with the given configuration.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = 5
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if string(cfg.Fingerprint) == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}

	// The transport is built once; per-request proxy rotation happens by
	// stashing the proxy URL in the request context, which this proxy func
	// reads back. Mutating Transport.Proxy per request would race.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if val := req.Context().Value(proxyKey); val != nil {
			if u, ok := val.(*url.URL); ok {
				return u, nil
			}
		}
		if req.URL.Hostname() == "127.0.0.1" || req.URL.Hostname() == "::1" {
			// Keep system proxies out of tests against local servers.
			return nil, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, proxyFunc)
	if err != nil {
		return nil, fmt.Errorf("scraper: setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: create client: %w", err)
	}

	return &Fetcher{config: cfg, client: client}, nil
}

// Fetch executes a GET against targetURL. It never returns an error: any
// failure is recorded on the Response and the caller decides what absence
// means. Challenge pages from bot-protection vendors are marked blocked so
// their boilerplate never reaches a corpus.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) *Response {
	start := time.Now()
	result := &Response{
		ID:        uuid.New().String(),
		URL:       targetURL,
		FetchedAt: start.UTC(),
	}

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		activeProxy = f.config.ProxyPool.Next()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("create request: %v", err)
		result.Duration = time.Since(start)
		return result
	}
	if activeProxy != nil {
		req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
	}

	req.Header.Set("User-Agent", f.config.UAPool.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			f.config.ProxyPool.MarkFailure(activeProxy)
		}
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Duration = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		f.config.ProxyPool.MarkSuccess(activeProxy)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		result.Error = fmt.Sprintf("read body: %v", err)
	}

	result.StatusCode = resp.StatusCode
	result.Header = resp.Header
	result.Body = body
	result.Duration = time.Since(start)

	if vendor, blocked := bypass.Detect(result.StatusCode, result.Header, result.Body, bypass.DefaultDetectors()); blocked {
		result.BlockedBy = vendor
	}

	return result
}
