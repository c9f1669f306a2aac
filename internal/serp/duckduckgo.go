package serp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/reviewlens/reviewlens/pkg/httpclient"
	"github.com/reviewlens/reviewlens/pkg/useragent"
)

const ddgEndpoint = "https://html.duckduckgo.com/html/"

// maxDDGBody caps how much of the result page we parse.
const maxDDGBody = 1 << 20

// DuckDuckGo scrapes the HTML (non-JS) DuckDuckGo frontend. Free tier, no
// key, shared rate limits, so callers must pace and never run two of these
// queries concurrently.
type DuckDuckGo struct {
	endpoint string
	client   *httpclient.Client
	uas      *useragent.Pool
}

// NewDuckDuckGo creates a DuckDuckGo provider. endpoint overrides the
// production URL when non-empty.
func NewDuckDuckGo(endpoint string, client *httpclient.Client, uas *useragent.Pool) (*DuckDuckGo, error) {
	if endpoint == "" {
		endpoint = ddgEndpoint
	}
	if client == nil {
		var err error
		client, err = httpclient.New(httpclient.Config{Timeout: 10 * time.Second, MaxRedirects: 3})
		if err != nil {
			return nil, fmt.Errorf("duckduckgo: %w", err)
		}
	}
	if uas == nil {
		uas = useragent.NewPool(nil)
	}
	return &DuckDuckGo{endpoint: endpoint, client: client, uas: uas}, nil
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search fetches the HTML results page and extracts result anchors.
// 403 and 202 responses are how DDG signals anti-bot throttling.
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	u := d.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}
	req.Header.Set("User-Agent", d.uas.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := d.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusAccepted ||
		resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("duckduckgo: status %d: %w", resp.StatusCode, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDDGBody))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: read body: %w", err)
	}
	if strings.Contains(strings.ToLower(string(body)), "anomaly-modal") {
		return nil, fmt.Errorf("duckduckgo: anomaly interstitial: %w", ErrRateLimited)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: parse html: %w", err)
	}

	var results []Result
	doc.Find("a.result__a").EachWithBreak(func(i int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		target := resolveDDGRedirect(href)
		if target == "" {
			return true
		}
		snippet := strings.TrimSpace(s.Closest(".result").Find(".result__snippet").Text())
		results = append(results, Result{URL: target, Snippet: snippet})
		return limit <= 0 || len(results) < limit
	})
	return results, nil
}

// resolveDDGRedirect unwraps DDG's /l/?uddg=<encoded> redirect links; direct
// http(s) hrefs pass through unchanged.
func resolveDDGRedirect(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		u, err := url.Parse(href)
		if err != nil {
			return ""
		}
		if strings.HasSuffix(u.Host, "duckduckgo.com") {
			if target := u.Query().Get("uddg"); target != "" {
				return target
			}
			return ""
		}
		return href
	}
	if strings.HasPrefix(href, "//") || strings.HasPrefix(href, "/") {
		u, err := url.Parse(href)
		if err != nil {
			return ""
		}
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return ""
}
