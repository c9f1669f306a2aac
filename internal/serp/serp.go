package serp

import (
	"context"
	"errors"
)

// Result is a single hit returned by a search provider. Snippet is optional;
// only URL is required.
type Result struct {
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Candidate is a deduplicated, rank-ordered URL produced by the Aggregator.
// It lives for one analysis request only.
type Candidate struct {
	URL      string
	Provider string
	Rank     int
}

// ErrRateLimited is returned by providers that recognize a throttling
// response. The aggregator grants one retry after a longer backoff, then
// abandons the provider for the remainder of the request.
var ErrRateLimited = errors.New("serp: provider rate limited")

// Provider abstracts a search backend that can return review-page candidates
// for a query. Implementations may use official APIs or HTML scraping; the
// limit parameter caps the number of results returned.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}
