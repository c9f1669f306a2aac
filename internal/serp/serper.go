package serp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/reviewlens/reviewlens/pkg/httpclient"
)

const serperEndpoint = "https://google.serper.dev/search"

// Serper queries the serper.dev Google Search API. It is the paid, highest
// quality provider and gets rank priority in the aggregator.
type Serper struct {
	apiKey   string
	endpoint string
	client   *httpclient.Client
}

// NewSerper creates a Serper provider. endpoint overrides the production API
// URL when non-empty (tests point it at a local server).
func NewSerper(apiKey, endpoint string, client *httpclient.Client) (*Serper, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("serper: api key is required")
	}
	if endpoint == "" {
		endpoint = serperEndpoint
	}
	if client == nil {
		var err error
		client, err = httpclient.New(httpclient.Config{Timeout: 15 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("serper: %w", err)
		}
	}
	return &Serper{apiKey: apiKey, endpoint: endpoint, client: client}, nil
}

func (s *Serper) Name() string { return "serper" }

// serperResponse mirrors only the fields we consume. Anything else the API
// sends is ignored, and absent fields decode to zero values.
type serperResponse struct {
	Organic []struct {
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// Search POSTs the query and extracts organic result links defensively.
func (s *Serper) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	body := map[string]any{"q": query, "num": limit}
	headers := map[string]string{"X-API-KEY": s.apiKey}

	resp, err := s.client.PostJSON(ctx, s.endpoint, body, headers)
	if err != nil {
		return nil, fmt.Errorf("serper: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("serper: status %d: %w", resp.StatusCode, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper: unexpected status %d", resp.StatusCode)
	}

	var parsed serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("serper: decode response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Organic))
	for _, item := range parsed.Organic {
		if item.Link == "" {
			continue
		}
		results = append(results, Result{URL: item.Link, Snippet: item.Snippet})
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}
