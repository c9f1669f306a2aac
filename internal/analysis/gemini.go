package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/reviewlens/reviewlens/pkg/httpclient"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com"
	geminiDefaultModel = "gemini-1.5-flash"
)

// Gemini calls the Google Generative Language REST API. It is the primary
// provider in the default chain.
type Gemini struct {
	apiKey  string
	baseURL string
	model   string
	client  *httpclient.Client
}

// NewGemini creates a Gemini provider. baseURL and model override the
// production defaults when non-empty.
func NewGemini(apiKey, baseURL, model string, client *httpclient.Client) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	if model == "" {
		model = geminiDefaultModel
	}
	if client == nil {
		var err error
		client, err = httpclient.New(httpclient.Config{Timeout: 80 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
	}
	return &Gemini{apiKey: apiKey, baseURL: baseURL, model: model, client: client}, nil
}

func (g *Gemini) Name() string { return "gemini/" + g.model }

// geminiResponse mirrors only the nesting we consume. Candidates, content,
// and parts can each be absent, most often on moderation rejections.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Generate posts the prompt and digs the text out of whatever subset of the
// response shape came back. Partial text from a truncated or safety-clipped
// candidate is still a success; only no text at all is a failure.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	}

	resp, err := g.client.PostJSON(ctx, url, body, nil)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini: unexpected status %d", resp.StatusCode)
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}

	var b strings.Builder
	for _, cand := range parsed.Candidates {
		for _, part := range cand.Content.Parts {
			b.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		if reason := parsed.PromptFeedback.BlockReason; reason != "" {
			return "", fmt.Errorf("gemini: prompt blocked: %s", reason)
		}
		return "", fmt.Errorf("gemini: response contained no text")
	}
	return text, nil
}
