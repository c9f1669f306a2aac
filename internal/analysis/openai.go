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
	groqEndpoint       = "https://api.groq.com/openai/v1/chat/completions"
	groqDefaultModel   = "llama3-70b-8192"
	openRouterEndpoint = "https://openrouter.ai/api/v1/chat/completions"
	openRouterModel    = "deepseek/deepseek-chat"
)

// OpenAICompat speaks the OpenAI chat-completions wire format, which both
// Groq and OpenRouter expose. One client, two backup providers.
type OpenAICompat struct {
	name     string
	apiKey   string
	endpoint string
	model    string
	client   *httpclient.Client
}

// NewGroq creates the Groq backup provider. endpoint overrides production
// when non-empty.
func NewGroq(apiKey, endpoint string, client *httpclient.Client) (*OpenAICompat, error) {
	if endpoint == "" {
		endpoint = groqEndpoint
	}
	return newOpenAICompat("groq", apiKey, endpoint, groqDefaultModel, client)
}

// NewOpenRouter creates the OpenRouter backup provider.
func NewOpenRouter(apiKey, endpoint string, client *httpclient.Client) (*OpenAICompat, error) {
	if endpoint == "" {
		endpoint = openRouterEndpoint
	}
	return newOpenAICompat("openrouter", apiKey, endpoint, openRouterModel, client)
}

func newOpenAICompat(name, apiKey, endpoint, model string, client *httpclient.Client) (*OpenAICompat, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s: api key is required", name)
	}
	if client == nil {
		var err error
		client, err = httpclient.New(httpclient.Config{Timeout: 80 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return &OpenAICompat{name: name, apiKey: apiKey, endpoint: endpoint, model: model, client: client}, nil
}

func (o *OpenAICompat) Name() string { return o.name + "/" + o.model }

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate posts a single-message chat completion and unwraps the first
// choice defensively.
func (o *OpenAICompat) Generate(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"model":    o.model,
		"messages": []map[string]string{{"role": "user", "content": prompt}},
	}
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}

	resp, err := o.client.PostJSON(ctx, o.endpoint, body, headers)
	if err != nil {
		return "", fmt.Errorf("%s: %w", o.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: unexpected status %d", o.name, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", o.name, err)
	}
	if len(parsed.Choices) == 0 {
		if parsed.Error.Message != "" {
			return "", fmt.Errorf("%s: api error: %s", o.name, parsed.Error.Message)
		}
		return "", fmt.Errorf("%s: response contained no choices", o.name)
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%s: response contained no text", o.name)
	}
	return text, nil
}
