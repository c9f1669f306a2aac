package analysis

import (
	"context"
	"errors"
)

// SourceKind records whether an analysis was grounded in fetched web evidence
// or produced from the model's own knowledge (empty corpus path).
type SourceKind string

const (
	SourceCorpus         SourceKind = "corpus"
	SourceModelKnowledge SourceKind = "model-knowledge"
)

// Result is a completed analysis. It is owned by the request that produced
// it until it is handed to the cache.
type Result struct {
	ModelUsed  string     `json:"model_used"`
	Text       string     `json:"text"`
	SourceKind SourceKind `json:"source_kind"`
}

// ErrExhausted is returned when every configured provider in the fallback
// chain failed. It is the only analysis failure a client ever sees.
var ErrExhausted = errors.New("analysis: all providers exhausted")

// Provider abstracts a text-generation backend. Implementations unwrap their
// vendor's response shape defensively; an HTTP error, a malformed body, or a
// moderation rejection with no salvageable text all come back as errors and
// advance the fallback chain.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}
