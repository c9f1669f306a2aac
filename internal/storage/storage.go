package storage

import (
	"context"
	"time"
)

// Record is one completed analysis, archived for operators. The cache and
// rate-limit state stay process-local and die with the process; the archive
// is observability, not request state.
type Record struct {
	ID         string        `json:"id"`
	Key        string        `json:"key"`
	Product    string        `json:"product"`
	ModelUsed  string        `json:"model_used"`
	SourceKind string        `json:"source_kind"`
	Answer     string        `json:"answer"`
	Sources    []string      `json:"sources,omitempty"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Filter allows querying for specific Records.
type Filter struct {
	Key       string
	ModelUsed string
	Since     *time.Time
	Limit     int
	Offset    int
}

// Backend defines the interface for persisting and querying analysis
// records.
type Backend interface {
	Save(ctx context.Context, record *Record) error
	Query(ctx context.Context, filter Filter) ([]*Record, error)
	Close() error
}
