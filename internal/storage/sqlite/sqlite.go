package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/reviewlens/reviewlens/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS analyses (
	id TEXT PRIMARY KEY,
	key TEXT NOT NULL,
	product TEXT NOT NULL,
	model_used TEXT NOT NULL,
	source_kind TEXT NOT NULL,
	answer TEXT NOT NULL,
	sources TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analyses_key ON analyses(key);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, record *storage.Record) error {
	sourcesJSON, err := json.Marshal(record.Sources)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}

	query := `
	INSERT INTO analyses (
		id, key, product, model_used, source_kind, answer, sources, duration_ms, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = b.db.ExecContext(ctx, query,
		record.ID,
		record.Key,
		record.Product,
		record.ModelUsed,
		record.SourceKind,
		record.Answer,
		string(sourcesJSON),
		record.Duration.Milliseconds(),
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}

	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Record, error) {
	query := `SELECT id, key, product, model_used, source_kind, answer, sources, duration_ms, created_at FROM analyses WHERE 1=1`
	args := []any{}

	if filter.Key != "" {
		query += ` AND key = ?`
		args = append(args, filter.Key)
	}
	if filter.ModelUsed != "" {
		query += ` AND model_used = ?`
		args = append(args, filter.ModelUsed)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.Since)
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	defer rows.Close()

	var records []*storage.Record
	for rows.Next() {
		var r storage.Record
		var sourcesJSON string
		var durationMs int64

		err := rows.Scan(
			&r.ID, &r.Key, &r.Product, &r.ModelUsed, &r.SourceKind,
			&r.Answer, &sourcesJSON, &durationMs, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}

		r.Duration = time.Duration(durationMs) * time.Millisecond
		if err := json.Unmarshal([]byte(sourcesJSON), &r.Sources); err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}

		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return records, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
