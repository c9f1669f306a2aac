package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/reviewlens/reviewlens/internal/storage"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS analyses (
	id TEXT PRIMARY KEY,
	key TEXT NOT NULL,
	product TEXT NOT NULL,
	model_used TEXT NOT NULL,
	source_kind TEXT NOT NULL,
	answer TEXT NOT NULL,
	sources JSONB NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analyses_key ON analyses(key);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if _, err = pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, record *storage.Record) error {
	sourcesJSON, err := json.Marshal(record.Sources)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	query := `
	INSERT INTO analyses (
		id, key, product, model_used, source_kind, answer, sources, duration_ms, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = b.pool.Exec(ctx, query,
		record.ID,
		record.Key,
		record.Product,
		record.ModelUsed,
		record.SourceKind,
		record.Answer,
		sourcesJSON,
		record.Duration.Milliseconds(),
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Record, error) {
	query := `SELECT id, key, product, model_used, source_kind, answer, sources, duration_ms, created_at FROM analyses WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Key != "" {
		query += fmt.Sprintf(` AND key = $%d`, paramCount)
		args = append(args, filter.Key)
		paramCount++
	}
	if filter.ModelUsed != "" {
		query += fmt.Sprintf(` AND model_used = $%d`, paramCount)
		args = append(args, filter.ModelUsed)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
		paramCount++
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	defer rows.Close()

	var records []*storage.Record
	for rows.Next() {
		var r storage.Record
		var sourcesJSON []byte
		var durationMs int64

		err := rows.Scan(
			&r.ID, &r.Key, &r.Product, &r.ModelUsed, &r.SourceKind,
			&r.Answer, &sourcesJSON, &durationMs, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}

		r.Duration = time.Duration(durationMs) * time.Millisecond
		if err := json.Unmarshal(sourcesJSON, &r.Sources); err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}

		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return records, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
