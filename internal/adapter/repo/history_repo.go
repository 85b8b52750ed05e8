package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the repository needs. Narrowing the
// dependency keeps the repository testable with injected fakes.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// GenerationRecord is one audit row of a completed generation.
type GenerationRecord struct {
	ID             string    `json:"id"`
	Prompt         string    `json:"prompt"`
	EnhancedPrompt string    `json:"enhanced_prompt"`
	UsedFallback   bool      `json:"used_fallback"`
	AspectRatio    string    `json:"aspect_ratio"`
	Backend        string    `json:"backend"`
	URI            string    `json:"uri"`
	Filename       string    `json:"filename"`
	Bytes          int64     `json:"bytes"`
	CreatedAt      time.Time `json:"created_at"`
}

// GenerationHistory persists completed generations to PostgreSQL. It is an
// audit trail only: the pipeline never reads it and recording failures are
// the caller's to absorb.
type GenerationHistory struct {
	q Querier
}

func NewGenerationHistory(q Querier) *GenerationHistory {
	return &GenerationHistory{q: q}
}

// EnsureSchema creates the history table when it does not exist yet.
func (r *GenerationHistory) EnsureSchema(ctx context.Context) error {
	query := `
CREATE TABLE IF NOT EXISTS generations (
    id              TEXT PRIMARY KEY,
    prompt          TEXT NOT NULL,
    enhanced_prompt TEXT NOT NULL,
    used_fallback   BOOLEAN NOT NULL,
    aspect_ratio    TEXT NOT NULL,
    backend         TEXT NOT NULL,
    uri             TEXT NOT NULL,
    filename        TEXT NOT NULL,
    bytes           BIGINT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	if _, err := r.q.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure generations table: %w", err)
	}
	return nil
}

// Record inserts one generation row.
func (r *GenerationHistory) Record(ctx context.Context, rec *GenerationRecord) error {
	query := `
INSERT INTO generations (id, prompt, enhanced_prompt, used_fallback, aspect_ratio, backend, uri, filename, bytes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`
	_, err := r.q.Exec(ctx, query,
		rec.ID,
		rec.Prompt,
		rec.EnhancedPrompt,
		rec.UsedFallback,
		rec.AspectRatio,
		rec.Backend,
		rec.URI,
		rec.Filename,
		rec.Bytes,
	)
	if err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

// Recent returns the newest rows, newest first.
func (r *GenerationHistory) Recent(ctx context.Context, limit int) ([]GenerationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT id, prompt, enhanced_prompt, used_fallback, aspect_ratio, backend, uri, filename, bytes, created_at
FROM generations
ORDER BY created_at DESC
LIMIT $1;
`
	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select generations: %w", err)
	}
	defer rows.Close()

	var records []GenerationRecord
	for rows.Next() {
		var rec GenerationRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Prompt,
			&rec.EnhancedPrompt,
			&rec.UsedFallback,
			&rec.AspectRatio,
			&rec.Backend,
			&rec.URI,
			&rec.Filename,
			&rec.Bytes,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generations: %w", err)
	}
	return records, nil
}
