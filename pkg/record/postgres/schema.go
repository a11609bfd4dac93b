package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlCalls = `
CREATE TABLE IF NOT EXISTS calls (
    id             BIGSERIAL    PRIMARY KEY,
    session_id     TEXT         NOT NULL UNIQUE,
    transcript     TEXT         NOT NULL,
    fragments      JSONB        NOT NULL DEFAULT '[]',
    analysis       JSONB,
    exchange_count INTEGER      NOT NULL DEFAULT 0,
    tags           TEXT[]       NOT NULL DEFAULT '{}',
    started_at     TIMESTAMPTZ  NOT NULL,
    ended_at       TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_calls_ended_at
    ON calls (ended_at DESC);

CREATE INDEX IF NOT EXISTS idx_calls_tags
    ON calls USING GIN (tags);
`

// Migrate ensures the calls table and its indexes exist. It is idempotent
// and safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlCalls); err != nil {
		return fmt.Errorf("record schema: calls table: %w", err)
	}
	return nil
}
