// Package postgres provides a PostgreSQL-backed implementation of the call
// record store.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.SaveCall(ctx, rec)
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitchline-ai/pitchline/pkg/record"
	"github.com/pitchline-ai/pitchline/pkg/types"
)

var _ record.Store = (*Store)(nil)

const defaultListLimit = 50

// Store persists call records in a PostgreSQL calls table, with fragments
// and analysis results stored as JSONB documents.
//
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the database at dsn and runs
// [Migrate] to ensure the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("record store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("record store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("record store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("record store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveCall implements [record.Store]. Saving the same session twice
// replaces the previous record; finalization is idempotent upstream so a
// replay carries the same content.
func (s *Store) SaveCall(ctx context.Context, rec types.CallRecord) error {
	fragments, err := json.Marshal(rec.Fragments)
	if err != nil {
		return fmt.Errorf("record store: encode fragments: %w", err)
	}

	const q = `
		INSERT INTO calls
		    (session_id, transcript, fragments, exchange_count, tags, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
		    transcript     = EXCLUDED.transcript,
		    fragments      = EXCLUDED.fragments,
		    exchange_count = EXCLUDED.exchange_count,
		    tags           = EXCLUDED.tags,
		    started_at     = EXCLUDED.started_at,
		    ended_at       = EXCLUDED.ended_at`

	_, err = s.pool.Exec(ctx, q,
		rec.SessionID,
		rec.Transcript,
		fragments,
		rec.ExchangeCount,
		rec.Tags,
		rec.StartedAt,
		rec.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("record store: save call: %w", err)
	}
	return nil
}

// SaveAnalysis implements [record.Store].
func (s *Store) SaveAnalysis(ctx context.Context, sessionID string, result types.AnalysisResult) error {
	analysis, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("record store: encode analysis: %w", err)
	}

	const q = `UPDATE calls SET analysis = $2 WHERE session_id = $1`
	tag, err := s.pool.Exec(ctx, q, sessionID, analysis)
	if err != nil {
		return fmt.Errorf("record store: save analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record store: session %s: %w", sessionID, record.ErrNotFound)
	}
	return nil
}

// GetCall implements [record.Store].
func (s *Store) GetCall(ctx context.Context, sessionID string) (*types.CallRecord, error) {
	const q = `
		SELECT session_id, transcript, fragments, exchange_count, tags, started_at, ended_at
		FROM   calls
		WHERE  session_id = $1`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("record store: get call: %w", err)
	}
	rec, err := pgx.CollectOneRow(rows, scanCall)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("record store: session %s: %w", sessionID, record.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("record store: get call: %w", err)
	}
	return &rec, nil
}

// ListCalls implements [record.Store].
func (s *Store) ListCalls(ctx context.Context, limit int) ([]types.CallRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	const q = `
		SELECT session_id, transcript, fragments, exchange_count, tags, started_at, ended_at
		FROM   calls
		ORDER  BY ended_at DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("record store: list calls: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanCall)
	if err != nil {
		return nil, fmt.Errorf("record store: list calls: %w", err)
	}
	return recs, nil
}

// scanCall scans one calls row into a CallRecord.
func scanCall(row pgx.CollectableRow) (types.CallRecord, error) {
	var (
		rec       types.CallRecord
		fragments []byte
	)
	if err := row.Scan(
		&rec.SessionID,
		&rec.Transcript,
		&fragments,
		&rec.ExchangeCount,
		&rec.Tags,
		&rec.StartedAt,
		&rec.EndedAt,
	); err != nil {
		return types.CallRecord{}, err
	}
	if len(fragments) > 0 {
		if err := json.Unmarshal(fragments, &rec.Fragments); err != nil {
			return types.CallRecord{}, fmt.Errorf("decode fragments: %w", err)
		}
	}
	return rec, nil
}
