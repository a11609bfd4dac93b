package record

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/pitchline-ai/pitchline/pkg/types"
)

// Guard wraps a [Store] and makes write operations non-fatal. If the
// underlying store fails, writes log a warning and return nil instead of
// propagating the error.
//
// This keeps call handling alive when the record backend is temporarily
// unavailable (database restart, network partition). Reads still return
// their errors; only writes are fire-and-forget. The IsDegraded method
// reports whether the store is currently experiencing failures.
//
// Guard implements [Store]. All methods are safe for concurrent use.
type Guard struct {
	store    Store
	degraded atomic.Bool
}

var _ Store = (*Guard)(nil)

// NewGuard creates a [Guard] wrapping the given store.
func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// SaveCall attempts to save the record. On failure the error is logged and
// swallowed; the store is marked as degraded. On success the degraded flag
// is cleared.
func (g *Guard) SaveCall(ctx context.Context, rec types.CallRecord) error {
	err := g.store.SaveCall(ctx, rec)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("record guard: SaveCall failed, swallowing error",
			"session_id", rec.SessionID,
			"error", err,
		)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// SaveAnalysis attempts to attach an analysis result. Missing calls are a
// caller bug, so [ErrNotFound] propagates; backend failures are logged and
// swallowed.
func (g *Guard) SaveAnalysis(ctx context.Context, sessionID string, result types.AnalysisResult) error {
	err := g.store.SaveAnalysis(ctx, sessionID, result)
	if err == nil {
		g.degraded.Store(false)
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	g.degraded.Store(true)
	slog.Warn("record guard: SaveAnalysis failed, swallowing error",
		"session_id", sessionID,
		"error", err,
	)
	return nil
}

// GetCall delegates to the underlying store. Read errors propagate; the
// degraded flag tracks the outcome.
func (g *Guard) GetCall(ctx context.Context, sessionID string) (*types.CallRecord, error) {
	rec, err := g.store.GetCall(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		g.degraded.Store(true)
		return nil, err
	}
	g.degraded.Store(false)
	return rec, err
}

// ListCalls delegates to the underlying store. Read errors propagate; the
// degraded flag tracks the outcome.
func (g *Guard) ListCalls(ctx context.Context, limit int) ([]types.CallRecord, error) {
	recs, err := g.store.ListCalls(ctx, limit)
	if err != nil {
		g.degraded.Store(true)
		return nil, err
	}
	g.degraded.Store(false)
	return recs, nil
}

// IsDegraded reports whether the store is currently operating in degraded
// mode (i.e., the most recent operation on the underlying store failed).
func (g *Guard) IsDegraded() bool {
	return g.degraded.Load()
}
