// Package record defines persistence for finished call records and their
// analysis results.
//
// Persistence is deliberately off the hot path: a call that cannot be saved
// is still a call that happened, so callers normally reach the store through
// [Guard], which swallows backend failures instead of propagating them.
package record

import (
	"context"
	"errors"

	"github.com/pitchline-ai/pitchline/pkg/types"
)

// ErrNotFound is returned when no record exists for the requested session.
var ErrNotFound = errors.New("record: not found")

// Store is the abstraction over any call record backend.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveCall upserts the record for rec.SessionID.
	SaveCall(ctx context.Context, rec types.CallRecord) error

	// SaveAnalysis attaches an analysis result to an already saved call.
	// Returns [ErrNotFound] when the call was never saved.
	SaveAnalysis(ctx context.Context, sessionID string, result types.AnalysisResult) error

	// GetCall fetches one call record. Returns [ErrNotFound] when absent.
	GetCall(ctx context.Context, sessionID string) (*types.CallRecord, error)

	// ListCalls returns the most recent call records, newest first. A zero
	// limit applies the implementation's default.
	ListCalls(ctx context.Context, limit int) ([]types.CallRecord, error)
}
