// Package mock provides an in-memory record store for tests.
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/pitchline-ai/pitchline/pkg/record"
	"github.com/pitchline-ai/pitchline/pkg/types"
)

// Store is an in-memory implementation of record.Store. Set the error
// fields to inject failures.
//
// All methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	calls    map[string]types.CallRecord
	analyses map[string]types.AnalysisResult

	// SaveCallErr, SaveAnalysisErr, GetCallErr and ListCallsErr, when set,
	// are returned by the corresponding method.
	SaveCallErr     error
	SaveAnalysisErr error
	GetCallErr      error
	ListCallsErr    error
}

var _ record.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		calls:    make(map[string]types.CallRecord),
		analyses: make(map[string]types.AnalysisResult),
	}
}

// SaveCall implements record.Store.
func (s *Store) SaveCall(_ context.Context, rec types.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveCallErr != nil {
		return s.SaveCallErr
	}
	s.calls[rec.SessionID] = rec
	return nil
}

// SaveAnalysis implements record.Store.
func (s *Store) SaveAnalysis(_ context.Context, sessionID string, result types.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveAnalysisErr != nil {
		return s.SaveAnalysisErr
	}
	if _, ok := s.calls[sessionID]; !ok {
		return record.ErrNotFound
	}
	s.analyses[sessionID] = result
	return nil
}

// GetCall implements record.Store.
func (s *Store) GetCall(_ context.Context, sessionID string) (*types.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetCallErr != nil {
		return nil, s.GetCallErr
	}
	rec, ok := s.calls[sessionID]
	if !ok {
		return nil, record.ErrNotFound
	}
	return &rec, nil
}

// ListCalls implements record.Store.
func (s *Store) ListCalls(_ context.Context, limit int) ([]types.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListCallsErr != nil {
		return nil, s.ListCallsErr
	}
	recs := make([]types.CallRecord, 0, len(s.calls))
	for _, rec := range s.calls {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].EndedAt.After(recs[j].EndedAt)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Analysis returns the stored analysis for a session, if any.
func (s *Store) Analysis(sessionID string) (types.AnalysisResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.analyses[sessionID]
	return result, ok
}

// Len returns the number of stored calls.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
