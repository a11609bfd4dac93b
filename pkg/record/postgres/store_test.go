package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitchline-ai/pitchline/pkg/record"
	"github.com/pitchline-ai/pitchline/pkg/record/postgres"
	"github.com/pitchline-ai/pitchline/pkg/types"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if PITCHLINE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("PITCHLINE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PITCHLINE_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
// It calls t.Cleanup to close the store when the test finishes.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(cleanPool.Close)
	if _, err := cleanPool.Exec(ctx, "DROP TABLE IF EXISTS calls CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func testRecord(sessionID string) types.CallRecord {
	started := time.Date(2025, 8, 14, 15, 4, 0, 0, time.UTC)
	return types.CallRecord{
		SessionID:  sessionID,
		Transcript: "hi, thanks for taking my call\n\nsure, what is this about",
		Fragments: []types.CommittedFragment{
			{ID: "f-1", Text: "hi, thanks for taking my call", Speaker: types.SpeakerUser, Timestamp: started, Source: "vendor"},
			{ID: "f-2", Text: "sure, what is this about", Speaker: types.SpeakerCounterpart, Timestamp: started.Add(3 * time.Second), Source: "vendor"},
		},
		ExchangeCount: 2,
		Tags:          []string{"cold-call", "pricing-objection"},
		StartedAt:     started,
		EndedAt:       started.Add(2 * time.Minute),
	}
}

func TestSaveAndGetCall(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := testRecord("session-1")
	if err := store.SaveCall(ctx, want); err != nil {
		t.Fatalf("SaveCall: %v", err)
	}

	got, err := store.GetCall(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}

	if got.Transcript != want.Transcript {
		t.Errorf("transcript = %q, want %q", got.Transcript, want.Transcript)
	}
	if got.ExchangeCount != want.ExchangeCount {
		t.Errorf("exchange count = %d, want %d", got.ExchangeCount, want.ExchangeCount)
	}
	if len(got.Fragments) != 2 {
		t.Fatalf("fragments = %d, want 2", len(got.Fragments))
	}
	if got.Fragments[0].Text != want.Fragments[0].Text {
		t.Errorf("fragment[0] = %q, want %q", got.Fragments[0].Text, want.Fragments[0].Text)
	}
	if got.Fragments[1].Speaker != types.SpeakerCounterpart {
		t.Errorf("fragment[1] speaker = %q", got.Fragments[1].Speaker)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "cold-call" {
		t.Errorf("tags = %v", got.Tags)
	}
	if !got.StartedAt.Equal(want.StartedAt) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, want.StartedAt)
	}
}

func TestSaveCall_ReplacesExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("session-1")
	if err := store.SaveCall(ctx, rec); err != nil {
		t.Fatalf("SaveCall: %v", err)
	}

	rec.Transcript = "corrected canonical transcript"
	rec.Fragments = nil
	if err := store.SaveCall(ctx, rec); err != nil {
		t.Fatalf("SaveCall (replace): %v", err)
	}

	got, err := store.GetCall(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if got.Transcript != "corrected canonical transcript" {
		t.Errorf("transcript = %q", got.Transcript)
	}
	if len(got.Fragments) != 0 {
		t.Errorf("expected fragments cleared, got %d", len(got.Fragments))
	}
}

func TestGetCall_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetCall(context.Background(), "missing")
	if !errors.Is(err, record.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestSaveAnalysis(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveCall(ctx, testRecord("session-1")); err != nil {
		t.Fatalf("SaveCall: %v", err)
	}

	result := types.AnalysisResult{
		Score:     81,
		Feedback:  "Strong opener, weak close.",
		Strengths: []string{"rapport"},
	}
	if err := store.SaveAnalysis(ctx, "session-1", result); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
}

func TestSaveAnalysis_UnknownSession(t *testing.T) {
	store := newTestStore(t)

	err := store.SaveAnalysis(context.Background(), "missing", types.AnalysisResult{Score: 50})
	if !errors.Is(err, record.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestListCalls_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"session-a", "session-b", "session-c"} {
		rec := testRecord(id)
		rec.EndedAt = rec.EndedAt.Add(time.Duration(i) * time.Hour)
		if err := store.SaveCall(ctx, rec); err != nil {
			t.Fatalf("SaveCall %s: %v", id, err)
		}
	}

	recs, err := store.ListCalls(ctx, 2)
	if err != nil {
		t.Fatalf("ListCalls: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].SessionID != "session-c" || recs[1].SessionID != "session-b" {
		t.Errorf("order = %s, %s", recs[0].SessionID, recs[1].SessionID)
	}
}

func TestListCalls_DefaultLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveCall(ctx, testRecord("session-1")); err != nil {
		t.Fatalf("SaveCall: %v", err)
	}

	recs, err := store.ListCalls(ctx, 0)
	if err != nil {
		t.Fatalf("ListCalls: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("got %d records, want 1", len(recs))
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
