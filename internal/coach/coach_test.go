package coach

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/pitchline-ai/pitchline/internal/session"
	analysismock "github.com/pitchline-ai/pitchline/pkg/provider/analysis/mock"
	"github.com/pitchline-ai/pitchline/pkg/record"
	recordmock "github.com/pitchline-ai/pitchline/pkg/record/mock"
	"github.com/pitchline-ai/pitchline/pkg/types"
)

var coachBase = time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// endedSession returns an active session with two committed exchanges.
func endedSession(t *testing.T) *session.Session {
	t.Helper()
	sess := session.New("call-1",
		session.WithLogger(discardLogger()),
		session.WithClock(func() time.Time { return coachBase }),
	)
	sess.SetStatus(session.StatusActive)
	sess.HandleFragment(types.Fragment{
		Text: "I need to think about the budget", Final: true,
		Speaker: types.SpeakerUser, Start: coachBase,
	})
	sess.HandleFragment(types.Fragment{
		Text: "Totally fair, what range were you considering", Final: true,
		Speaker: types.SpeakerCounterpart, Start: coachBase.Add(5 * time.Second),
	})
	return sess
}

func goodResult() *types.AnalysisResult {
	return &types.AnalysisResult{
		Score:    72,
		Feedback: "Solid discovery, weak close.",
	}
}

func TestFinishPersistsAndAnalyzes(t *testing.T) {
	store := recordmock.NewStore()
	analyzer := &analysismock.Provider{Result: goodResult()}
	c := New(analyzer, record.NewGuard(store),
		WithScenario("budget objection"),
		WithTags([]string{"practice"}),
		WithLogger(discardLogger()),
	)

	sess := endedSession(t)
	report, err := c.Finish(context.Background(), sess)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if report.Degraded {
		t.Error("report marked degraded")
	}
	if report.Analysis.Score != 72 {
		t.Errorf("score = %v", report.Analysis.Score)
	}
	if report.Record.SessionID != "call-1" {
		t.Errorf("record session id = %q", report.Record.SessionID)
	}
	if report.Record.ExchangeCount != 2 {
		t.Errorf("exchange count = %d", report.Record.ExchangeCount)
	}
	if got := report.Record.Tags; len(got) != 1 || got[0] != "practice" {
		t.Errorf("tags = %v", got)
	}
	if !strings.Contains(report.Record.Transcript, "I need to think about the budget") {
		t.Errorf("transcript missing user line: %q", report.Record.Transcript)
	}

	saved, err := store.GetCall(context.Background(), "call-1")
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if saved.Transcript != report.Record.Transcript {
		t.Error("stored transcript differs from report")
	}
	if _, ok := store.Analysis("call-1"); !ok {
		t.Error("analysis not stored")
	}

	if got := analyzer.CallCount(); got != 1 {
		t.Errorf("analyzer called %d times", got)
	}
	req := analyzer.Calls[0].Req
	if req.Scenario != "budget objection" {
		t.Errorf("request scenario = %q", req.Scenario)
	}
	if req.ExchangeCount != 2 {
		t.Errorf("request exchange count = %d", req.ExchangeCount)
	}
}

func TestFinishRetriesTransientAnalysisFailure(t *testing.T) {
	store := recordmock.NewStore()
	analyzer := &analysismock.Provider{
		Result: goodResult(),
		Errs:   []error{errors.New("rate limited"), errors.New("rate limited")},
	}
	c := New(analyzer, record.NewGuard(store),
		WithRetry(3, time.Millisecond),
		WithLogger(discardLogger()),
	)

	report, err := c.Finish(context.Background(), endedSession(t))
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if report.Degraded {
		t.Error("report degraded despite eventual success")
	}
	if got := analyzer.CallCount(); got != 3 {
		t.Errorf("analyzer called %d times, want 3", got)
	}
}

func TestFinishDegradedOnExhaustion(t *testing.T) {
	store := recordmock.NewStore()
	analyzer := &analysismock.Provider{Err: errors.New("backend down")}
	c := New(analyzer, record.NewGuard(store),
		WithRetry(2, time.Millisecond),
		WithLogger(discardLogger()),
	)

	report, err := c.Finish(context.Background(), endedSession(t))
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !report.Degraded {
		t.Fatal("report not degraded")
	}
	if report.Analysis.Feedback == "" {
		t.Error("degraded result has empty feedback")
	}
	if got := analyzer.CallCount(); got != 2 {
		t.Errorf("analyzer called %d times, want 2", got)
	}

	// The call record and the degraded verdict are both stored.
	if _, err := store.GetCall(context.Background(), "call-1"); err != nil {
		t.Errorf("call record not stored: %v", err)
	}
	res, ok := store.Analysis("call-1")
	if !ok {
		t.Fatal("degraded analysis not stored")
	}
	if res.Feedback != report.Analysis.Feedback {
		t.Error("stored feedback differs from report")
	}
}

func TestFinishStorageFailureDoesNotBlockAnalysis(t *testing.T) {
	store := recordmock.NewStore()
	store.SaveCallErr = errors.New("connection refused")
	guard := record.NewGuard(store)
	analyzer := &analysismock.Provider{Result: goodResult()}
	c := New(analyzer, guard, WithLogger(discardLogger()))

	report, err := c.Finish(context.Background(), endedSession(t))
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if report.Degraded {
		t.Error("report degraded on storage failure")
	}
	if report.Analysis.Score != 72 {
		t.Errorf("score = %v", report.Analysis.Score)
	}
	if !guard.IsDegraded() {
		t.Error("guard not marked degraded")
	}
}

func TestFinishEmptyCallIsPermanent(t *testing.T) {
	store := recordmock.NewStore()
	analyzer := &analysismock.Provider{Result: goodResult()}
	c := New(analyzer, record.NewGuard(store),
		WithRetry(3, time.Millisecond),
		WithLogger(discardLogger()),
	)

	sess := session.New("empty-call",
		session.WithLogger(discardLogger()),
		session.WithClock(func() time.Time { return coachBase }),
	)
	sess.SetStatus(session.StatusActive)

	report, err := c.Finish(context.Background(), sess)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !report.Degraded {
		t.Error("empty call should produce a degraded report")
	}
	// Validation fails before the provider is ever called, and is not
	// retried.
	if got := analyzer.CallCount(); got != 0 {
		t.Errorf("analyzer called %d times, want 0", got)
	}
}

func TestFinishNilStore(t *testing.T) {
	analyzer := &analysismock.Provider{Result: goodResult()}
	c := New(analyzer, nil, WithLogger(discardLogger()))

	report, err := c.Finish(context.Background(), endedSession(t))
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if report.Analysis.Score != 72 {
		t.Errorf("score = %v", report.Analysis.Score)
	}
}

func TestFinishCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := recordmock.NewStore()
	analyzer := &analysismock.Provider{Err: errors.New("down")}
	c := New(analyzer, record.NewGuard(store),
		WithRetry(3, 10*time.Second),
		WithLogger(discardLogger()),
	)

	if _, err := c.Finish(ctx, endedSession(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("Finish error = %v, want context.Canceled", err)
	}
}
