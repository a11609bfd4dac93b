package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/pitchline-ai/pitchline/pkg/provider/analysis"
	analysismock "github.com/pitchline-ai/pitchline/pkg/provider/analysis/mock"
	"github.com/pitchline-ai/pitchline/pkg/types"
)

func TestFallbackGroupPrimaryWins(t *testing.T) {
	fg := NewFallbackGroup("primary", "a")
	fg.AddFallback("secondary", "b")

	var used string
	err := fg.Execute(func(v string) error {
		used = v
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if used != "a" {
		t.Errorf("used %q, want primary", used)
	}
}

func TestFallbackGroupFailsOver(t *testing.T) {
	fg := NewFallbackGroup("primary", "a")
	fg.AddFallback("secondary", "b")

	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		if v == "a" {
			return "", errBoom
		}
		return v, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult() = %v", err)
	}
	if got != "b" {
		t.Errorf("result = %q, want fallback", got)
	}
}

func TestFallbackGroupAllFailed(t *testing.T) {
	fg := NewFallbackGroup("primary", "a")
	fg.AddFallback("secondary", "b")

	err := fg.Execute(func(string) error { return errBoom })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("Execute() = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroupSkipsOpenBreaker(t *testing.T) {
	fg := NewFallbackGroup("primary", "a", WithMaxFailures(1))
	fg.AddFallback("secondary", "b")

	// Trip the primary's breaker.
	_ = fg.Execute(func(v string) error {
		if v == "a" {
			return errBoom
		}
		return nil
	})

	var calls []string
	err := fg.Execute(func(v string) error {
		calls = append(calls, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if len(calls) != 1 || calls[0] != "b" {
		t.Errorf("calls = %v, want only the fallback", calls)
	}
}

func TestAnalysisFallback(t *testing.T) {
	primary := &analysismock.Provider{Err: errBoom}
	secondary := &analysismock.Provider{
		Result: &types.AnalysisResult{Score: 64, Feedback: "ok"},
	}

	f := NewAnalysisFallback("primary", primary)
	f.AddFallback("secondary", secondary)

	got, err := f.Analyze(context.Background(), analysis.Request{Transcript: "hi"})
	if err != nil {
		t.Fatalf("Analyze() = %v", err)
	}
	if got.Score != 64 {
		t.Errorf("Score = %v, want 64", got.Score)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 1 {
		t.Errorf("call counts = %d/%d, want 1/1",
			primary.CallCount(), secondary.CallCount())
	}
}
