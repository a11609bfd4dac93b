package resilience

import (
	"context"

	"github.com/pitchline-ai/pitchline/pkg/provider/analysis"
	"github.com/pitchline-ai/pitchline/pkg/types"
)

// AnalysisFallback implements [analysis.Provider] with automatic failover
// across multiple analysis backends. Each backend has its own circuit
// breaker; when the primary fails or its breaker is open, the next healthy
// fallback is tried.
type AnalysisFallback struct {
	group *FallbackGroup[analysis.Provider]
}

var _ analysis.Provider = (*AnalysisFallback)(nil)

// NewAnalysisFallback creates an [AnalysisFallback] with primary as the
// preferred backend.
func NewAnalysisFallback(primaryName string, primary analysis.Provider, breakerOpts ...BreakerOption) *AnalysisFallback {
	return &AnalysisFallback{
		group: NewFallbackGroup(primaryName, primary, breakerOpts...),
	}
}

// AddFallback registers an additional analysis provider as a fallback.
func (f *AnalysisFallback) AddFallback(name string, provider analysis.Provider) {
	f.group.AddFallback(name, provider)
}

// Analyze sends the request to the first healthy provider and returns its
// result. If the primary fails, subsequent fallbacks are tried.
func (f *AnalysisFallback) Analyze(ctx context.Context, req analysis.Request) (*types.AnalysisResult, error) {
	return ExecuteWithResult(f.group, func(p analysis.Provider) (*types.AnalysisResult, error) {
		return p.Analyze(ctx, req)
	})
}
