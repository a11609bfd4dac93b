// Package mock provides a test double for the analysis.Provider interface.
//
// Use Provider in unit tests to verify the requests the coach sends and to
// feed controlled results without a live LLM backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Result: &types.AnalysisResult{Score: 80, Feedback: "Good pacing."},
//	}
//	res, err := p.Analyze(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/pitchline-ai/pitchline/pkg/provider/analysis"
	"github.com/pitchline-ai/pitchline/pkg/types"
)

// Call records a single invocation of Analyze.
type Call struct {
	// Ctx is the context passed to Analyze.
	Ctx context.Context
	// Req is the request passed to Analyze.
	Req analysis.Request
}

// Provider is a mock implementation of analysis.Provider.
// A zero value returns a nil result and nil error. Set Err to inject a
// failure; set Errs to script per-call failures (nil entries succeed),
// which is useful for retry tests.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Analyze when no error is injected.
	Result *types.AnalysisResult

	// Err, if non-nil, is returned by every Analyze call.
	Err error

	// Errs scripts per-call outcomes. Call n returns Errs[n] when n is in
	// range; later calls fall back to Err/Result.
	Errs []error

	// Calls records every invocation in order.
	Calls []Call
}

var _ analysis.Provider = (*Provider)(nil)

// Analyze implements analysis.Provider.
func (p *Provider) Analyze(ctx context.Context, req analysis.Request) (*types.AnalysisResult, error) {
	p.mu.Lock()
	n := len(p.Calls)
	p.Calls = append(p.Calls, Call{Ctx: ctx, Req: req})
	var err error
	if n < len(p.Errs) {
		err = p.Errs[n]
	} else {
		err = p.Err
	}
	result := p.Result
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return result, nil
}

// CallCount returns the number of Analyze invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
