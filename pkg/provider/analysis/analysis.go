// Package analysis defines the Provider interface for post-call transcript
// analysis backends.
//
// An analysis provider wraps an LLM API (e.g. OpenAI, or anything reachable
// through any-llm-go) and turns a finished call transcript into structured
// coaching feedback. Implementations must be safe for concurrent use and
// must honour context cancellation.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pitchline-ai/pitchline/pkg/types"
)

// Request carries everything the analyzer needs about one call.
type Request struct {
	// Transcript is the assembled call transcript. Must be non-empty.
	Transcript string

	// Scenario optionally describes the practiced situation, e.g.
	// "cold call, procurement lead, price objection".
	Scenario string

	// ExchangeCount is the number of speaker turns in the call. Analyzers
	// may use it to calibrate feedback for very short calls.
	ExchangeCount int
}

// Validate reports whether the request can be analyzed.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Transcript) == "" {
		return errors.New("analysis: transcript must not be empty")
	}
	return nil
}

// Provider is the abstraction over any analysis backend.
type Provider interface {
	// Analyze scores the call and produces structured feedback. It blocks
	// until the backend responds or ctx is cancelled.
	Analyze(ctx context.Context, req Request) (*types.AnalysisResult, error)
}

// systemPrompt instructs the model to respond with the exact JSON shape of
// [types.AnalysisResult].
const systemPrompt = `You are an experienced sales coach reviewing a practice call transcript.
The rep is labeled "user"; the simulated prospect is labeled "counterpart".

Respond with a single JSON object and nothing else, in this exact shape:
{
  "score": <number 0-100>,
  "feedback": "<two or three sentence overall assessment>",
  "strengths": ["<specific thing the rep did well>", ...],
  "improvements": ["<specific thing to work on>", ...],
  "recommendations": ["<concrete next action>", ...]
}`

// BuildPrompt renders the user message sent to the model for req.
func BuildPrompt(req Request) string {
	var b strings.Builder
	if req.Scenario != "" {
		fmt.Fprintf(&b, "Scenario: %s\n\n", req.Scenario)
	}
	if req.ExchangeCount > 0 {
		fmt.Fprintf(&b, "Speaker turns: %d\n\n", req.ExchangeCount)
	}
	b.WriteString("Transcript:\n")
	b.WriteString(req.Transcript)
	return b.String()
}

// SystemPrompt returns the shared coaching instruction.
func SystemPrompt() string {
	return systemPrompt
}

// ParseResult decodes a model reply into an [types.AnalysisResult]. Models
// sometimes wrap JSON in a markdown fence or surround it with prose, so the
// parser extracts the outermost object before decoding.
func ParseResult(reply string) (*types.AnalysisResult, error) {
	raw := strings.TrimSpace(reply)
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}

	var result types.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("analysis: decoding model reply: %w", err)
	}
	if result.Score < 0 || result.Score > 100 {
		return nil, fmt.Errorf("analysis: score %v out of range", result.Score)
	}
	return &result, nil
}
