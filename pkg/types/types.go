// Package types defines the shared types used across all Pitchline packages.
//
// These types form the lingua franca between the voice provider, the session
// state machine, the assembler, and the record store. They are intentionally
// minimal — each package defines its own domain types, but cross-cutting data
// structures live here to avoid circular imports.
package types

import "time"

// Speaker identifies which side of the practice call produced an utterance.
type Speaker string

const (
	// SpeakerUser is the trainee on the microphone.
	SpeakerUser Speaker = "user"

	// SpeakerCounterpart is the synthetic sales prospect the trainee is
	// talking to.
	SpeakerCounterpart Speaker = "counterpart"
)

// IsValid reports whether s is a recognised speaker role.
func (s Speaker) IsValid() bool {
	return s == SpeakerUser || s == SpeakerCounterpart
}

// Fragment is a single speech-to-text event's text payload while it is still
// live. Interim fragments may be revised by the provider; a fragment with
// Final set is a candidate for commitment.
type Fragment struct {
	// Text is the transcribed speech content as received.
	Text string

	// Final indicates whether the provider asserts this transcription is
	// complete for the utterance.
	Final bool

	// Speaker attributes the fragment to one side of the call.
	Speaker Speaker

	// Source tags the transcription source within the provider stream
	// (e.g. "vapi", "deepgram-channel-0"). The live buffer holds at most
	// one interim fragment per (Speaker, Source) pair.
	Source string

	// Start marks when the utterance began.
	Start time.Time
}

// CommittedFragment is a final fragment that has passed echo gating,
// normalisation, and deduplication. Committed fragments are never mutated;
// the assembler orders them by Timestamp.
type CommittedFragment struct {
	// ID uniquely identifies the committed fragment within the session.
	ID string

	// Text is the token-deduplicated fragment text: stutters and repeated
	// recognition windows are removed, the speaker's casing and
	// punctuation are kept.
	Text string

	// Speaker attributes the fragment to one side of the call.
	Speaker Speaker

	// Timestamp is when the utterance began.
	Timestamp time.Time

	// Source is the transcription source tag carried over from the Fragment.
	Source string

	// ContentHash is the ledger hash that admitted this fragment. No two
	// committed fragments in a session share a ContentHash.
	ContentHash string
}

// AnalysisResult is the coaching payload returned by the analysis service
// for a finalized transcript.
type AnalysisResult struct {
	// Score is the overall call score (0–100).
	Score float64 `json:"score"`

	// Feedback is the free-text coaching summary.
	Feedback string `json:"feedback"`

	// Strengths lists what the trainee did well.
	Strengths []string `json:"strengths"`

	// Improvements lists concrete weaknesses to work on.
	Improvements []string `json:"improvements"`

	// Recommendations lists suggested next practice steps.
	Recommendations []string `json:"recommendations"`
}

// CallRecord is the durable record of one practice call.
type CallRecord struct {
	// SessionID identifies the practice session.
	SessionID string

	// Transcript is the final assembled (or canonically overridden)
	// transcript text.
	Transcript string

	// Fragments are the committed fragments the transcript was assembled
	// from. Empty when the transcript came from a canonical override.
	Fragments []CommittedFragment

	// ExchangeCount is the number of speaker turns in the call.
	ExchangeCount int

	// Tags carries the session's scenario configuration tags
	// (e.g. "cold-call", "pricing-objection").
	Tags []string

	// StartedAt and EndedAt bound the call.
	StartedAt time.Time
	EndedAt   time.Time
}
