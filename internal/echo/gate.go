// Package echo implements the half-duplex echo gate.
//
// During a practice call the synthetic counterpart's voice plays through the
// trainee's speakers, and on open-mic setups that audio bleeds back into the
// microphone. Without gating, the transcriber attributes the bleed to the
// trainee and the session "hears itself". The gate suppresses user-speech
// fragments that arrive while the counterpart is speaking, plus a short tail
// window after it stops to absorb trailing bleed.
//
// Suppression is a deliberate drop policy, not an error: gated fragments are
// discarded silently before deduplication.
//
// The Gate is not internally synchronised: it is owned by exactly one
// session, whose mutex serialises all access.
package echo

import (
	"time"

	"github.com/pitchline-ai/pitchline/pkg/types"
)

// DefaultTail is the suppression window kept open after the counterpart
// stops speaking.
const DefaultTail = 350 * time.Millisecond

// Gate tracks whether the counterpart is speaking and for how long after it
// stops the user channel stays suppressed.
type Gate struct {
	tail time.Duration

	counterpartSpeaking bool
	suppressUntil       time.Time
}

// New creates a Gate with the given tail window. A non-positive tail falls
// back to [DefaultTail].
func New(tail time.Duration) *Gate {
	if tail <= 0 {
		tail = DefaultTail
	}
	return &Gate{tail: tail}
}

// SpeechStart records that the counterpart began speaking.
func (g *Gate) SpeechStart() {
	g.counterpartSpeaking = true
}

// SpeechStop records that the counterpart stopped speaking at now and opens
// the tail suppression window.
func (g *Gate) SpeechStop(now time.Time) {
	g.counterpartSpeaking = false
	g.suppressUntil = now.Add(g.tail)
}

// Suppressed reports whether a fragment from role arriving at now must be
// dropped. Only the user channel is ever suppressed; the counterpart's own
// speech always passes.
func (g *Gate) Suppressed(role types.Speaker, now time.Time) bool {
	if role != types.SpeakerUser {
		return false
	}
	return g.counterpartSpeaking || now.Before(g.suppressUntil)
}

// Reset returns the gate to its initial open state.
func (g *Gate) Reset() {
	g.counterpartSpeaking = false
	g.suppressUntil = time.Time{}
}
