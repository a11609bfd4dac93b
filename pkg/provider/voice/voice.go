// Package voice defines the Client interface for live voice-call event
// streams.
//
// A voice client wraps a call-orchestration vendor (e.g. Vapi) and exposes
// the ordered event stream of an active call: partial and final transcript
// events, speech start/stop turn-taking updates, conversation updates, and
// call lifecycle signals. The client is an explicitly owned object with an
// Open/Close lifecycle — no package-level singleton — so tests can inject
// mocks and multiple sessions could run concurrently.
//
// Implementations must be safe for concurrent use. The events channel is
// closed when the stream ends.
package voice

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pitchline-ai/pitchline/pkg/types"
)

// EventType discriminates inbound stream events.
type EventType string

const (
	// EventTranscript carries partial or final transcription text.
	EventTranscript EventType = "transcript"

	// EventSpeechUpdate signals that a participant started or stopped
	// speaking.
	EventSpeechUpdate EventType = "speech-update"

	// EventConversationUpdate carries the vendor's rolling conversation
	// snapshot. UI-only; never persisted.
	EventConversationUpdate EventType = "conversation-update"

	// EventCallStart and EventCallEnd bound the call.
	EventCallStart EventType = "call-start"
	EventCallEnd   EventType = "call-end"
)

// Speech-update status values.
const (
	SpeechStarted = "started"
	SpeechStopped = "stopped"
)

// Event is one inbound provider event. Only the fields relevant to the
// event's Type are populated; unknown fields are preserved nowhere.
type Event struct {
	// Type discriminates the event.
	Type EventType `json:"type"`

	// Role is the vendor's participant label ("user", "customer",
	// "assistant", "bot"). Use [Event.Speaker] for the canonical mapping.
	Role string `json:"role"`

	// TranscriptType is "partial" or "final" for transcript events.
	TranscriptType string `json:"transcriptType"`

	// Status is "started" or "stopped" for speech-update events.
	Status string `json:"status"`

	// Transcript is the raw transcript payload. Vendors disagree about its
	// shape — a bare string, {"text": ...}, or {"content": ...} — so it is
	// kept raw and decoded by [Event.Text].
	Transcript json.RawMessage `json:"transcript"`

	// Timestamp marks when the event was received. Set by the client on
	// receipt when the vendor does not supply one.
	Timestamp time.Time `json:"timestamp"`
}

// transcriptObject covers the nested transcript payload shapes.
type transcriptObject struct {
	Text    string `json:"text"`
	Content string `json:"content"`
}

// Text extracts the transcript text from the raw payload. It tolerates a
// bare JSON string, {"text": ...}, and {"content": ...}. Returns false when
// no text can be extracted.
func (e Event) Text() (string, bool) {
	if len(e.Transcript) == 0 {
		return "", false
	}

	var s string
	if err := json.Unmarshal(e.Transcript, &s); err == nil {
		return s, s != ""
	}

	var obj transcriptObject
	if err := json.Unmarshal(e.Transcript, &obj); err != nil {
		return "", false
	}
	if obj.Text != "" {
		return obj.Text, true
	}
	if obj.Content != "" {
		return obj.Content, true
	}
	return "", false
}

// Final reports whether a transcript event carries a final transcription.
func (e Event) Final() bool {
	return strings.EqualFold(e.TranscriptType, "final")
}

// Speaker maps the vendor role label to the canonical speaker. Returns
// false for unknown labels.
func (e Event) Speaker() (types.Speaker, bool) {
	switch strings.ToLower(e.Role) {
	case "user", "customer", "human":
		return types.SpeakerUser, true
	case "assistant", "bot", "ai":
		return types.SpeakerCounterpart, true
	default:
		return "", false
	}
}

// Client is an open connection to a vendor's live call event stream.
//
// Callers must call Close when the stream is no longer needed. Failing to
// do so may leak goroutines and network connections inside the
// implementation.
type Client interface {
	// Open establishes the stream. Events arrive on the channel returned by
	// Events once Open succeeds. Calling Open twice is an error.
	Open(ctx context.Context) error

	// Events returns the read-only ordered event stream. The channel is
	// closed when the call ends or the client is closed.
	Events() <-chan Event

	// Close terminates the stream and releases all resources. Calling Close
	// more than once is safe and returns nil.
	Close() error
}
