// Package router translates inbound voice provider events into session
// state machine calls.
package router

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pitchline-ai/pitchline/internal/observe"
	"github.com/pitchline-ai/pitchline/internal/session"
	"github.com/pitchline-ai/pitchline/pkg/provider/voice"
	"github.com/pitchline-ai/pitchline/pkg/types"
)

// defaultLeakPhrases match assistant configuration text that some vendors
// leak into the transcript stream. Lines beginning with any of them are
// removed before the text reaches the session; the rest of the fragment is
// kept.
var defaultLeakPhrases = []string{
	"role and context",
}

// Router dispatches one call's event stream to its session.
//
// Route is expected to be called from a single pump goroutine so events are
// applied in wire order.
type Router struct {
	sess    *session.Session
	logger  *slog.Logger
	source  string
	leaks   []string
	metrics *observe.Metrics

	// OnConversation, when set, receives conversation-update events. They
	// never touch the session; the hook is for live UI mirrors.
	OnConversation func(voice.Event)
}

// Option configures a [Router].
type Option func(*Router)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

// WithSource sets the fragment source label. Defaults to "vapi".
func WithSource(s string) Option {
	return func(r *Router) {
		r.source = s
	}
}

// WithLeakPhrases replaces the configuration-leak blocklist.
func WithLeakPhrases(phrases []string) Option {
	return func(r *Router) {
		r.leaks = phrases
	}
}

// WithMetrics sets a metrics sink for leak rejections. When unset, no
// metrics are recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// New creates a router feeding the given session.
func New(sess *session.Session, opts ...Option) *Router {
	r := &Router{
		sess:   sess,
		source: "vapi",
		leaks:  defaultLeakPhrases,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Route classifies one event and applies it to the session. Unknown event
// types are logged and dropped.
func (r *Router) Route(ev voice.Event) {
	switch ev.Type {
	case voice.EventTranscript:
		r.routeTranscript(ev)
	case voice.EventSpeechUpdate:
		r.routeSpeechUpdate(ev)
	case voice.EventConversationUpdate:
		if r.OnConversation != nil {
			r.OnConversation(ev)
		}
	case voice.EventCallStart:
		r.sess.SetStatus(session.StatusActive)
	case voice.EventCallEnd:
		r.sess.Finalize()
	default:
		r.logger.Debug("router: dropping unknown event",
			"session_id", r.sess.ID(), "type", ev.Type)
	}
}

func (r *Router) routeTranscript(ev voice.Event) {
	speaker, ok := ev.Speaker()
	if !ok {
		r.logger.Debug("router: dropping transcript with unknown role",
			"session_id", r.sess.ID(), "role", ev.Role)
		return
	}
	text, ok := ev.Text()
	if !ok {
		r.logger.Debug("router: dropping transcript without text",
			"session_id", r.sess.ID(), "role", ev.Role)
		return
	}
	text, scrubbed := r.scrubLeaks(text)
	if scrubbed {
		r.logger.Warn("router: scrubbed leaked configuration text",
			"session_id", r.sess.ID(), "role", ev.Role)
		if r.metrics != nil {
			r.metrics.RecordFragmentRejected(context.Background(), ev.Role, observe.ReasonLeak)
		}
		if text == "" {
			return
		}
	}

	r.sess.HandleFragment(types.Fragment{
		Text:    text,
		Final:   ev.Final(),
		Speaker: speaker,
		Source:  r.source,
		Start:   ev.Timestamp,
	})
}

func (r *Router) routeSpeechUpdate(ev voice.Event) {
	speaker, ok := ev.Speaker()
	if !ok || speaker != types.SpeakerCounterpart {
		return
	}
	switch ev.Status {
	case voice.SpeechStarted:
		r.sess.CounterpartSpeechStart()
	case voice.SpeechStopped:
		r.sess.CounterpartSpeechStop()
	default:
		r.logger.Debug("router: dropping speech update with unknown status",
			"session_id", r.sess.ID(), "status", ev.Status)
	}
}

// scrubLeaks removes lines that begin with a blocked phrase and reports
// whether anything was removed. A phrase appearing mid-line is legitimate
// speech and is kept.
func (r *Router) scrubLeaks(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	scrubbed := false
	for _, line := range lines {
		if r.leakLine(line) {
			scrubbed = true
			continue
		}
		kept = append(kept, line)
	}
	if !scrubbed {
		return text, false
	}
	return strings.TrimSpace(strings.Join(kept, "\n")), true
}

func (r *Router) leakLine(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	for _, phrase := range r.leaks {
		if strings.HasPrefix(lower, phrase) {
			return true
		}
	}
	return false
}
