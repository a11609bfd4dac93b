// Package session implements the per-call transcript session: a state
// machine that buffers interim speech, filters final fragments through the
// echo gate and the deduplication ledger, and assembles the committed
// record into the final transcript.
package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pitchline-ai/pitchline/internal/dedup"
	"github.com/pitchline-ai/pitchline/internal/echo"
	"github.com/pitchline-ai/pitchline/internal/normalize"
	"github.com/pitchline-ai/pitchline/internal/observe"
	"github.com/pitchline-ai/pitchline/internal/transcript"
	"github.com/pitchline-ai/pitchline/pkg/types"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusActive     Status = "active"
	StatusEnded      Status = "ended"
	StatusFailed     Status = "failed"
)

// IsActive reports whether a session in this status accepts fragments.
func (s Status) IsActive() bool {
	return s == StatusActive
}

// IsTerminal reports whether this status is final. Terminal sessions only
// leave their status via [Session.Clear].
func (s Status) IsTerminal() bool {
	return s == StatusEnded || s == StatusFailed
}

// Snapshot is an immutable view of a session at one point in time.
// Everything a UI needs is derivable from it without touching the session
// again.
type Snapshot struct {
	ID            string
	Status        Status
	Interims      []types.Fragment
	Committed     []types.CommittedFragment
	Transcript    string
	ExchangeCount int
	StartedAt     time.Time
	EndedAt       time.Time
}

// interimKey identifies one interim slot. Each (speaker, source) pair holds
// at most one interim fragment; newer interims replace older ones.
type interimKey struct {
	speaker types.Speaker
	source  string
}

// Session is the state machine for one call.
//
// All methods are safe for concurrent use. The ledger and gate are owned by
// the session and serialised under its mutex.
type Session struct {
	id      string
	logger  *slog.Logger
	now     func() time.Time
	metrics *observe.Metrics

	mu        sync.Mutex
	status    Status
	startedAt time.Time
	endedAt   time.Time

	interims  map[interimKey]types.Fragment
	committed []types.CommittedFragment

	ledger    *dedup.Ledger
	gate      *echo.Gate
	assembler *transcript.Assembler

	finalTranscript string
	finalized       bool
	adopted         bool

	subs    map[int]func(Snapshot)
	nextSub int
}

// Option configures a [Session].
type Option func(*Session)

// WithLedger replaces the deduplication ledger.
func WithLedger(l *dedup.Ledger) Option {
	return func(s *Session) {
		s.ledger = l
	}
}

// WithGate replaces the echo gate.
func WithGate(g *echo.Gate) Option {
	return func(s *Session) {
		s.gate = g
	}
}

// WithAssembler replaces the transcript assembler.
func WithAssembler(a *transcript.Assembler) Option {
	return func(s *Session) {
		s.assembler = a
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithClock overrides the time source. Useful for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithMetrics sets a metrics sink for fragment accept/reject counters.
// When unset, no metrics are recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// New creates an idle session.
func New(id string, opts ...Option) *Session {
	s := &Session{
		id:       id,
		status:   StatusIdle,
		interims: make(map[interimKey]types.Fragment),
		subs:     make(map[int]func(Snapshot)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.ledger == nil {
		s.ledger = dedup.New()
	}
	if s.gate == nil {
		s.gate = echo.New(0)
	}
	if s.assembler == nil {
		s.assembler = transcript.NewAssembler(0)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// SetStatus transitions the session. Transitions out of a terminal status
// are refused and logged; use [Session.Clear] to reuse a session.
func (s *Session) SetStatus(next Status) {
	s.mu.Lock()
	prev := s.status
	if prev == next {
		s.mu.Unlock()
		return
	}
	if prev.IsTerminal() {
		s.mu.Unlock()
		s.logger.Warn("session: refusing transition out of terminal status",
			"session_id", s.id, "from", prev, "to", next)
		return
	}
	s.status = next
	switch next {
	case StatusActive:
		if s.startedAt.IsZero() {
			s.startedAt = s.now()
		}
	case StatusEnded, StatusFailed:
		s.endedAt = s.now()
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("session: status changed", "session_id", s.id, "from", prev, "to", next)
	s.notify(snap)
}

// Status returns the current lifecycle status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// HandleFragment routes one transcription fragment. Interim fragments
// replace the previous interim for the same (speaker, source) slot; final
// fragments run the acceptance pipeline. Fragments are ignored unless the
// session is active.
func (s *Session) HandleFragment(frag types.Fragment) {
	s.mu.Lock()
	if !s.status.IsActive() {
		s.mu.Unlock()
		s.logger.Debug("session: dropping fragment outside active status",
			"session_id", s.id, "status", s.status, "speaker", frag.Speaker)
		return
	}
	if frag.Start.IsZero() {
		frag.Start = s.now()
	}

	if !frag.Final {
		s.interims[interimKey{frag.Speaker, frag.Source}] = frag
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
		return
	}

	changed := s.acceptFinalLocked(frag)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if changed {
		s.notify(snap)
	}
}

// acceptFinalLocked runs the final-fragment pipeline: echo gate, key
// normalization, ledger check, commit. A final fragment always clears its
// interim slot, even when the fragment itself is rejected. Reports whether
// the snapshot changed.
func (s *Session) acceptFinalLocked(frag types.Fragment) bool {
	key := interimKey{frag.Speaker, frag.Source}
	_, hadInterim := s.interims[key]
	delete(s.interims, key)

	if s.gate.Suppressed(frag.Speaker, frag.Start) {
		s.logger.Debug("session: fragment suppressed",
			"session_id", s.id, "reason", "echo", "speaker", frag.Speaker)
		s.rejected(frag.Speaker, observe.ReasonEcho)
		return hadInterim
	}

	normKey := normalize.Key(frag.Text)
	if normKey == "" {
		s.rejected(frag.Speaker, observe.ReasonEmpty)
		return hadInterim
	}

	hash := dedup.Hash(normKey, frag.Speaker, frag.Start)
	if !s.ledger.ShouldAccept(frag.Speaker, normKey, frag.Start) {
		s.logger.Debug("session: fragment rejected",
			"session_id", s.id, "reason", "duplicate", "speaker", frag.Speaker)
		s.rejected(frag.Speaker, observe.ReasonDuplicate)
		return hadInterim
	}
	s.ledger.Record(frag.Speaker, normKey, frag.Start, hash)
	if s.metrics != nil {
		s.metrics.RecordFragmentCommitted(context.Background(), string(frag.Speaker))
	}

	s.committed = append(s.committed, types.CommittedFragment{
		ID:          uuid.NewString(),
		Text:        normalize.DeduplicateText(frag.Text),
		Speaker:     frag.Speaker,
		Timestamp:   frag.Start,
		Source:      frag.Source,
		ContentHash: hash,
	})
	return true
}

func (s *Session) rejected(speaker types.Speaker, reason string) {
	if s.metrics != nil {
		s.metrics.RecordFragmentRejected(context.Background(), string(speaker), reason)
	}
}

// CounterpartSpeechStart marks the counterpart as speaking, closing the
// echo gate for user fragments.
func (s *Session) CounterpartSpeechStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate.SpeechStart()
}

// CounterpartSpeechStop marks the counterpart as done speaking. User
// fragments stay suppressed for the gate's tail window.
func (s *Session) CounterpartSpeechStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate.SpeechStop(s.now())
}

// Finalize flushes any remaining interims through the acceptance pipeline,
// assembles the transcript, and moves the session to [StatusEnded].
// It is idempotent: repeated calls return the same transcript without
// re-running the pipeline. A transcript adopted via
// [Session.SetFinalTranscript] takes precedence over assembly.
func (s *Session) Finalize() string {
	s.mu.Lock()
	if s.finalized {
		out := s.finalTranscript
		s.mu.Unlock()
		return out
	}

	// Promote leftover interims oldest-first so ledger recency checks see
	// them in wall-clock order.
	pending := make([]types.Fragment, 0, len(s.interims))
	for _, frag := range s.interims {
		pending = append(pending, frag)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Start.Before(pending[j].Start)
	})
	for _, frag := range pending {
		frag.Final = true
		s.acceptFinalLocked(frag)
	}
	s.interims = make(map[interimKey]types.Fragment)

	if !s.adopted {
		s.finalTranscript = s.assemble(s.committed)
	}
	s.finalized = true

	if !s.status.IsTerminal() {
		s.status = StatusEnded
		s.endedAt = s.now()
	}
	out := s.finalTranscript
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return out
}

// assemble renders committed fragments to text, falling back to plain
// concatenation if the assembler panics. Losing paragraph structure is
// better than losing the call record.
func (s *Session) assemble(frags []types.CommittedFragment) (out string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session: assembler panicked, falling back to concatenation",
				"session_id", s.id, "panic", r)
			out = transcript.Concatenate(frags)
		}
	}()
	return s.assembler.Assemble(frags)
}

// SetFinalTranscript adopts a canonical transcript supplied by an external
// system. The adopted text wins over local assembly, including on a later
// [Session.Finalize]. The interim and committed buffers, the ledger, and
// the echo gate are cleared: once a canonical transcript exists, the
// locally accumulated fragments are superseded and must not be persisted
// alongside it.
func (s *Session) SetFinalTranscript(text string) {
	s.mu.Lock()
	s.finalTranscript = text
	s.adopted = true
	s.interims = make(map[interimKey]types.Fragment)
	s.committed = nil
	s.ledger.Reset()
	s.gate.Reset()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// Clear resets all transient state and returns the session to
// [StatusIdle]. Subscribers survive a clear.
func (s *Session) Clear() {
	s.mu.Lock()
	s.status = StatusIdle
	s.startedAt = time.Time{}
	s.endedAt = time.Time{}
	s.interims = make(map[interimKey]types.Fragment)
	s.committed = nil
	s.ledger.Reset()
	s.gate.Reset()
	s.finalTranscript = ""
	s.finalized = false
	s.adopted = false
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// Subscribe registers fn for snapshot updates and synchronously delivers
// the current snapshot. The returned function cancels the subscription.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	snap := s.snapshotLocked()
	s.mu.Unlock()

	fn(snap)
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	interims := make([]types.Fragment, 0, len(s.interims))
	for _, frag := range s.interims {
		interims = append(interims, frag)
	}
	sort.SliceStable(interims, func(i, j int) bool {
		return interims[i].Start.Before(interims[j].Start)
	})

	committed := make([]types.CommittedFragment, len(s.committed))
	copy(committed, s.committed)

	text := s.finalTranscript
	if !s.finalized && !s.adopted {
		text = s.assemble(committed)
	}

	return Snapshot{
		ID:            s.id,
		Status:        s.status,
		Interims:      interims,
		Committed:     committed,
		Transcript:    text,
		ExchangeCount: transcript.ExchangeCount(committed),
		StartedAt:     s.startedAt,
		EndedAt:       s.endedAt,
	}
}

// notify fans a snapshot out to subscribers. Called without the session
// lock held so subscribers may call back into the session.
func (s *Session) notify(snap Snapshot) {
	s.mu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
