package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pitchline-ai/pitchline/internal/coach"
	"github.com/pitchline-ai/pitchline/internal/config"
	"github.com/pitchline-ai/pitchline/internal/dedup"
	"github.com/pitchline-ai/pitchline/internal/echo"
	"github.com/pitchline-ai/pitchline/internal/observe"
	"github.com/pitchline-ai/pitchline/internal/router"
	"github.com/pitchline-ai/pitchline/internal/session"
	"github.com/pitchline-ai/pitchline/internal/transcript"
	"github.com/pitchline-ai/pitchline/pkg/provider/voice"
	"github.com/pitchline-ai/pitchline/pkg/record"
)

// ErrCallActive is returned by Start when a call is already running.
var ErrCallActive = errors.New("app: a call is already active")

// ErrNoActiveCall is returned by End when nothing is running.
var ErrNoActiveCall = errors.New("app: no active call")

// ErrUnknownCall is returned by AdoptTranscript for a session id that is
// neither live nor stored.
var ErrUnknownCall = errors.New("app: unknown call")

// DialFunc opens a voice event stream for a vendor call id.
type DialFunc func(ctx context.Context, callID string) (voice.Client, error)

// CallManager runs the lifecycle of live calls. One call is active at a
// time; starting a second one fails with [ErrCallActive].
//
// Each call gets its own session, router, and a single pump goroutine that
// drains the voice client's event stream, so events apply in wire order.
// All methods are safe for concurrent use.
type CallManager struct {
	dial    DialFunc
	coach   *coach.Coach
	store   *record.Guard
	tuning  config.SessionConfig
	logger  *slog.Logger
	metrics *observe.Metrics

	mu      sync.Mutex
	current *liveCall
}

type liveCall struct {
	id     string
	sess   *session.Session
	client voice.Client

	// done closes when the pump goroutine has drained the stream and the
	// coaching flow finished.
	done chan struct{}

	finishOnce sync.Once
	report     *coach.Report
	finishErr  error
}

// NewCallManager creates a manager. The store may be nil to disable
// stored-call transcript adoption. The tuning block applies to every call
// started after a change takes effect; running calls keep their values.
func NewCallManager(dial DialFunc, c *coach.Coach, store *record.Guard, tuning config.SessionConfig, logger *slog.Logger, metrics *observe.Metrics) *CallManager {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &CallManager{
		dial:    dial,
		coach:   c,
		store:   store,
		tuning:  tuning,
		logger:  logger,
		metrics: metrics,
	}
}

// SetTuning replaces the session tuning used for future calls.
func (m *CallManager) SetTuning(tuning config.SessionConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tuning = tuning
}

// Start dials the voice vendor for callID and begins pumping its event
// stream into a fresh session. The session becomes active when the vendor
// reports call start.
func (m *CallManager) Start(ctx context.Context, callID string) error {
	m.mu.Lock()
	if m.current != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w (session_id=%s)", ErrCallActive, m.current.id)
	}
	tuning := m.tuning
	m.mu.Unlock()

	sess := m.newSession(callID, tuning)
	sess.SetStatus(session.StatusConnecting)

	client, err := m.dial(ctx, callID)
	if err == nil {
		err = client.Open(ctx)
	}
	if err != nil {
		sess.SetStatus(session.StatusFailed)
		m.metrics.RecordCallFinalized(ctx, string(session.StatusFailed))
		return fmt.Errorf("app: open voice stream for call %q: %w", callID, err)
	}

	ropts := []router.Option{
		router.WithLogger(m.logger),
		router.WithMetrics(m.metrics),
	}
	if len(tuning.LeakPhrases) > 0 {
		ropts = append(ropts, router.WithLeakPhrases(tuning.LeakPhrases))
	}
	r := router.New(sess, ropts...)

	call := &liveCall{
		id:     callID,
		sess:   sess,
		client: client,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	if m.current != nil {
		m.mu.Unlock()
		_ = client.Close()
		return fmt.Errorf("%w (session_id=%s)", ErrCallActive, m.current.id)
	}
	m.current = call
	m.mu.Unlock()

	m.metrics.ActiveCalls.Add(ctx, 1)
	m.logger.Info("call started", "session_id", callID)

	go m.pump(call, r)
	return nil
}

// pump drains the event stream and runs the coaching flow when it ends.
func (m *CallManager) pump(call *liveCall, r *router.Router) {
	for ev := range call.client.Events() {
		r.Route(ev)
	}
	m.finish(call)

	m.mu.Lock()
	if m.current == call {
		m.current = nil
	}
	m.mu.Unlock()

	m.metrics.ActiveCalls.Add(context.Background(), -1)
	close(call.done)
}

func (m *CallManager) finish(call *liveCall) {
	call.finishOnce.Do(func() {
		report, err := m.coach.Finish(context.Background(), call.sess)
		call.report = report
		call.finishErr = err
		if err != nil {
			m.logger.Error("coaching flow failed", "session_id", call.id, "err", err)
			return
		}
		m.logger.Info("call finished",
			"session_id", call.id,
			"exchanges", report.Record.ExchangeCount,
			"score", report.Analysis.Score,
			"degraded", report.Degraded,
		)
	})
}

// End closes the active call's stream and blocks until the coaching flow
// completes or ctx expires. On success it returns the coaching report.
func (m *CallManager) End(ctx context.Context) (*coach.Report, error) {
	m.mu.Lock()
	call := m.current
	m.mu.Unlock()
	if call == nil {
		return nil, ErrNoActiveCall
	}

	if err := call.client.Close(); err != nil {
		m.logger.Warn("voice client close error", "session_id", call.id, "err", err)
	}

	select {
	case <-call.done:
	case <-ctx.Done():
		return nil, fmt.Errorf("app: waiting for call %q to finish: %w", call.id, ctx.Err())
	}

	if call.finishErr != nil {
		return nil, call.finishErr
	}
	return call.report, nil
}

// AdoptTranscript applies the vendor's canonical end-of-call transcript to
// a session. A live call adopts it directly; an already-stored call has
// its record updated. Unknown ids return [ErrUnknownCall].
func (m *CallManager) AdoptTranscript(ctx context.Context, sessionID, text string) error {
	m.mu.Lock()
	call := m.current
	m.mu.Unlock()

	if call != nil && call.id == sessionID {
		call.sess.SetFinalTranscript(text)
		m.coach.Persist(ctx, m.coach.BuildRecord(call.sess.Snapshot()))
		return nil
	}

	return m.adoptStored(ctx, sessionID, text)
}

// adoptStored rewrites the transcript of an already persisted call.
func (m *CallManager) adoptStored(ctx context.Context, sessionID, text string) error {
	if m.store == nil {
		return ErrUnknownCall
	}
	rec, err := m.store.GetCall(ctx, sessionID)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownCall, sessionID)
		}
		return fmt.Errorf("app: load call %q: %w", sessionID, err)
	}
	rec.Transcript = text
	rec.Fragments = nil
	m.coach.Persist(ctx, *rec)
	return nil
}

// Active returns a snapshot of the running call, if any.
func (m *CallManager) Active() (session.Snapshot, bool) {
	m.mu.Lock()
	call := m.current
	m.mu.Unlock()
	if call == nil {
		return session.Snapshot{}, false
	}
	return call.sess.Snapshot(), true
}

// Shutdown ends any running call, waiting up to ctx for the coaching flow.
func (m *CallManager) Shutdown(ctx context.Context) error {
	_, err := m.End(ctx)
	if errors.Is(err, ErrNoActiveCall) {
		return nil
	}
	return err
}

func (m *CallManager) newSession(id string, tuning config.SessionConfig) *session.Session {
	var ledgerOpts []dedup.Option
	if tuning.NearDupWindow > 0 {
		ledgerOpts = append(ledgerOpts, dedup.WithWindow(tuning.NearDupWindow.Std()))
	}
	if tuning.Similarity > 0 {
		ledgerOpts = append(ledgerOpts, dedup.WithSimilarity(tuning.Similarity))
	}
	if tuning.DedupCap > 0 {
		ledgerOpts = append(ledgerOpts, dedup.WithCap(tuning.DedupCap))
	}

	return session.New(id,
		session.WithLedger(dedup.New(ledgerOpts...)),
		session.WithGate(echo.New(tuning.EchoTail.Std())),
		session.WithAssembler(transcript.NewAssembler(tuning.PauseGap.Std())),
		session.WithLogger(m.logger),
		session.WithMetrics(m.metrics),
	)
}
