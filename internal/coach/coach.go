// Package coach runs the end-of-call flow: finalize the session, persist
// the call record, analyze the transcript, and store the verdict.
//
// Persistence and analysis are independent of each other and run
// concurrently. A storage failure never blocks analysis and an analysis
// failure never loses the call record; when the analyzer is exhausted the
// call is stored with a degraded placeholder result instead.
package coach

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pitchline-ai/pitchline/internal/observe"
	"github.com/pitchline-ai/pitchline/internal/resilience"
	"github.com/pitchline-ai/pitchline/internal/session"
	"github.com/pitchline-ai/pitchline/pkg/provider/analysis"
	"github.com/pitchline-ai/pitchline/pkg/record"
	"github.com/pitchline-ai/pitchline/pkg/types"
)

// degradedFeedback is stored when every analysis attempt failed. The call
// record itself is always kept; only the verdict is missing.
const degradedFeedback = "Analysis is currently unavailable for this call. The transcript was saved and can be re-analyzed later."

// Report is the outcome of the coaching flow for one call.
type Report struct {
	// Record is the persisted call record.
	Record types.CallRecord

	// Analysis is the coaching verdict. When Degraded is true this is a
	// placeholder, not a real analysis.
	Analysis types.AnalysisResult

	// Degraded is true when all analysis attempts failed.
	Degraded bool
}

// Coach orchestrates finalize, persist and analyze for ended calls.
// All methods are safe for concurrent use.
type Coach struct {
	analyzer analysis.Provider
	store    *record.Guard

	scenario      string
	tags          []string
	providerName  string
	retryAttempts int
	retryBase     time.Duration
	logger        *slog.Logger
	metrics       *observe.Metrics
	clock         func() time.Time
}

// Option configures a [Coach].
type Option func(*Coach)

// WithScenario sets the scenario description passed to the analyzer.
func WithScenario(s string) Option {
	return func(c *Coach) { c.scenario = s }
}

// WithTags sets the tags attached to every saved call record.
func WithTags(tags []string) Option {
	return func(c *Coach) { c.tags = tags }
}

// WithProviderName sets the provider label used in metrics and logs.
func WithProviderName(name string) Option {
	return func(c *Coach) {
		if name != "" {
			c.providerName = name
		}
	}
}

// WithRetry sets the analysis retry policy. Zero values keep the
// [resilience.DefaultAttempts] and [resilience.DefaultBaseDelay] defaults.
func WithRetry(attempts int, base time.Duration) Option {
	return func(c *Coach) {
		c.retryAttempts = attempts
		c.retryBase = base
	}
}

// WithLogger sets the logger. The default is [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Coach) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coach) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Coach) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// New creates a Coach. The analyzer is typically a
// [resilience.AnalysisFallback] wrapping the configured providers; the
// store may be nil to disable persistence entirely.
func New(analyzer analysis.Provider, store *record.Guard, opts ...Option) *Coach {
	c := &Coach{
		analyzer:     analyzer,
		store:        store,
		providerName: "analysis",
		logger:       slog.Default(),
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Finish finalizes the session and runs the full coaching flow. It always
// returns a report for an ended session; the error is non-nil only when the
// context was canceled before the flow completed.
//
// Finish is idempotent in the same sense [session.Session.Finalize] is:
// calling it again re-persists the same record and re-runs analysis.
func (c *Coach) Finish(ctx context.Context, sess *session.Session) (*Report, error) {
	ctx, span := observe.SessionSpan(ctx, "call.finish", sess.ID())
	defer span.End()

	transcript := sess.Finalize()
	snap := sess.Snapshot()

	rec := c.buildRecord(snap, transcript)
	report := &Report{Record: rec}

	var g errgroup.Group

	g.Go(func() error {
		c.persist(ctx, rec)
		return nil
	})

	var result *types.AnalysisResult
	var analyzeErr error
	g.Go(func() error {
		result, analyzeErr = c.analyze(ctx, rec)
		return nil
	})

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}

	if analyzeErr != nil {
		c.logger.Error("analysis failed, storing degraded result",
			"session_id", snap.ID, "provider", c.providerName, "err", analyzeErr)
		result = degradedResult()
		report.Degraded = true
	}
	report.Analysis = *result

	if c.store != nil {
		if err := c.store.SaveAnalysis(ctx, snap.ID, *result); err != nil {
			if errors.Is(err, record.ErrNotFound) {
				c.logger.Warn("analysis not stored, call record missing", "session_id", snap.ID)
			} else {
				c.logger.Warn("analysis not stored", "session_id", snap.ID, "err", err)
			}
		}
	}

	c.metrics.RecordCallFinalized(ctx, string(snap.Status))
	return report, nil
}

// Persist saves a call record through the guard without running analysis.
// Used when a canonical end-of-call transcript replaces the assembled one.
func (c *Coach) Persist(ctx context.Context, rec types.CallRecord) {
	c.persist(ctx, rec)
}

// BuildRecord derives the call record for a session snapshot using the
// coach's configured tags.
func (c *Coach) BuildRecord(snap session.Snapshot) types.CallRecord {
	return c.buildRecord(snap, snap.Transcript)
}

func (c *Coach) buildRecord(snap session.Snapshot, transcript string) types.CallRecord {
	return types.CallRecord{
		SessionID:     snap.ID,
		Transcript:    transcript,
		Fragments:     snap.Committed,
		ExchangeCount: snap.ExchangeCount,
		Tags:          c.tags,
		StartedAt:     snap.StartedAt,
		EndedAt:       snap.EndedAt,
	}
}

// persist writes the record through the guard. The guard swallows storage
// errors, so this never fails the flow.
func (c *Coach) persist(ctx context.Context, rec types.CallRecord) {
	if c.store == nil {
		return
	}
	start := c.clock()
	_ = c.store.SaveCall(ctx, rec)
	c.metrics.PersistDuration.Record(ctx, c.clock().Sub(start).Seconds())
}

// analyze runs the analyzer with bounded retries. Validation failures are
// permanent; an empty call is not going to validate on the next attempt.
func (c *Coach) analyze(ctx context.Context, rec types.CallRecord) (*types.AnalysisResult, error) {
	req := analysis.Request{
		Transcript:    rec.Transcript,
		Scenario:      c.scenario,
		ExchangeCount: rec.ExchangeCount,
	}

	var result *types.AnalysisResult
	start := c.clock()
	err := resilience.Retry(ctx, "analysis", c.retryAttempts, c.retryBase, func(ctx context.Context) error {
		if err := req.Validate(); err != nil {
			return resilience.Permanent(err)
		}
		res, err := c.analyzer.Analyze(ctx, req)
		if err != nil {
			c.metrics.RecordAnalysisError(ctx, c.providerName)
			return err
		}
		result = res
		return nil
	})
	c.metrics.AnalysisDuration.Record(ctx, c.clock().Sub(start).Seconds())
	if err != nil {
		return nil, err
	}
	return result, nil
}

func degradedResult() *types.AnalysisResult {
	return &types.AnalysisResult{
		Score:    0,
		Feedback: degradedFeedback,
	}
}
