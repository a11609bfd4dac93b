// Package dedup implements the session-scoped deduplication ledger that
// decides whether a final transcript fragment is admitted to the committed
// list.
//
// Two checks run in order:
//
//  1. Exact duplicate: a stable hash over (comparison key, speaker role,
//     timestamp bucketed to the second). A fragment whose hash was already
//     recorded this session is rejected.
//
//  2. Near duplicate: the last recorded text per role. A fragment whose
//     comparison key is equal — or nearly equal by Jaro-Winkler similarity —
//     to that role's previous fragment within a short time window is
//     rejected. This catches providers that emit the same utterance twice
//     with trailing-word or punctuation drift.
//
// Rejection is a normal outcome, reported via the boolean return and logged
// at debug level only. The ledger never returns errors.
//
// The Ledger is not internally synchronised: it is owned by exactly one
// session, whose mutex serialises all access.
package dedup

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/pitchline-ai/pitchline/pkg/types"
)

const (
	// DefaultWindow is the near-duplicate rejection window.
	DefaultWindow = 2000 * time.Millisecond

	// DefaultSimilarity is the Jaro-Winkler score at or above which two
	// comparison keys are treated as the same utterance. Equal strings
	// score 1.0, so exact near-duplicates are always caught.
	DefaultSimilarity = 0.96

	// DefaultCap bounds the recorded hash set. Once exceeded, the oldest
	// hashes are dropped so arbitrarily long calls stay usable.
	DefaultCap = 100
)

// lastEntry remembers the most recent accepted fragment for one role.
type lastEntry struct {
	key string
	at  time.Time
}

// Ledger tracks committed-fragment hashes and per-role recency for one
// session. Construct with [New]; reuse across calls via [Ledger.Reset].
type Ledger struct {
	window     time.Duration
	similarity float64
	cap        int

	hashes map[string]struct{}
	order  []string // insertion order, for oldest-first pruning
	last   map[types.Speaker]lastEntry
}

// Option configures a [Ledger] during construction.
type Option func(*Ledger)

// WithWindow sets the near-duplicate rejection window. Default 2s.
func WithWindow(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithSimilarity sets the Jaro-Winkler threshold for near-duplicate
// equality. Default 0.96.
func WithSimilarity(s float64) Option {
	return func(l *Ledger) {
		if s > 0 {
			l.similarity = s
		}
	}
}

// WithCap sets the maximum number of recorded hashes. Default 100.
func WithCap(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.cap = n
		}
	}
}

// New creates an empty Ledger with the supplied options.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		window:     DefaultWindow,
		similarity: DefaultSimilarity,
		cap:        DefaultCap,
		hashes:     make(map[string]struct{}),
		last:       make(map[types.Speaker]lastEntry),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Hash computes the stable content hash for a fragment: SHA-1 over the
// comparison key, the role, and the timestamp bucketed to the second.
func Hash(key string, role types.Speaker, at time.Time) string {
	sum := sha1.Sum(fmt.Appendf(nil, "%s|%s|%d", key, role, at.Unix()))
	return hex.EncodeToString(sum[:])
}

// ShouldAccept reports whether a fragment with the given comparison key may
// be committed. It never mutates the ledger; call [Ledger.Record] after the
// fragment is actually committed.
func (l *Ledger) ShouldAccept(role types.Speaker, key string, at time.Time) bool {
	if _, seen := l.hashes[Hash(key, role, at)]; seen {
		slog.Debug("dedup: exact duplicate rejected", "role", role, "text", key)
		return false
	}

	prev, ok := l.last[role]
	if ok && at.Sub(prev.at) < l.window && similar(key, prev.key, l.similarity) {
		slog.Debug("dedup: near duplicate rejected",
			"role", role,
			"text", key,
			"elapsed", at.Sub(prev.at),
		)
		return false
	}

	return true
}

// Record stores an accepted fragment's hash and updates the role's recency
// entry, pruning oldest hashes past the cap.
func (l *Ledger) Record(role types.Speaker, key string, at time.Time, hash string) {
	if _, seen := l.hashes[hash]; !seen {
		l.hashes[hash] = struct{}{}
		l.order = append(l.order, hash)
	}
	l.last[role] = lastEntry{key: key, at: at}
	l.prune()
}

// Len returns the number of recorded hashes. Intended for tests.
func (l *Ledger) Len() int {
	return len(l.hashes)
}

// Reset discards all recorded state so the ledger can serve a new session.
func (l *Ledger) Reset() {
	l.hashes = make(map[string]struct{})
	l.order = nil
	l.last = make(map[types.Speaker]lastEntry)
}

// prune drops oldest hashes until the set is within the cap.
func (l *Ledger) prune() {
	for len(l.order) > l.cap {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.hashes, oldest)
	}
}

// similar reports whether two comparison keys denote the same utterance:
// exact equality or Jaro-Winkler similarity at or above threshold.
func similar(a, b string, threshold float64) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	return matchr.JaroWinkler(a, b, false) >= threshold
}
