// Package transcript turns a session's committed fragments into the final
// human-readable call transcript.
//
// Assembly is a pure function of its input list: fragments are stably sorted
// by timestamp, defensively deduplicated by content hash, grouped into
// paragraphs on speaker turns and pause gaps, and joined. Keeping it pure
// makes the whole component directly unit-testable and lets the session fall
// back to naive concatenation if anything unexpected happens during
// finalisation.
package transcript

import (
	"sort"
	"strings"
	"time"

	"github.com/pitchline-ai/pitchline/pkg/types"
)

// DefaultPauseGap is the silence between consecutive fragments from the same
// speaker that starts a new paragraph anyway.
const DefaultPauseGap = 3000 * time.Millisecond

// Assembler groups committed fragments into a paragraph transcript.
// The zero value is not usable; construct with [NewAssembler].
type Assembler struct {
	pauseGap time.Duration
}

// NewAssembler creates an Assembler. A non-positive pauseGap falls back to
// [DefaultPauseGap].
func NewAssembler(pauseGap time.Duration) *Assembler {
	if pauseGap <= 0 {
		pauseGap = DefaultPauseGap
	}
	return &Assembler{pauseGap: pauseGap}
}

// Assemble produces the final transcript text from frags.
//
// Fragments are sorted by timestamp (stable, so equal timestamps keep
// insertion order), deduplicated by content hash as a guard against
// out-of-order acceptance, and grouped into paragraphs. A new paragraph
// starts when the speaker changes or when the gap since the previous
// fragment exceeds the pause threshold. Texts within a paragraph are joined
// with single spaces; paragraphs are separated by a blank line.
func (a *Assembler) Assemble(frags []types.CommittedFragment) string {
	if len(frags) == 0 {
		return ""
	}

	ordered := make([]types.CommittedFragment, len(frags))
	copy(ordered, frags)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	seen := make(map[string]struct{}, len(ordered))
	var paragraphs []string
	var current []string
	var prev *types.CommittedFragment

	for i := range ordered {
		f := ordered[i]
		if f.ContentHash != "" {
			if _, dup := seen[f.ContentHash]; dup {
				continue
			}
			seen[f.ContentHash] = struct{}{}
		}
		if f.Text == "" {
			continue
		}

		if prev != nil && (f.Speaker != prev.Speaker || f.Timestamp.Sub(prev.Timestamp) > a.pauseGap) {
			paragraphs = append(paragraphs, strings.Join(current, " "))
			current = current[:0]
		}
		current = append(current, f.Text)
		prev = &ordered[i]
	}

	if len(current) > 0 {
		paragraphs = append(paragraphs, strings.Join(current, " "))
	}

	return strings.Join(paragraphs, "\n\n")
}

// Concatenate is the degraded fallback used when assembly fails: committed
// texts joined in list order with single spaces, no grouping.
func Concatenate(frags []types.CommittedFragment) string {
	parts := make([]string, 0, len(frags))
	for _, f := range frags {
		if f.Text != "" {
			parts = append(parts, f.Text)
		}
	}
	return strings.Join(parts, " ")
}

// ExchangeCount returns the number of speaker turns in frags after ordering
// by timestamp. Used as analysis metadata.
func ExchangeCount(frags []types.CommittedFragment) int {
	if len(frags) == 0 {
		return 0
	}

	ordered := make([]types.CommittedFragment, len(frags))
	copy(ordered, frags)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	count := 1
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Speaker != ordered[i-1].Speaker {
			count++
		}
	}
	return count
}
