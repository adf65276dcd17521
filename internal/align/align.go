// Package align locates feedback phrases inside a prompt text so callers
// can render highlighted, annotated segments. Matching is deterministic:
// case-insensitive literal substring search, first occurrence only.
package align

import (
	"sort"
	"strings"
)

// Side selects which phrase of a FeedbackItem to search for.
type Side string

const (
	// SideTarget aligns against the target description.
	SideTarget Side = "target"
	// SideUser aligns against the user's submitted prompt.
	SideUser Side = "user"
)

// FeedbackItem is one evaluated parameter of a scored attempt, as returned
// by the scoring collaborator. It is read-only from this package's point of
// view.
type FeedbackItem struct {
	Parameter    string `json:"parameter"`
	TargetPhrase string `json:"target_phrase"`
	UserPhrase   string `json:"user_phrase"`
	Feedback     string `json:"feedback"`
}

// Phrase returns the phrase for the given side.
func (f FeedbackItem) Phrase(side Side) string {
	if side == SideUser {
		return f.UserPhrase
	}
	return f.TargetPhrase
}

// Span is a located, non-overlapping occurrence of an item's phrase.
// Start and End are half-open byte offsets into the source text.
// MatchedText preserves the source casing, which may differ from the phrase.
type Span struct {
	Start       int          `json:"start"`
	End         int          `json:"end"`
	MatchedText string       `json:"matched_text"`
	Item        FeedbackItem `json:"item"`
}

// Align finds the spans for items whose side-selected phrase occurs in text.
//
// Each item contributes at most one span: the first case-insensitive
// occurrence of its phrase. Items with a blank phrase, or whose phrase does
// not occur, are dropped silently. Candidates are sorted by start offset
// (stable, so input order breaks ties) and overlaps are resolved greedily
// left to right: a candidate starting before the previous accepted span's
// end is discarded outright. The result is sorted and pairwise
// non-overlapping.
//
// First-occurrence-only and greedy-discard are intentional: item order
// decides which of two overlapping phrases wins. Do not replace with
// longest-match or multi-occurrence matching.
func Align(text string, items []FeedbackItem, side Side) []Span {
	if text == "" || len(items) == 0 {
		return nil
	}

	haystack := foldASCII(text)

	var spans []Span
	for _, item := range items {
		phrase := item.Phrase(side)
		if strings.TrimSpace(phrase) == "" {
			continue
		}

		idx := strings.Index(haystack, foldASCII(phrase))
		if idx < 0 {
			// Over-generated feedback is normal, not an error.
			continue
		}

		end := idx + len(phrase)
		spans = append(spans, Span{
			Start:       idx,
			End:         end,
			MatchedText: text[idx:end],
			Item:        item,
		})
	}

	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].Start < spans[j].Start
	})

	accepted := spans[:0]
	lastEnd := 0
	for _, s := range spans {
		if s.Start >= lastEnd {
			accepted = append(accepted, s)
			lastEnd = s.End
		}
	}

	if len(accepted) == 0 {
		return nil
	}
	return accepted
}

// foldASCII lowercases A-Z only. Byte length is preserved, so offsets into
// the folded string are valid offsets into the original.
func foldASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		b.WriteByte(c)
	}
	return b.String()
}
