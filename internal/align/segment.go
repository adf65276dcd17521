package align

// Segment is a slice of the source text, either plain or covered by a span.
// Concatenating segment texts in order reconstructs the source exactly.
type Segment struct {
	Text string        `json:"text"`
	Item *FeedbackItem `json:"item,omitempty"`
}

// Highlighted reports whether the segment is covered by a span.
func (s Segment) Highlighted() bool {
	return s.Item != nil
}

// Segments splits text at span boundaries. Spans must be sorted and
// non-overlapping, as produced by Align. Empty plain gaps are omitted.
func Segments(text string, spans []Span) []Segment {
	var segs []Segment
	cur := 0
	for i := range spans {
		s := spans[i]
		if s.Start > cur {
			segs = append(segs, Segment{Text: text[cur:s.Start]})
		}
		item := s.Item
		segs = append(segs, Segment{Text: text[s.Start:s.End], Item: &item})
		cur = s.End
	}
	if cur < len(text) {
		segs = append(segs, Segment{Text: text[cur:]})
	}
	return segs
}
