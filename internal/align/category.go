package align

import "strings"

// Category is the display bucket for a feedback parameter.
type Category string

const (
	CategorySubject     Category = "subject"
	CategoryStyle       Category = "style"
	CategoryComposition Category = "composition"
	CategorySetting     Category = "setting"
	CategoryColor       Category = "color"
	CategoryAction      Category = "action"
	CategoryDetail      Category = "detail"
	CategoryOther       Category = "other"
)

// categoryKeywords is checked in order; the first keyword contained in the
// parameter label wins. An ordered slice, not a map: lookup must be
// deterministic.
var categoryKeywords = []struct {
	keyword  string
	category Category
}{
	{"subject", CategorySubject},
	{"style", CategoryStyle},
	{"composition", CategoryComposition},
	{"setting", CategorySetting},
	{"color", CategoryColor},
	{"action", CategoryAction},
	{"detail", CategoryDetail},
}

// CategoryOf buckets a free-form parameter label. Labels are matched by
// substring containment ("color palette" is CategoryColor); anything
// unrecognized falls back to CategoryOther.
func CategoryOf(parameter string) Category {
	p := strings.ToLower(parameter)
	for _, ck := range categoryKeywords {
		if strings.Contains(p, ck.keyword) {
			return ck.category
		}
	}
	return CategoryOther
}

// Category returns the display bucket for the item's parameter label.
func (f FeedbackItem) Category() Category {
	return CategoryOf(f.Parameter)
}
