package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultNoteLimit caps free-text notes in runes.
const DefaultNoteLimit = 1000

// Sanitizer strips markup and control characters from free text such as
// status notes and discount reasons.
type Sanitizer struct {
	policy *bluemonday.Policy
	limit  int
}

// NewSanitizer builds a Sanitizer that keeps at most limit runes. A non-positive
// limit uses DefaultNoteLimit.
func NewSanitizer(limit int) *Sanitizer {
	if limit <= 0 {
		limit = DefaultNoteLimit
	}
	return &Sanitizer{policy: bluemonday.StrictPolicy(), limit: limit}
}

// Clean returns plain text with tags removed, whitespace runs collapsed and
// entities decoded.
func (s *Sanitizer) Clean(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	stripped := html.UnescapeString(s.policy.Sanitize(value))

	var b strings.Builder
	b.Grow(len(stripped))
	count := 0
	space := false
	for _, r := range stripped {
		if count >= s.limit {
			break
		}
		if unicode.IsSpace(r) {
			space = b.Len() > 0
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if space {
			b.WriteByte(' ')
			count++
			space = false
			if count >= s.limit {
				break
			}
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}
