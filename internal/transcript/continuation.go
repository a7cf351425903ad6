package transcript

import (
	"strings"
	"unicode"
)

// isContinuationLikely reports whether the last word suggests the speaker is mid-sentence.
func isContinuationLikely(text string) bool {
	w := lastWord(text)
	if w == "" {
		return false
	}
	_, ok := continuationWords[w]
	return ok
}

func lastWord(text string) string {
	fields := strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) && r != '\'' })
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

var continuationWords = map[string]struct{}{
	"and": {}, "or": {}, "but": {}, "plus": {}, "also": {},
	"if": {}, "because": {}, "with": {}, "without": {},
	"um": {}, "uh": {}, "like": {},
	"a": {}, "an": {}, "the": {}, "some": {},
	"to": {}, "of": {}, "for": {}, "on": {}, "in": {}, "at": {},
}
