package strings

import (
	"strings"
)

// DefaultPreviewLen is the maximum length for single-line previews of
// remote command output in console reporting.
const DefaultPreviewLen = 120

// MinTruncateLen is the smallest usable maxLen; anything shorter leaves
// no room for content plus "...".
const MinTruncateLen = 4

// Preview flattens s to a single line and truncates it to maxLen runes,
// appending "..." when content was cut. Remote command output often
// contains newlines, tabs and runs of spaces; they are all collapsed to
// single spaces so the result fits in one report line.
func Preview(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	// Rune-based slicing so multi-byte output is never cut mid-character.
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
