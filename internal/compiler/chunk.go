package compiler

import "unicode/utf8"

// Break character profiles.
var (
	// SentenceBreaks is used when chunking rendered text interleaved with
	// links.
	SentenceBreaks = []rune{' ', '،', '.', '-', ':', ';', '!', '?'}

	// ClauseBreaks is used when chunking a paragraph of plain text.
	ClauseBreaks = []rune{' ', '،', '.', '-', ':', ';'}

	// SpaceBreaks is used by the sanitizer's safety re-chunk.
	SpaceBreaks = []rune{' '}
)

// minBreakRatio is the fraction of maxLen before which a break point is not
// accepted.
const minBreakRatio = 0.9

// Chunk splits text into pieces of at most maxLen codepoints. Each cut is
// made right after the right-most break character found in the last tenth
// of the window, or at exactly maxLen codepoints when there is none. The
// pieces concatenate back to text. A maxLen below 1 disables chunking.
func Chunk(text string, maxLen int, breaks []rune) []string {
	if maxLen < 1 || utf8.RuneCountInString(text) <= maxLen {
		return []string{text}
	}

	minBreak := int(float64(maxLen) * minBreakRatio)
	if minBreak < 1 {
		minBreak = 1
	}

	remaining := []rune(text)
	var chunks []string
	for len(remaining) > maxLen {
		window := remaining[:maxLen]
		cut := maxLen
		if pos := lastBreak(window, breaks); pos >= minBreak {
			cut = pos + 1
		}
		chunks = append(chunks, string(remaining[:cut]))
		remaining = remaining[cut:]
	}
	if len(remaining) > 0 {
		chunks = append(chunks, string(remaining))
	}
	return chunks
}

// lastBreak returns the index of the right-most rune of window that is one
// of breaks, or -1.
func lastBreak(window []rune, breaks []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		for _, b := range breaks {
			if window[i] == b {
				return i
			}
		}
	}
	return -1
}
