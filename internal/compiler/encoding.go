package compiler

import (
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// replacementEncoding decodes UTF-8 with invalid bytes mapped to U+FFFD. A
// decode error makes repairText give up on the text.
var replacementEncoding encoding.Encoding = unicode.UTF8

// repairText returns s unchanged when it is valid UTF-8. Otherwise it makes
// a best-effort conversion: text containing no valid multi-byte sequence is
// taken to be Windows-1252, anything else keeps its valid runes and has each
// invalid byte replaced with U+FFFD. changed reports whether s was modified.
func repairText(s string) (repaired string, changed bool, err error) {
	if utf8.ValidString(s) {
		return s, false, nil
	}

	if !hasMultiByteRune(s) {
		out, err := charmap.Windows1252.NewDecoder().String(s)
		if err == nil && utf8.ValidString(out) {
			return out, true, nil
		}
	}

	out, err := replacementEncoding.NewDecoder().String(s)
	if err != nil {
		return "", true, err
	}
	if !utf8.ValidString(out) {
		return "", true, ErrEncoding
	}
	return out, true, nil
}

func hasMultiByteRune(s string) bool {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r != utf8.RuneError && size > 1 {
			return true
		}
		i += size
	}
	return false
}
