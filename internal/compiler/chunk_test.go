package compiler

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_ShortText(t *testing.T) {
	assert.Equal(t, []string{"hello"}, Chunk("hello", 10, SpaceBreaks))
	assert.Equal(t, []string{""}, Chunk("", 10, SpaceBreaks))
}

func TestChunk_BreaksAtSpace(t *testing.T) {
	word := strings.Repeat("a", 9) + " "
	text := strings.Repeat(word, 250) // 2500 runes

	chunks := Chunk(text, 2000, SpaceBreaks)
	require.Len(t, chunks, 2)

	first := utf8.RuneCountInString(chunks[0])
	assert.GreaterOrEqual(t, first, 1800)
	assert.LessOrEqual(t, first, 2000)
	assert.True(t, strings.HasSuffix(chunks[0], " "), "first chunk should end at a space")
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestChunk_HardCutWithoutBreak(t *testing.T) {
	text := strings.Repeat("x", 25)
	chunks := Chunk(text, 10, SpaceBreaks)
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, chunks)
}

func TestChunk_IgnoresEarlyBreak(t *testing.T) {
	// The only space sits well before the minimum break position.
	text := "ab " + strings.Repeat("x", 30)
	chunks := Chunk(text, 20, SpaceBreaks)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 20, utf8.RuneCountInString(chunks[0]))
}

func TestChunk_RightMostBreakAcrossProfiles(t *testing.T) {
	// '.' at index 18 is right of ' ' at index 17; both are past the 90% mark.
	text := strings.Repeat("x", 17) + " ." + strings.Repeat("y", 10)
	chunks := Chunk(text, 20, SentenceBreaks)
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("x", 17)+" .", chunks[0])
}

func TestChunk_MultiByteSafe(t *testing.T) {
	text := strings.Repeat("سلام عليكم ", 60) + strings.Repeat("😀", 50)

	for _, maxLen := range []int{1, 7, 33, 100, 299} {
		chunks := Chunk(text, maxLen, SentenceBreaks)
		for _, c := range chunks {
			assert.True(t, utf8.ValidString(c), "chunk is not valid UTF-8")
			assert.LessOrEqual(t, utf8.RuneCountInString(c), maxLen)
		}
		assert.Equal(t, text, strings.Join(chunks, ""), "maxLen %d", maxLen)
	}
}

func TestChunk_ArabicComma(t *testing.T) {
	text := strings.Repeat("ب", 18) + "،" + strings.Repeat("ت", 10)
	chunks := Chunk(text, 20, ClauseBreaks)
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasSuffix(chunks[0], "،"))
}

func TestChunk_DisabledForNonPositiveMax(t *testing.T) {
	assert.Equal(t, []string{"abc"}, Chunk("abc", 0, SpaceBreaks))
}
