package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/blackmichael/bluesky-thread2page/internal/domain"
)

var errDecode = errors.New("decoder failed")

type failingTransformer struct{ transform.NopResetter }

func (failingTransformer) Transform(_, _ []byte, _ bool) (int, int, error) {
	return 0, 0, errDecode
}

type failingEncoding struct{}

func (failingEncoding) NewDecoder() *encoding.Decoder {
	return &encoding.Decoder{Transformer: failingTransformer{}}
}

func (failingEncoding) NewEncoder() *encoding.Encoder {
	return &encoding.Encoder{Transformer: failingTransformer{}}
}

func withFailingDecoder(t *testing.T) {
	t.Helper()
	prev := replacementEncoding
	replacementEncoding = failingEncoding{}
	t.Cleanup(func() { replacementEncoding = prev })
}

func TestRepairText(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		want        string
		wantChanged bool
	}{
		{name: "valid", in: "café", want: "café"},
		{name: "windows-1252", in: "caf\xe9", want: "café", wantChanged: true},
		{name: "mixed keeps valid runes", in: "é\xff", want: "é�", wantChanged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed, err := repairText(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantChanged, changed)
		})
	}
}

func TestRepairText_DecoderFailure(t *testing.T) {
	withFailingDecoder(t)

	_, _, err := repairText("é\xff")
	assert.ErrorIs(t, err, errDecode)

	// Valid text never reaches the decoder.
	got, changed, err := repairText("café")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "café", got)
}

func TestCompile_UnrepairableTextDropped(t *testing.T) {
	withFailingDecoder(t)

	c := New(Options{})
	root := post("1", "alice", "é\xff")
	res, err := c.Compile(domain.ThreadPath{root}, "")
	require.NoError(t, err)

	assert.Equal(t, p(txt(" ")), res.Document.Content[0])
	require.Len(t, res.Warnings, 1)

	var ee *EncodingError
	require.True(t, errors.As(res.Warnings[0], &ee))
	assert.True(t, ee.Dropped)
	assert.Equal(t, root.URI, ee.PostURI)
	assert.ErrorIs(t, ee.Err, errDecode)
	assert.Contains(t, ee.Error(), root.URI)
}
