package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTriggerMatcher(t *testing.T) {
	m := NewTriggerMatcher([]string{"رتبها", " سرد ", "", "compile"})

	tests := []struct {
		text string
		want bool
	}{
		{"@bot رتبها", true},
		{"سرد", true},
		{"please compile.", true},
		{"(compile)", true},
		{"recompile this", false},
		{"compiler", false},
		{"السرد", false},
		{"", false},
		{"nothing here", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Match(tt.text))
		})
	}
}

func TestTriggerMatcher_NoWords(t *testing.T) {
	m := NewTriggerMatcher([]string{" ", ""})
	assert.False(t, m.Match("anything"))
}

func TestTriggerMatcher_QuotesMeta(t *testing.T) {
	m := NewTriggerMatcher([]string{"a+b"})
	assert.True(t, m.Match("try a+b now"))
	assert.False(t, m.Match("try aab now"))
}

func TestRecord_MentionsDID(t *testing.T) {
	rec := &Record{
		Text: "@bot hi #tag",
		Facets: []Facet{
			{ByteStart: 8, ByteEnd: 12, Features: []Feature{{Kind: FeatureTag, Tag: "tag"}}},
			{ByteStart: 0, ByteEnd: 4, Features: []Feature{{Kind: FeatureMention, DID: "did:plc:bot"}}},
		},
	}

	assert.True(t, rec.MentionsDID("did:plc:bot"))
	assert.False(t, rec.MentionsDID("did:plc:other"))
	assert.False(t, rec.MentionsDID(""))

	var nilRec *Record
	assert.False(t, nilRec.MentionsDID("did:plc:bot"))
}

func TestThreadPath(t *testing.T) {
	path := ThreadPath{{URI: "at://a"}, {URI: "at://b"}}

	root, ok := path.Root()
	assert.True(t, ok)
	assert.Equal(t, "at://a", root.URI)

	found, ok := path.Find("at://b")
	assert.True(t, ok)
	assert.Equal(t, "at://b", found.URI)

	_, ok = path.Find("at://c")
	assert.False(t, ok)

	_, ok = ThreadPath(nil).Root()
	assert.False(t, ok)
}

func TestImage_URL(t *testing.T) {
	assert.Equal(t, "thumb", Image{Thumb: "thumb"}.URL())
	assert.Equal(t, "full", Image{Fullsize: "full", Thumb: "thumb"}.URL())
	assert.Equal(t, "re", Image{Fullsize: "full", Rehosted: "re"}.URL())
}

func TestAuthor(t *testing.T) {
	a := Author{DID: "did:plc:x", Handle: "x.test"}
	assert.Equal(t, "x.test", a.Name())
	assert.Equal(t, "x.test", a.Byline())

	a.DisplayName = "X"
	assert.Equal(t, "X", a.Name())

	assert.Equal(t, "did:plc:x", Author{DID: "did:plc:x"}.Byline())
}
