// Package document defines the node tree accepted by the Telegraph page API
// and its canonical JSON encoding.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Tags used by the compiler.
const (
	TagParagraph  = "p"
	TagRule       = "hr"
	TagBreak      = "br"
	TagImage      = "img"
	TagFigure     = "figure"
	TagFigcaption = "figcaption"
	TagLink       = "a"
	TagEmphasis   = "em"
	TagStrong     = "strong"
)

var voidTags = map[string]struct{}{
	TagRule:  {},
	TagBreak: {},
	TagImage: {},
}

// IsVoid reports whether tag may never contain children.
func IsVoid(tag string) bool {
	_, ok := voidTags[tag]
	return ok
}

// Node is either a text leaf (Tag == "") or an element.
type Node struct {
	Text     string
	Tag      string
	Attrs    map[string]string
	Children []Node
}

// Text returns a text leaf.
func Text(s string) Node {
	return Node{Text: s}
}

// Element returns an element node. A nil or empty attrs map is omitted.
func Element(tag string, attrs map[string]string, children ...Node) Node {
	if len(attrs) == 0 {
		attrs = nil
	}
	return Node{Tag: tag, Attrs: attrs, Children: children}
}

// IsText reports whether n is a text leaf.
func (n Node) IsText() bool {
	return n.Tag == ""
}

// Len returns the length of a text leaf in codepoints, 0 for elements.
func (n Node) Len() int {
	if !n.IsText() {
		return 0
	}
	return utf8.RuneCountInString(n.Text)
}

// Walk calls fn for n and every descendant, depth first.
func (n Node) Walk(fn func(Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

type elementJSON struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []Node            `json:"children,omitempty"`
}

// MarshalJSON encodes a text leaf as a JSON string and an element as an
// object with optional attrs and children.
func (n Node) MarshalJSON() ([]byte, error) {
	if n.IsText() {
		return marshalNoEscape(n.Text)
	}
	return marshalNoEscape(elementJSON{Tag: n.Tag, Attrs: n.Attrs, Children: n.Children})
}

// UnmarshalJSON decodes either form produced by MarshalJSON.
func (n *Node) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Text(s)
		return nil
	}

	var el elementJSON
	if err := json.Unmarshal(data, &el); err != nil {
		return fmt.Errorf("unmarshal element: %w", err)
	}
	if el.Tag == "" {
		return fmt.Errorf("element without tag")
	}
	*n = Element(el.Tag, el.Attrs, el.Children...)
	return nil
}

// Encode returns the canonical encoding of a node sequence: compact JSON
// without HTML escaping.
func Encode(nodes []Node) ([]byte, error) {
	if nodes == nil {
		nodes = []Node{}
	}
	return marshalNoEscape(nodes)
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
