package compiler

import (
	"unicode/utf8"

	"github.com/blackmichael/bluesky-thread2page/internal/document"
)

const placeholder = " "

// Sanitize normalizes a node bottom-up. It returns no node when n sanitizes
// to nothing, one node in the common case, and several text nodes when an
// over-long text was re-chunked; callers splice the result in place of n.
//
// After sanitization the tree has no empty text nodes, no break elements,
// no empty attrs maps, no void element with children, no adjacent text nodes
// whose combined length fits the merge threshold, and no childless non-void
// element other than a paragraph holding a single space.
func (c *Compiler) Sanitize(n document.Node) ([]document.Node, []error) {
	var warnings []error
	out := c.sanitize(n, &warnings)
	return out, warnings
}

// SanitizeAll sanitizes a node sequence, splicing the results in order.
func (c *Compiler) SanitizeAll(nodes []document.Node) ([]document.Node, []error) {
	var (
		out      []document.Node
		warnings []error
	)
	for _, n := range nodes {
		out = append(out, c.sanitize(n, &warnings)...)
	}
	return out, warnings
}

func (c *Compiler) sanitize(n document.Node, warnings *[]error) []document.Node {
	if n.IsText() {
		return c.sanitizeText(n.Text, warnings)
	}

	if n.Tag == document.TagBreak {
		return nil
	}

	cleaned := document.Element(n.Tag, n.Attrs)
	if document.IsVoid(n.Tag) {
		return []document.Node{cleaned}
	}

	var children []document.Node
	for _, child := range n.Children {
		if !child.IsText() && child.Tag == document.TagBreak {
			continue
		}
		children = append(children, c.sanitize(child, warnings)...)
	}
	children = c.mergeText(children)

	if len(children) == 0 {
		if n.Tag != document.TagParagraph {
			return nil
		}
		children = []document.Node{document.Text(placeholder)}
	}
	cleaned.Children = children
	return []document.Node{cleaned}
}

func (c *Compiler) sanitizeText(text string, warnings *[]error) []document.Node {
	if text == "" {
		return nil
	}
	text, ok := repairPiece(text, "", warnings)
	if !ok || text == "" {
		return nil
	}

	if utf8.RuneCountInString(text) <= c.opts.NodeCeiling {
		return []document.Node{document.Text(text)}
	}
	var out []document.Node
	for _, chunk := range Chunk(text, c.opts.NodeCeiling, SpaceBreaks) {
		if chunk != "" {
			out = append(out, document.Text(chunk))
		}
	}
	return out
}

// mergeText joins runs of adjacent text nodes while the merged length stays
// within the merge threshold. A run that already exceeds it is flushed
// before the next text node starts a new run.
func (c *Compiler) mergeText(children []document.Node) []document.Node {
	var (
		merged  []document.Node
		current string
		curLen  int
	)
	flush := func() {
		if current != "" {
			merged = append(merged, document.Text(current))
		}
		current, curLen = "", 0
	}

	for _, child := range children {
		if !child.IsText() {
			flush()
			merged = append(merged, child)
			continue
		}
		childLen := child.Len()
		if curLen > c.opts.MergeThreshold || curLen+childLen > c.opts.MergeThreshold {
			flush()
		}
		current += child.Text
		curLen += childLen
	}
	flush()
	return merged
}
