package compiler

import (
	"errors"

	"github.com/blackmichael/bluesky-thread2page/internal/document"
	"github.com/blackmichael/bluesky-thread2page/internal/domain"
)

// Assembly is the running state threaded through rendering. Each render call
// takes the previous Assembly and returns the next one.
type Assembly struct {
	Nodes []document.Node

	// Included counts the posts rendered so far.
	Included int

	// Warnings collects recovered problems (malformed facets, re-encoded or
	// dropped text).
	Warnings []error
}

// Render appends the nodes for one post: a separator rule unless it is the
// first included post, the text paragraph, the author byline, and any embed.
func (c *Compiler) Render(post domain.Post, acc Assembly) Assembly {
	if acc.Included > 0 {
		acc.Nodes = append(acc.Nodes, document.Element(document.TagRule, nil))
	}

	paragraph, warnings := c.renderParagraph(post)
	acc.Nodes = append(acc.Nodes, paragraph)
	acc.Warnings = append(acc.Warnings, warnings...)

	if byline := post.Author.Byline(); byline != "" && post.Text != "" {
		acc.Nodes = append(acc.Nodes, document.Element(document.TagParagraph,
			map[string]string{"dir": "ltr"},
			document.Element(document.TagEmphasis, nil, document.Text("— ")),
			document.Element(document.TagStrong, nil, document.Text("@"+byline)),
		))
	}

	acc.Nodes = append(acc.Nodes, renderEmbed(post.Embed)...)
	acc.Included++
	return acc
}

// piece is a coalesced run of a paragraph: plain text, or a single link.
type piece struct {
	text string
	href string
}

func (c *Compiler) renderParagraph(post domain.Post) (document.Node, []error) {
	segments, warnings := SegmentText(post.Text, post.Facets)
	for _, w := range warnings {
		var fe *FacetError
		if errors.As(w, &fe) {
			fe.PostURI = post.URI
		}
	}

	var (
		pieces   []piece
		hasLinks bool
	)
	for _, seg := range segments {
		if seg.IsLink() {
			hasLinks = true
			pieces = append(pieces, piece{text: seg.Text, href: seg.Href})
			continue
		}
		if n := len(pieces); n > 0 && pieces[n-1].href == "" {
			pieces[n-1].text += seg.Text
			continue
		}
		pieces = append(pieces, piece{text: seg.Text})
	}

	maxLen, breaks := c.opts.PlainChunkLen, ClauseBreaks
	if hasLinks {
		maxLen, breaks = c.opts.InterleavedChunkLen, SentenceBreaks
	}

	var children []document.Node
	for _, p := range pieces {
		text, ok := repairPiece(p.text, post.URI, &warnings)
		if !ok {
			continue
		}
		if p.href != "" {
			children = append(children, document.Element(document.TagLink,
				map[string]string{"href": p.href}, document.Text(text)))
			continue
		}
		for _, chunk := range Chunk(text, maxLen, breaks) {
			if chunk != "" {
				children = append(children, document.Text(chunk))
			}
		}
	}

	return document.Element(document.TagParagraph, nil, children...), warnings
}

// repairPiece re-encodes invalid text, recording what happened in warnings. It
// returns false when the text must be dropped.
func repairPiece(text, postURI string, warnings *[]error) (string, bool) {
	repaired, changed, err := repairText(text)
	if err != nil {
		*warnings = append(*warnings, &EncodingError{PostURI: postURI, Dropped: true, Err: err})
		return "", false
	}
	if changed {
		*warnings = append(*warnings, &EncodingError{PostURI: postURI})
	}
	return repaired, true
}

func renderEmbed(embed *domain.Embed) []document.Node {
	if embed == nil {
		return nil
	}

	var nodes []document.Node
	switch embed.Kind {
	case domain.EmbedImages:
		for _, img := range embed.Images {
			src := img.URL()
			if src == "" {
				continue
			}
			children := []document.Node{
				document.Element(document.TagImage, map[string]string{"src": src}),
			}
			if img.Alt != "" {
				children = append(children, document.Element(document.TagFigcaption, nil, document.Text(img.Alt)))
			}
			nodes = append(nodes, document.Element(document.TagFigure, nil, children...))
		}
	case domain.EmbedExternal:
		ext := embed.External
		if ext == nil || ext.URI == "" {
			return nil
		}
		label := ext.Title
		if label == "" {
			label = ext.URI
		}
		nodes = append(nodes, document.Element(document.TagParagraph, nil,
			document.Element(document.TagLink, map[string]string{"href": ext.URI}, document.Text(label)),
		))
	}
	return nodes
}
