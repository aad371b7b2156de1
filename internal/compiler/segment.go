package compiler

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/blackmichael/bluesky-thread2page/internal/domain"
)

const (
	hashtagURLPrefix = "https://bsky.app/hashtag/"
	profileURLPrefix = "https://bsky.app/profile/"
)

// Segment is a run of post text, either plain or linked.
type Segment struct {
	Text string

	// Href is the link target; empty for plain segments.
	Href string

	// Kind is the feature that produced the link.
	Kind domain.FeatureKind
}

// IsLink reports whether the segment renders as a link.
func (s Segment) IsLink() bool {
	return s.Href != ""
}

// SegmentText splits text into ordered segments using the facets' byte
// ranges. Facets are trusted to be sorted by ByteStart. A facet with an
// invalid range, including one that cuts through a codepoint of valid UTF-8
// text, is clipped to the text and widened to whole codepoints, then rendered
// as plain text; each such facet is reported in the returned errors as a
// *FacetError.
func SegmentText(text string, facets []domain.Facet) ([]Segment, []error) {
	var (
		segments []Segment
		errs     []error
		last     int
	)
	size := len(text)
	checkRunes := utf8.ValidString(text)
	onBoundary := func(i int) bool {
		return !checkRunes || i == size || utf8.RuneStart(text[i])
	}

	plain := func(start, end int) {
		if start >= end {
			return
		}
		s := normalizeNewlines(text[start:end])
		if start == 0 {
			s = strings.TrimLeftFunc(s, unicode.IsSpace)
		}
		if end == size {
			s = strings.TrimRightFunc(s, unicode.IsSpace)
		}
		if s != "" {
			segments = append(segments, Segment{Text: s})
		}
	}

	for i, f := range facets {
		start, end := f.ByteStart, f.ByteEnd
		valid := start >= last && start < end && end <= size && onBoundary(start) && onBoundary(end)
		if !valid {
			errs = append(errs, &FacetError{Index: i, ByteStart: start, ByteEnd: end, TextLen: size})
			start, end = clamp(start, last, size), clamp(end, last, size)
			for start > last && !onBoundary(start) {
				start--
			}
			for end < size && !onBoundary(end) {
				end++
			}
			if start >= end {
				continue
			}
		}

		plain(last, start)

		seg, linked := resolveFeatures(f.Features)
		if valid && linked {
			seg.Text = strings.TrimSpace(normalizeNewlines(text[start:end]))
			segments = append(segments, seg)
		} else {
			plain(start, end)
		}
		last = end
	}
	plain(last, size)

	return segments, errs
}

// resolveFeatures returns a link segment for the first recognized feature.
func resolveFeatures(features []domain.Feature) (Segment, bool) {
	for _, feat := range features {
		switch feat.Kind {
		case domain.FeatureLink:
			if feat.URI != "" {
				return Segment{Href: feat.URI, Kind: feat.Kind}, true
			}
		case domain.FeatureTag:
			if feat.Tag != "" {
				return Segment{Href: hashtagURLPrefix + url.PathEscape(feat.Tag), Kind: feat.Kind}, true
			}
		case domain.FeatureMention:
			if feat.DID != "" {
				return Segment{Href: profileURLPrefix + url.PathEscape(feat.DID), Kind: feat.Kind}, true
			}
		}
	}
	return Segment{}, false
}

var newlineReplacer = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func normalizeNewlines(s string) string {
	return newlineReplacer.Replace(s)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
