package compiler

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFacet marks a facet whose byte range is outside the text,
	// empty, or overlapping the previous facet. It is recovered locally.
	ErrMalformedFacet = errors.New("malformed facet")

	// ErrEmptyThread is returned when no post remains after exclusion.
	ErrEmptyThread = errors.New("empty thread")

	// ErrTooLarge is returned when the encoded content exceeds the host's
	// byte ceiling. Nothing is published in that case.
	ErrTooLarge = errors.New("document too large")

	// ErrEncoding marks text that is not valid UTF-8. It is recovered by
	// re-encoding, or by dropping the text when that fails.
	ErrEncoding = errors.New("invalid text encoding")
)

// FacetError describes a malformed facet of a post.
type FacetError struct {
	PostURI   string
	Index     int
	ByteStart int
	ByteEnd   int
	TextLen   int
}

func (e *FacetError) Error() string {
	return fmt.Sprintf("post %s: facet %d [%d,%d) in text of %d bytes: %s",
		e.PostURI, e.Index, e.ByteStart, e.ByteEnd, e.TextLen, ErrMalformedFacet)
}

func (e *FacetError) Unwrap() error { return ErrMalformedFacet }

// EncodingError describes a text node that had to be re-encoded or dropped.
// PostURI is empty for text that is not tied to one post.
type EncodingError struct {
	PostURI string
	Dropped bool
	Err     error
}

func (e *EncodingError) Error() string {
	where := "text"
	if e.PostURI != "" {
		where = "post " + e.PostURI + ": text"
	}
	if e.Dropped {
		return fmt.Sprintf("%s: %s dropped: %v", ErrEncoding, where, e.Err)
	}
	return fmt.Sprintf("%s: %s re-encoded", ErrEncoding, where)
}

func (e *EncodingError) Unwrap() error { return ErrEncoding }

// EmptyThreadError reports which thread came out empty.
type EmptyThreadError struct {
	Posts      int
	ExcludeURI string
}

func (e *EmptyThreadError) Error() string {
	return fmt.Sprintf("%s: %d posts, excluded %q", ErrEmptyThread, e.Posts, e.ExcludeURI)
}

func (e *EmptyThreadError) Unwrap() error { return ErrEmptyThread }

// SizeError reports the encoded size of a rejected document.
type SizeError struct {
	Size  int
	Limit int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s: %d bytes exceeds limit of %d", ErrTooLarge, e.Size, e.Limit)
}

func (e *SizeError) Unwrap() error { return ErrTooLarge }
