// Package compiler turns a reply thread into a Telegraph page: it segments
// post text by facet byte ranges, renders posts to document nodes, sanitizes
// the tree to the host's structural limits and rejects oversized pages.
//
// The compiler is a pure function of its inputs. It performs no I/O and
// holds no mutable state, so one Compiler may be shared across goroutines.
package compiler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/blackmichael/bluesky-thread2page/internal/document"
	"github.com/blackmichael/bluesky-thread2page/internal/domain"
)

const (
	DefaultInterleavedChunkLen = 300
	DefaultPlainChunkLen       = 2000
	DefaultNodeCeiling         = 5000
	DefaultMergeThreshold      = 100
	DefaultMaxContentBytes     = 64 * 1024
	DefaultTitleMaxLen         = 90

	defaultTitle = "Bluesky Thread"
)

// Options configures the compiler's limits. Zero fields take the defaults.
type Options struct {
	// InterleavedChunkLen bounds text runs of a paragraph that also holds links.
	InterleavedChunkLen int `yaml:"interleaved_chunk_len"`

	// PlainChunkLen bounds the text of a paragraph without links.
	PlainChunkLen int `yaml:"plain_chunk_len"`

	// NodeCeiling is the hard per-text-node length enforced by Sanitize.
	NodeCeiling int `yaml:"node_ceiling"`

	// MergeThreshold is the soft length up to which adjacent text nodes are merged.
	MergeThreshold int `yaml:"merge_threshold"`

	// MaxContentBytes is the host's ceiling for the encoded content.
	MaxContentBytes int `yaml:"max_content_bytes"`

	// TitleMaxLen bounds the title derived from the root post, in codepoints.
	TitleMaxLen int `yaml:"title_max_len"`
}

// DefaultOptions returns the limits of the Telegraph API.
func DefaultOptions() Options {
	return Options{
		InterleavedChunkLen: DefaultInterleavedChunkLen,
		PlainChunkLen:       DefaultPlainChunkLen,
		NodeCeiling:         DefaultNodeCeiling,
		MergeThreshold:      DefaultMergeThreshold,
		MaxContentBytes:     DefaultMaxContentBytes,
		TitleMaxLen:         DefaultTitleMaxLen,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.InterleavedChunkLen <= 0 {
		o.InterleavedChunkLen = d.InterleavedChunkLen
	}
	if o.PlainChunkLen <= 0 {
		o.PlainChunkLen = d.PlainChunkLen
	}
	if o.NodeCeiling <= 0 {
		o.NodeCeiling = d.NodeCeiling
	}
	if o.MergeThreshold <= 0 {
		o.MergeThreshold = d.MergeThreshold
	}
	if o.MaxContentBytes <= 0 {
		o.MaxContentBytes = d.MaxContentBytes
	}
	if o.TitleMaxLen <= 0 {
		o.TitleMaxLen = d.TitleMaxLen
	}
	return o
}

// Compiler compiles thread paths into documents.
type Compiler struct {
	opts Options
}

// New creates a Compiler. Zero option fields take their defaults.
func New(opts Options) *Compiler {
	return &Compiler{opts: opts.withDefaults()}
}

// Options returns the effective options.
func (c *Compiler) Options() Options {
	return c.opts
}

// Result is a compiled document together with the problems recovered while
// compiling it.
type Result struct {
	Document document.Document
	Warnings []error
}

// Compile builds the document for path, leaving out the post whose URI is
// excludeURI. It fails with ErrEmptyThread when no post remains and with
// ErrTooLarge when the encoded content exceeds the byte ceiling; no partial
// document is returned in either case.
func (c *Compiler) Compile(path domain.ThreadPath, excludeURI string) (*Result, error) {
	acc := c.Assemble(path, excludeURI)
	if acc.Included == 0 {
		return nil, &EmptyThreadError{Posts: len(path), ExcludeURI: excludeURI}
	}

	content, warnings := c.SanitizeAll(acc.Nodes)
	if len(content) == 0 {
		return nil, &EmptyThreadError{Posts: len(path), ExcludeURI: excludeURI}
	}

	encoded, err := c.Encode(content)
	if err != nil {
		return nil, err
	}

	doc := document.Document{
		Content: content,
		Encoded: encoded,
	}
	if root, ok := path.Root(); ok {
		doc.Title = c.Title(root.Text)
		doc.AuthorName = root.Author.Name()
		doc.AuthorURL = PostWebURL(root.Author.Handle, root.URI)
	} else {
		doc.Title = defaultTitle
	}

	return &Result{
		Document: doc,
		Warnings: append(acc.Warnings, warnings...),
	}, nil
}

// Encode serializes sanitized content to the host's canonical form and
// enforces the byte ceiling.
func (c *Compiler) Encode(content []document.Node) ([]byte, error) {
	encoded, err := document.Encode(content)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	if len(encoded) > c.opts.MaxContentBytes {
		return nil, &SizeError{Size: len(encoded), Limit: c.opts.MaxContentBytes}
	}
	return encoded, nil
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Title derives a page title from text: whitespace collapsed, trimmed and
// capped at TitleMaxLen codepoints.
func (c *Compiler) Title(text string) string {
	text, _, err := repairText(text)
	if err != nil {
		return defaultTitle
	}
	title := strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	if title == "" {
		return defaultTitle
	}
	if utf8.RuneCountInString(title) > c.opts.TitleMaxLen {
		title = strings.TrimSpace(string([]rune(title)[:c.opts.TitleMaxLen]))
	}
	return title
}

var postURIPattern = regexp.MustCompile(`^at://[^/]+/app\.bsky\.feed\.post/([^/]+)$`)

// PostWebURL returns the bsky.app URL of a post, or "" when the handle is
// unknown or uri is not a post URI.
func PostWebURL(handle, uri string) string {
	m := postURIPattern.FindStringSubmatch(uri)
	if handle == "" || m == nil {
		return ""
	}
	return profileURLPrefix + url.PathEscape(handle) + "/post/" + url.PathEscape(m[1])
}
