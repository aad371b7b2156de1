package domain

// Post is an immutable snapshot of a BlueSky post as fetched for compilation.
type Post struct {
	// URI is the AT-URI of the post (e.g. at://did:plc:abc/app.bsky.feed.post/3l3qo2vuowo2b).
	URI string `json:"uri"`

	// CID is the content identifier of the record. It is passed through
	// untouched when building reply references.
	CID string `json:"cid"`

	Author Author `json:"author"`

	// Text is the UTF-8 post body. Facet offsets index its bytes.
	Text string `json:"text"`

	// Facets are rich-text annotations ordered by ByteStart.
	Facets []Facet `json:"facets,omitempty"`

	// Embed is nil when the post carries no supported embed.
	Embed *Embed `json:"embed,omitempty"`
}

// Author identifies who wrote a post.
type Author struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
}

// Name returns the display name, falling back to the handle.
func (a Author) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Handle
}

// Byline returns the handle, falling back to the DID.
func (a Author) Byline() string {
	if a.Handle != "" {
		return a.Handle
	}
	return a.DID
}

// Facet is a byte-range-addressed annotation on a post's text. The range is
// half-open: [ByteStart, ByteEnd).
type Facet struct {
	ByteStart int       `json:"byteStart"`
	ByteEnd   int       `json:"byteEnd"`
	Features  []Feature `json:"features"`
}

// FeatureKind discriminates the Feature variant.
type FeatureKind string

const (
	FeatureLink    FeatureKind = "link"
	FeatureTag     FeatureKind = "tag"
	FeatureMention FeatureKind = "mention"
)

// Feature is one annotation attached to a facet. Only the field matching
// Kind is meaningful. Kinds this package does not know are preserved so
// renderers can fall through to plain text.
type Feature struct {
	Kind FeatureKind `json:"kind"`

	// URI is set for FeatureLink.
	URI string `json:"uri,omitempty"`

	// Tag is set for FeatureTag, without the leading '#'.
	Tag string `json:"tag,omitempty"`

	// DID is set for FeatureMention.
	DID string `json:"did,omitempty"`
}

// EmbedKind discriminates the Embed variant.
type EmbedKind string

const (
	EmbedImages   EmbedKind = "images"
	EmbedExternal EmbedKind = "external"
)

// Embed is the media attached to a post: either a set of images or an
// external link preview.
type Embed struct {
	Kind     EmbedKind `json:"kind"`
	Images   []Image   `json:"images,omitempty"`
	External *External `json:"external,omitempty"`
}

// Image is one image of an image-set embed.
type Image struct {
	Fullsize string `json:"fullsize,omitempty"`
	Thumb    string `json:"thumb,omitempty"`
	Alt      string `json:"alt,omitempty"`

	// Rehosted is the URL on the destination host, filled in by the caller
	// before compiling. Empty means rehosting was not attempted or failed.
	Rehosted string `json:"rehosted,omitempty"`
}

// Source returns the original image URL, preferring the full size variant.
func (i Image) Source() string {
	if i.Fullsize != "" {
		return i.Fullsize
	}
	return i.Thumb
}

// URL returns the rehosted URL when available, else the original one.
func (i Image) URL() string {
	if i.Rehosted != "" {
		return i.Rehosted
	}
	return i.Source()
}

// External is a link preview card.
type External struct {
	URI         string `json:"uri"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// ThreadPath is the chain of posts from the thread root to the post that
// triggered compilation, root first.
type ThreadPath []Post

// Root returns the first post of the path.
func (p ThreadPath) Root() (Post, bool) {
	if len(p) == 0 {
		return Post{}, false
	}
	return p[0], true
}

// Find returns the post with the given URI.
func (p ThreadPath) Find(uri string) (Post, bool) {
	for _, post := range p {
		if post.URI == uri {
			return post, true
		}
	}
	return Post{}, false
}
