package bluesky

import (
	"strings"

	"github.com/blackmichael/bluesky-thread2page/internal/domain"
)

const (
	postCollection = "app.bsky.feed.post"

	featureLink    = "app.bsky.richtext.facet#link"
	featureTag     = "app.bsky.richtext.facet#tag"
	featureMention = "app.bsky.richtext.facet#mention"

	embedExternal = "app.bsky.embed.external"
)

// BlobRef represents an AT Protocol blob reference for uploaded content.
type BlobRef struct {
	Type string `json:"$type"`
	Ref  struct {
		Link string `json:"$link"`
	} `json:"ref"`
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`
}

// PostRecord is the record body for app.bsky.feed.post as written by the bot.
type PostRecord struct {
	Type      string           `json:"$type"`
	Text      string           `json:"text"`
	Facets    []Facet          `json:"facets,omitempty"`
	Embed     *ExternalEmbed   `json:"embed,omitempty"`
	Reply     *domain.ReplyRef `json:"reply,omitempty"`
	CreatedAt string           `json:"createdAt"`
}

// Facet is the wire form of a rich-text facet.
type Facet struct {
	Index    FacetIndex     `json:"index"`
	Features []FacetFeature `json:"features"`
}

// FacetIndex is a half-open byte range into the post text.
type FacetIndex struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

// FacetFeature is the wire form of a facet feature; only the field matching
// Type is set.
type FacetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri,omitempty"`
	Tag  string `json:"tag,omitempty"`
	DID  string `json:"did,omitempty"`
}

// ExternalEmbed is an app.bsky.embed.external link card.
type ExternalEmbed struct {
	Type     string            `json:"$type"`
	External ExternalEmbedCard `json:"external"`
}

// ExternalEmbedCard is the card of an external embed.
type ExternalEmbedCard struct {
	URI         string   `json:"uri"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Thumb       *BlobRef `json:"thumb,omitempty"`
}

// NewExternalEmbed returns a link card for uri.
func NewExternalEmbed(uri, title, description string, thumb *BlobRef) *ExternalEmbed {
	return &ExternalEmbed{
		Type: embedExternal,
		External: ExternalEmbedCard{
			URI:         uri,
			Title:       title,
			Description: description,
			Thumb:       thumb,
		},
	}
}

// TextWithHashtag appends " #tag" to text and returns the tag facet that
// points at it. Offsets are byte offsets, as the network expects. A blank tag
// leaves text unchanged and returns no facets.
func TextWithHashtag(text, tag string) (string, []Facet) {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	if tag == "" {
		return text, nil
	}
	start := len(text) + 1
	text += " #" + tag
	return text, []Facet{{
		Index:    FacetIndex{ByteStart: start, ByteEnd: len(text)},
		Features: []FacetFeature{{Type: featureTag, Tag: tag}},
	}}
}

// postRecord is the subset of a post record the bot reads.
type postRecord struct {
	Text   string  `json:"text"`
	Facets []Facet `json:"facets"`
}

func (r *postRecord) toDomain() *domain.Record {
	return &domain.Record{
		Text:   r.Text,
		Facets: FacetsToDomain(r.Facets),
	}
}

// FacetsToDomain converts wire facets, keeping nil distinct from empty so
// callers can tell a record without facets from one that was not returned.
func FacetsToDomain(facets []Facet) []domain.Facet {
	if facets == nil {
		return nil
	}
	out := make([]domain.Facet, 0, len(facets))
	for _, f := range facets {
		df := domain.Facet{
			ByteStart: f.Index.ByteStart,
			ByteEnd:   f.Index.ByteEnd,
		}
		for _, feat := range f.Features {
			df.Features = append(df.Features, featureToDomain(feat))
		}
		out = append(out, df)
	}
	return out
}

func featureToDomain(f FacetFeature) domain.Feature {
	switch f.Type {
	case featureLink:
		return domain.Feature{Kind: domain.FeatureLink, URI: f.URI}
	case featureTag:
		return domain.Feature{Kind: domain.FeatureTag, Tag: f.Tag}
	case featureMention:
		return domain.Feature{Kind: domain.FeatureMention, DID: f.DID}
	default:
		return domain.Feature{Kind: domain.FeatureKind(f.Type)}
	}
}
