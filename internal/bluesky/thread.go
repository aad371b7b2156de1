package bluesky

import (
	"slices"

	"github.com/blackmichael/bluesky-thread2page/internal/domain"
)

const (
	threadViewPost = "app.bsky.feed.defs#threadViewPost"

	embedImagesView          = "app.bsky.embed.images#view"
	embedExternalView        = "app.bsky.embed.external#view"
	embedRecordWithMediaView = "app.bsky.embed.recordWithMedia#view"
)

// threadView is a node of app.bsky.feed.getPostThread. Parents that are not
// found or blocked carry a different $type and end the walk.
type threadView struct {
	Type   string      `json:"$type"`
	Post   *postView   `json:"post,omitempty"`
	Parent *threadView `json:"parent,omitempty"`
}

type postView struct {
	URI    string     `json:"uri"`
	CID    string     `json:"cid"`
	Author authorView `json:"author"`
	Record postRecord `json:"record"`
	Embed  *embedView `json:"embed,omitempty"`
}

type authorView struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
}

type embedView struct {
	Type     string        `json:"$type"`
	Images   []imageView   `json:"images,omitempty"`
	External *externalView `json:"external,omitempty"`

	// Media is set for recordWithMedia embeds.
	Media *embedView `json:"media,omitempty"`
}

type imageView struct {
	Thumb    string `json:"thumb"`
	Fullsize string `json:"fullsize"`
	Alt      string `json:"alt"`
}

type externalView struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Thumb       string `json:"thumb,omitempty"`
}

// pathToRoot follows parent links from node up to the root and returns the
// posts root first. The walk stops at a non-post node, at a post already
// seen, or after maxPosts posts.
func pathToRoot(node *threadView, maxPosts int) domain.ThreadPath {
	var path domain.ThreadPath
	visited := make(map[string]struct{})

	for node != nil && node.Type == threadViewPost && node.Post != nil {
		if maxPosts > 0 && len(path) >= maxPosts {
			break
		}
		if _, ok := visited[node.Post.URI]; ok {
			break
		}
		visited[node.Post.URI] = struct{}{}

		path = append(path, node.Post.toDomain())
		node = node.Parent
	}

	slices.Reverse(path)
	return path
}

func (p *postView) toDomain() domain.Post {
	return domain.Post{
		URI: p.URI,
		CID: p.CID,
		Author: domain.Author{
			DID:         p.Author.DID,
			Handle:      p.Author.Handle,
			DisplayName: p.Author.DisplayName,
		},
		Text:   p.Record.Text,
		Facets: FacetsToDomain(p.Record.Facets),
		Embed:  p.Embed.toDomain(),
	}
}

func (e *embedView) toDomain() *domain.Embed {
	if e == nil {
		return nil
	}

	switch e.Type {
	case embedImagesView:
		if len(e.Images) == 0 {
			return nil
		}
		images := make([]domain.Image, 0, len(e.Images))
		for _, img := range e.Images {
			images = append(images, domain.Image{
				Fullsize: img.Fullsize,
				Thumb:    img.Thumb,
				Alt:      img.Alt,
			})
		}
		return &domain.Embed{Kind: domain.EmbedImages, Images: images}

	case embedExternalView:
		if e.External == nil || e.External.URI == "" {
			return nil
		}
		return &domain.Embed{
			Kind: domain.EmbedExternal,
			External: &domain.External{
				URI:         e.External.URI,
				Title:       e.External.Title,
				Description: e.External.Description,
			},
		}

	case embedRecordWithMediaView:
		return e.Media.toDomain()

	default:
		return nil
	}
}
