// Package rehost copies thread images onto the document host so pages do not
// depend on the origin network's CDN.
package rehost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/blackmichael/bluesky-thread2page/internal/domain"
)

const (
	userAgent    = "Mozilla/5.0 (compatible; Thread2PageBot/1.0)"
	maxImageSize = 10 << 20
)

var (
	// ErrNotImage is returned when a URL does not serve an image.
	ErrNotImage = errors.New("not an image")

	// ErrTooBig is returned when an image exceeds the download limit.
	ErrTooBig = errors.New("image too large")
)

// Uploader stores image bytes on the document host and returns the URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, contentType, filename string) (string, error)
}

// Cache remembers which source URLs were already rehosted.
type Cache interface {
	Get(ctx context.Context, source string) (string, bool, error)
	Set(ctx context.Context, source, rehosted string) error
}

// Image is a downloaded image.
type Image struct {
	Data        []byte
	ContentType string
}

// Rehoster downloads images and re-uploads them to the document host.
type Rehoster struct {
	httpClient *http.Client
	uploader   Uploader
	cache      Cache
	logger     *slog.Logger
}

// New creates a Rehoster. cache may be nil.
func New(uploader Uploader, cache Cache, logger *slog.Logger) *Rehoster {
	return &Rehoster{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		uploader: uploader,
		cache:    cache,
		logger:   logger,
	}
}

// Fetch downloads the image at src.
func (r *Rehoster) Fetch(ctx context.Context, src string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: HTTP status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: %q", ErrNotImage, contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageSize {
		return nil, ErrTooBig
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("download image: empty body")
	}

	return &Image{Data: data, ContentType: contentType}, nil
}

// Rehost returns the document-host URL of the image at src, uploading it if
// it is not cached yet.
func (r *Rehoster) Rehost(ctx context.Context, src string) (string, error) {
	if r.cache != nil {
		rehosted, ok, err := r.cache.Get(ctx, src)
		if err != nil {
			r.logger.Warn("rehost cache lookup failed", "src", src, "error", err)
		} else if ok {
			return rehosted, nil
		}
	}

	img, err := r.Fetch(ctx, src)
	if err != nil {
		return "", err
	}

	rehosted, err := r.uploader.Upload(ctx, img.Data, img.ContentType, filenameOf(src))
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, src, rehosted); err != nil {
			r.logger.Warn("rehost cache store failed", "src", src, "error", err)
		}
	}
	return rehosted, nil
}

// RehostPath returns a copy of path whose images carry their rehosted URL.
// An image that fails to rehost keeps an empty Rehosted field, so the
// compiler falls back to the original URL.
func (r *Rehoster) RehostPath(ctx context.Context, path domain.ThreadPath) domain.ThreadPath {
	out := make(domain.ThreadPath, len(path))
	for i, post := range path {
		out[i] = post
		if post.Embed == nil || post.Embed.Kind != domain.EmbedImages {
			continue
		}

		embed := *post.Embed
		embed.Images = make([]domain.Image, len(post.Embed.Images))
		for j, img := range post.Embed.Images {
			embed.Images[j] = img
			src := img.Source()
			if src == "" || img.Rehosted != "" {
				continue
			}
			rehosted, err := r.Rehost(ctx, src)
			if err != nil {
				r.logger.Warn("failed to rehost image, using original", "post", post.URI, "src", src, "error", err)
				continue
			}
			embed.Images[j].Rehosted = rehosted
		}
		out[i].Embed = &embed
	}
	return out
}

// filenameOf derives an upload filename from an image URL. CDN URLs often end
// in "@jpeg", which is turned into an extension.
func filenameOf(src string) string {
	name := src
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Replace(name, "@", ".", 1)
	if name == "" {
		return "image"
	}
	return name
}
