// Package telegraph is a client for the Telegraph publishing API and its
// image upload endpoint.
package telegraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blackmichael/bluesky-thread2page/internal/document"
)

const (
	DefaultAPIURL    = "https://api.telegra.ph"
	DefaultUploadURL = "https://telegra.ph/upload"

	siteURL = "https://telegra.ph"

	maxTitleRunes      = 256
	maxAuthorNameBytes = 128
	maxAuthorURLBytes  = 512
)

// Client talks to the Telegraph API.
type Client struct {
	apiURL     string
	uploadURL  string
	httpClient *http.Client
}

// NewClient creates a Telegraph client. Empty URLs take the public defaults.
func NewClient(apiURL, uploadURL string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if uploadURL == "" {
		uploadURL = DefaultUploadURL
	}
	return &Client{
		apiURL:    strings.TrimRight(apiURL, "/"),
		uploadURL: uploadURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Account is a Telegraph account.
type Account struct {
	ShortName   string `json:"short_name"`
	AuthorName  string `json:"author_name"`
	AuthorURL   string `json:"author_url"`
	AccessToken string `json:"access_token"`
}

// Page is a published Telegraph page.
type Page struct {
	Path        string          `json:"path"`
	URL         string          `json:"url"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url,omitempty"`
	Content     []document.Node `json:"content,omitempty"`
}

// FirstImage returns the absolute URL of the first image of the page
// content, falling back to the page's preview image.
func (p *Page) FirstImage() string {
	if src := document.FirstImage(p.Content); src != "" {
		return absoluteURL(src)
	}
	if p.ImageURL != "" {
		return absoluteURL(p.ImageURL)
	}
	return ""
}

// CreateAccount creates an anonymous account and returns its access token.
func (c *Client) CreateAccount(ctx context.Context, shortName, authorName, authorURL string) (*Account, error) {
	form := url.Values{}
	form.Set("short_name", shortName)
	form.Set("author_name", authorName)
	if authorURL != "" {
		form.Set("author_url", authorURL)
	}

	var account Account
	if err := c.call(ctx, "createAccount", form, &account); err != nil {
		return nil, err
	}
	if account.AccessToken == "" {
		return nil, fmt.Errorf("createAccount: no access token in response")
	}
	return &account, nil
}

// CreatePage publishes doc. The title and author fields are cut to the
// host's limits; the content is sent exactly as encoded.
func (c *Client) CreatePage(ctx context.Context, accessToken string, doc document.Document) (*Page, error) {
	content := doc.Encoded
	if content == nil {
		var err error
		content, err = document.Encode(doc.Content)
		if err != nil {
			return nil, fmt.Errorf("encode content: %w", err)
		}
	}

	form := url.Values{}
	form.Set("access_token", accessToken)
	form.Set("title", truncateRunes(strings.TrimSpace(doc.Title), maxTitleRunes))
	form.Set("content", string(content))
	form.Set("return_content", "false")
	if doc.AuthorName != "" {
		form.Set("author_name", truncateBytes(doc.AuthorName, maxAuthorNameBytes))
	}
	if doc.AuthorURL != "" {
		form.Set("author_url", truncateBytes(doc.AuthorURL, maxAuthorURLBytes))
	}

	var page Page
	if err := c.call(ctx, "createPage", form, &page); err != nil {
		return nil, err
	}
	if page.URL == "" {
		return nil, fmt.Errorf("createPage: no url in response")
	}
	return &page, nil
}

// GetPage fetches the page at pagePath, with its content when withContent
// is set.
func (c *Client) GetPage(ctx context.Context, pagePath string, withContent bool) (*Page, error) {
	form := url.Values{}
	form.Set("return_content", fmt.Sprintf("%t", withContent))

	var page Page
	if err := c.call(ctx, "getPage/"+url.PathEscape(pagePath), form, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

var pagePathPattern = regexp.MustCompile(`telegra\.ph/([^/\s?#]+)`)

// PagePath extracts the page path from a page URL.
func PagePath(pageURL string) (string, bool) {
	m := pagePathPattern.FindStringSubmatch(pageURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Upload stores an image on the host and returns its absolute URL.
func (c *Client) Upload(ctx context.Context, data []byte, contentType, filename string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if filename == "" {
		filename = "image"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(path.Base(filename))))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	respBody, err := c.send(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	src, err := parseUploadResponse(respBody)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return absoluteURL(src), nil
}

// parseUploadResponse accepts both the list form [{"src":...}] and the
// single object form {"src":...}.
func parseUploadResponse(body []byte) (string, error) {
	var list []struct {
		Src string `json:"src"`
	}
	if err := json.Unmarshal(body, &list); err == nil {
		if len(list) > 0 && list[0].Src != "" {
			return list[0].Src, nil
		}
		return "", fmt.Errorf("empty upload response")
	}

	var single struct {
		Src   string `json:"src"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &single); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if single.Error != "" {
		return "", &APIError{Method: "upload", Message: single.Error}
	}
	if single.Src == "" {
		return "", fmt.Errorf("no src in upload response")
	}
	return single.Src, nil
}

func (c *Client) call(ctx context.Context, method string, form url.Values, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+method, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	respBody, err := c.send(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	var envelope struct {
		OK     bool            `json:"ok"`
		Result json.RawMessage `json:"result"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("%s: unmarshal response: %w", method, err)
	}
	if !envelope.OK {
		return &APIError{Method: method, Message: envelope.Error}
	}
	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("%s: unmarshal result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP status %d: %s", resp.StatusCode, truncateBytes(string(respBody), 200))
	}
	return respBody, nil
}

// APIError is an error reported by the Telegraph API.
type APIError struct {
	Method  string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegraph %s: %s", e.Method, e.Message)
}

func absoluteURL(src string) string {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return src
	}
	return siteURL + "/" + strings.TrimLeft(src, "/")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
