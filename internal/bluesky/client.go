package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/blackmichael/bluesky-thread2page/internal/domain"
)

const defaultPDS = "https://bsky.social"

// ErrNotAuthenticated is returned by calls that need a session before Login.
var ErrNotAuthenticated = errors.New("not authenticated: call Login first")

// Client is a minimal BlueSky/AT Protocol API client covering what the bot
// needs: sessions, notifications, records, threads and blobs.
type Client struct {
	pds        string
	httpClient *http.Client

	// populated after Login
	accessJwt string
	did       string
	handle    string
}

// NewClient creates a new BlueSky API client. If pds is empty, it defaults to
// https://bsky.social.
func NewClient(pds string) *Client {
	if pds == "" {
		pds = defaultPDS
	}
	return &Client{
		pds: pds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Login authenticates with the PDS and stores the session token. Use an App
// Password, not your account password.
func (c *Client) Login(ctx context.Context, identifier, password string) error {
	body := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	var resp createSessionResponse
	if err := c.post(ctx, "/xrpc/com.atproto.server.createSession", body, &resp); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	c.accessJwt = resp.AccessJwt
	c.did = resp.DID
	c.handle = resp.Handle
	return nil
}

// DID returns the authenticated user's DID. Only valid after Login.
func (c *Client) DID() string {
	return c.did
}

// Handle returns the authenticated user's handle. Only valid after Login.
func (c *Client) Handle() string {
	return c.handle
}

// ListNotifications returns the most recent notifications of the account.
func (c *Client) ListNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	if c.accessJwt == "" {
		return nil, ErrNotAuthenticated
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var resp listNotificationsResponse
	if err := c.get(ctx, "/xrpc/app.bsky.notification.listNotifications", q, &resp); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	notifs := make([]domain.Notification, 0, len(resp.Notifications))
	for _, n := range resp.Notifications {
		notif := domain.Notification{
			URI:    n.URI,
			CID:    n.CID,
			Reason: n.Reason,
		}
		if n.Record != nil {
			notif.Record = n.Record.toDomain()
		}
		notifs = append(notifs, notif)
	}
	return notifs, nil
}

var atURIPattern = regexp.MustCompile(`^at://([^/]+)/([^/]+)/(.+)$`)

// GetPostRecord fetches the post record behind uri via
// com.atproto.repo.getRecord.
func (c *Client) GetPostRecord(ctx context.Context, uri string) (*domain.Record, error) {
	if c.accessJwt == "" {
		return nil, ErrNotAuthenticated
	}

	m := atURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return nil, fmt.Errorf("invalid AT-URI %q", uri)
	}

	q := url.Values{}
	q.Set("repo", m[1])
	q.Set("collection", m[2])
	q.Set("rkey", m[3])

	var resp getRecordResponse
	if err := c.get(ctx, "/xrpc/com.atproto.repo.getRecord", q, &resp); err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	if resp.Value == nil {
		return nil, fmt.Errorf("get record %s: empty value", uri)
	}
	return resp.Value.toDomain(), nil
}

// GetPostThread fetches the thread around uri, walking at most parentHeight
// ancestors, and returns the path from the root to uri.
func (c *Client) GetPostThread(ctx context.Context, uri string, parentHeight int) (domain.ThreadPath, error) {
	if c.accessJwt == "" {
		return nil, ErrNotAuthenticated
	}

	q := url.Values{}
	q.Set("uri", uri)
	q.Set("depth", "0")
	q.Set("parentHeight", strconv.Itoa(parentHeight))

	var resp getPostThreadResponse
	if err := c.get(ctx, "/xrpc/app.bsky.feed.getPostThread", q, &resp); err != nil {
		return nil, fmt.Errorf("get post thread: %w", err)
	}
	return pathToRoot(resp.Thread, parentHeight+1), nil
}

// CreatePost writes a post record to the authenticated user's repo via
// com.atproto.repo.createRecord and returns its reference.
func (c *Client) CreatePost(ctx context.Context, record PostRecord) (domain.StrongRef, error) {
	if c.accessJwt == "" {
		return domain.StrongRef{}, ErrNotAuthenticated
	}

	record.Type = postCollection
	if record.CreatedAt == "" {
		record.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	body := createRecordRequest{
		Repo:       c.did,
		Collection: postCollection,
		Record:     record,
	}

	var resp domain.StrongRef
	if err := c.post(ctx, "/xrpc/com.atproto.repo.createRecord", body, &resp); err != nil {
		return domain.StrongRef{}, fmt.Errorf("create record: %w", err)
	}
	return resp, nil
}

// UploadBlob uploads raw image bytes as a blob and returns a reference.
// The blob will be deleted if not referenced in a record within a time window.
func (c *Client) UploadBlob(ctx context.Context, data []byte, mimeType string) (*BlobRef, error) {
	if c.accessJwt == "" {
		return nil, ErrNotAuthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pds+"/xrpc/com.atproto.repo.uploadBlob", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Authorization", "Bearer "+c.accessJwt)

	var result uploadBlobResponse
	if err := c.do(req, &result); err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}
	return &result.Blob, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	u := c.pds + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.accessJwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessJwt)
	}
	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pds+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessJwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessJwt)
	}
	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// APIError is a non-2xx response from the PDS.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

type createSessionResponse struct {
	AccessJwt string `json:"accessJwt"`
	DID       string `json:"did"`
	Handle    string `json:"handle"`
}

type createRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	Record     any    `json:"record"`
}

type uploadBlobResponse struct {
	Blob BlobRef `json:"blob"`
}

type listNotificationsResponse struct {
	Notifications []notificationView `json:"notifications"`
}

type notificationView struct {
	URI    string      `json:"uri"`
	CID    string      `json:"cid"`
	Reason string      `json:"reason"`
	Record *postRecord `json:"record,omitempty"`
}

type getRecordResponse struct {
	URI   string      `json:"uri"`
	CID   string      `json:"cid"`
	Value *postRecord `json:"value,omitempty"`
}

type getPostThreadResponse struct {
	Thread *threadView `json:"thread"`
}
