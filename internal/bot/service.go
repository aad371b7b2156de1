// Package bot answers mentions by compiling the mentioned thread into a
// Telegraph page and replying with its link.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/blackmichael/bluesky-thread2page/internal/bluesky"
	"github.com/blackmichael/bluesky-thread2page/internal/compiler"
	"github.com/blackmichael/bluesky-thread2page/internal/document"
	"github.com/blackmichael/bluesky-thread2page/internal/domain"
	"github.com/blackmichael/bluesky-thread2page/internal/rehost"
	"github.com/blackmichael/bluesky-thread2page/internal/telegraph"
)

const (
	reasonMention = "mention"

	tokenName     = "telegraph"
	tokenMinAge   = time.Hour
	dryRunPageURL = "https://telegra.ph/dry-run"

	defaultReplyText       = "تفضل معلم هي السرد"
	defaultAuthorName      = "Thread Compiler"
	fallbackCardTitle      = "Thread Archive"
	fallbackCardDesc       = "View the compiled thread on Telegraph"
	defaultNotificationCap = 50
)

// Network is the social network the bot reads threads from and replies on.
type Network interface {
	DID() string
	ListNotifications(ctx context.Context, limit int) ([]domain.Notification, error)
	GetPostRecord(ctx context.Context, uri string) (*domain.Record, error)
	GetPostThread(ctx context.Context, uri string, parentHeight int) (domain.ThreadPath, error)
	CreatePost(ctx context.Context, record bluesky.PostRecord) (domain.StrongRef, error)
	UploadBlob(ctx context.Context, data []byte, mimeType string) (*bluesky.BlobRef, error)
}

// Publisher is the document host pages are published to.
type Publisher interface {
	CreateAccount(ctx context.Context, shortName, authorName, authorURL string) (*telegraph.Account, error)
	CreatePage(ctx context.Context, accessToken string, doc document.Document) (*telegraph.Page, error)
	GetPage(ctx context.Context, pagePath string, withContent bool) (*telegraph.Page, error)
}

// ImageRehoster moves thread images onto the document host.
type ImageRehoster interface {
	RehostPath(ctx context.Context, path domain.ThreadPath) domain.ThreadPath
	Fetch(ctx context.Context, src string) (*rehost.Image, error)
}

// Options controls how mentions are qualified and answered.
type Options struct {
	TriggerWords      []string
	MaxMentionsPerRun int
	NotificationLimit int
	ThreadDepth       int
	DryRun            bool

	ReplyText    string
	ReplyHashtag string

	// AccessToken is a preconfigured host token; when empty a stored token is
	// used, or an anonymous account is created.
	AccessToken string
	AuthorName  string
	AuthorURL   string
}

// Service is the bot's core service. It owns the business logic for
// qualifying mentions, compiling threads, publishing pages and replying.
type Service struct {
	network   Network
	publisher Publisher
	rehoster  ImageRehoster
	compiler  *compiler.Compiler
	processed domain.ProcessedRepository
	tokens    domain.TokenRepository
	trigger   *domain.TriggerMatcher
	opts      Options
	logger    *slog.Logger

	// busy serializes mentions arriving from the firehose and from polling.
	busy sync.Mutex

	mu    sync.Mutex
	token string
}

// NewService creates a Service.
func NewService(
	network Network,
	publisher Publisher,
	rehoster ImageRehoster,
	comp *compiler.Compiler,
	processed domain.ProcessedRepository,
	tokens domain.TokenRepository,
	opts Options,
	logger *slog.Logger,
) (*Service, error) {
	if len(opts.TriggerWords) == 0 {
		return nil, fmt.Errorf("at least one trigger word is required")
	}
	if opts.MaxMentionsPerRun <= 0 {
		return nil, fmt.Errorf("max mentions per run must be positive, got %d", opts.MaxMentionsPerRun)
	}
	if opts.NotificationLimit <= 0 {
		opts.NotificationLimit = defaultNotificationCap
	}
	if opts.ReplyText == "" {
		opts.ReplyText = defaultReplyText
	}
	if opts.AuthorName == "" {
		opts.AuthorName = defaultAuthorName
	}

	return &Service{
		network:   network,
		publisher: publisher,
		rehoster:  rehoster,
		compiler:  comp,
		processed: processed,
		tokens:    tokens,
		trigger:   domain.NewTriggerMatcher(opts.TriggerWords),
		opts:      opts,
		logger:    logger,
	}, nil
}

// ProcessNotifications runs one polling pass: it lists recent notifications,
// keeps the unprocessed mentions of the bot and answers them until
// MaxMentionsPerRun have succeeded. Returns the number answered.
func (s *Service) ProcessNotifications(ctx context.Context) (int, error) {
	notifs, err := s.network.ListNotifications(ctx, s.opts.NotificationLimit)
	if err != nil {
		return 0, fmt.Errorf("list notifications: %w", err)
	}
	s.logger.Info("fetched notifications", "count", len(notifs))

	var candidates []domain.Notification
	for _, n := range notifs {
		if n.URI == "" || n.Reason != reasonMention {
			continue
		}
		done, err := s.processed.HasProcessed(ctx, n.URI)
		if err != nil {
			return 0, fmt.Errorf("check processed: %w", err)
		}
		if done {
			continue
		}
		// Without facets the record is fetched again in ProcessMention.
		if n.Record != nil && n.Record.Facets != nil && !n.Record.MentionsDID(s.network.DID()) {
			continue
		}
		candidates = append(candidates, n)
	}
	s.logger.Info("found potential mentions", "count", len(candidates))

	answered := 0
	for _, n := range candidates {
		if answered >= s.opts.MaxMentionsPerRun {
			s.logger.Info("reached max mentions per run", "limit", s.opts.MaxMentionsPerRun)
			break
		}
		ok, err := s.ProcessMention(ctx, n)
		if err != nil {
			if ctx.Err() != nil {
				return answered, ctx.Err()
			}
			s.logger.Error("failed to process mention", "uri", n.URI, "error", err)
			continue
		}
		if ok {
			answered++
		}
	}

	if answered == 0 {
		s.logger.Info("no qualifying mentions to process")
	} else {
		s.logger.Info("processed mentions", "count", answered)
	}
	return answered, nil
}

// ProcessMention answers a single mention. It returns false without error
// when the mention does not qualify or was already handled.
func (s *Service) ProcessMention(ctx context.Context, notif domain.Notification) (bool, error) {
	s.busy.Lock()
	defer s.busy.Unlock()

	uri := notif.URI

	done, err := s.processed.HasProcessed(ctx, uri)
	if err != nil {
		return false, fmt.Errorf("check processed: %w", err)
	}
	if done {
		s.logger.Debug("skipping already processed mention", "uri", uri)
		return false, nil
	}

	record := notif.Record
	if record == nil || record.Facets == nil {
		full, err := s.network.GetPostRecord(ctx, uri)
		if err != nil {
			s.logger.Warn("failed to fetch full record, using notification record", "uri", uri, "error", err)
		} else {
			record = full
		}
	}

	if !record.MentionsDID(s.network.DID()) {
		s.logger.Debug("mention check failed: post does not mention our DID", "uri", uri)
		return false, nil
	}
	if !s.trigger.Match(record.Text) {
		s.logger.Debug("trigger check failed: no trigger word in text", "uri", uri)
		return false, nil
	}

	s.logger.Info("processing mention", "uri", uri)

	path, err := s.network.GetPostThread(ctx, uri, s.opts.ThreadDepth)
	if err != nil {
		return false, fmt.Errorf("get post thread: %w", err)
	}
	if len(path) == 0 {
		s.logger.Warn("no posts collected for thread", "uri", uri)
		return false, nil
	}

	path = s.rehoster.RehostPath(ctx, path)

	result, err := s.compiler.Compile(path, uri)
	if err != nil {
		if errors.Is(err, compiler.ErrEmptyThread) || errors.Is(err, compiler.ErrTooLarge) {
			// The same thread would fail the same way on every pass.
			if markErr := s.processed.MarkProcessed(ctx, uri, ""); markErr != nil {
				s.logger.Error("failed to mark mention processed", "uri", uri, "error", markErr)
			}
		}
		return false, fmt.Errorf("compile thread: %w", err)
	}
	for _, w := range result.Warnings {
		s.logger.Warn("recovered compile problem", "uri", uri, "warning", w)
	}

	doc := result.Document
	doc.Title += titleSuffix()
	if doc.AuthorName == "" {
		doc.AuthorName = s.opts.AuthorName
	}
	if doc.AuthorURL == "" {
		doc.AuthorURL = s.opts.AuthorURL
	}

	if s.opts.DryRun {
		s.logger.Info("[DRY_RUN] would create page and reply",
			"uri", uri,
			"title", doc.Title,
			"content_bytes", len(doc.Encoded),
			"page_url", dryRunPageURL,
		)
		return true, nil
	}

	page, err := s.publish(ctx, doc)
	if err != nil {
		return false, fmt.Errorf("create page: %w", err)
	}
	s.logger.Info("created page", "uri", uri, "page_url", page.URL)

	root, _ := path.Root()
	parentCID := notif.CID
	if p, ok := path.Find(uri); ok && p.CID != "" {
		parentCID = p.CID
	}
	reply := domain.ReplyRef{
		Root:   domain.StrongRef{URI: root.URI, CID: root.CID},
		Parent: domain.StrongRef{URI: uri, CID: parentCID},
	}
	if reply.Root.CID == "" || reply.Parent.CID == "" {
		return false, fmt.Errorf("reply to %s: missing root or parent CID", uri)
	}

	if err := s.reply(ctx, reply, page, doc); err != nil {
		return false, fmt.Errorf("reply: %w", err)
	}

	if err := s.processed.MarkProcessed(ctx, uri, page.URL); err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	s.logger.Info("replied with page url", "uri", uri, "page_url", page.URL)
	return true, nil
}

func (s *Service) publish(ctx context.Context, doc document.Document) (*telegraph.Page, error) {
	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.publisher.CreatePage(ctx, token, doc)
}

// accessToken returns the configured token, else a stored one, else creates
// an anonymous account and stores its token.
func (s *Service) accessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" {
		return s.token, nil
	}
	if s.opts.AccessToken != "" {
		s.token = s.opts.AccessToken
		return s.token, nil
	}

	stored, err := s.tokens.GetToken(ctx, tokenName)
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	if stored != nil && stored.Value != "" {
		if age := time.Since(stored.CreatedAt); age < tokenMinAge {
			s.logger.Warn("host token is new; pages from new accounts may be rejected for up to an hour",
				"age_minutes", int(age.Minutes()))
		}
		s.token = stored.Value
		return s.token, nil
	}

	s.logger.Info("no host access token, creating anonymous account")
	account, err := s.publisher.CreateAccount(ctx, s.opts.AuthorName, s.opts.AuthorName, s.opts.AuthorURL)
	if err != nil {
		return "", fmt.Errorf("create account: %w", err)
	}
	if err := s.tokens.SaveToken(ctx, tokenName, domain.Token{Value: account.AccessToken, CreatedAt: time.Now()}); err != nil {
		s.logger.Error("failed to persist host token", "error", err)
	}
	s.logger.Warn("created anonymous host account; set TELEGRAPH_ACCESS_TOKEN for production use")

	s.token = account.AccessToken
	return s.token, nil
}

// reply posts the page link under the mention as an external card.
func (s *Service) reply(ctx context.Context, ref domain.ReplyRef, page *telegraph.Page, doc document.Document) error {
	title, description, thumbURL := page.Title, page.Description, doc.FirstImage()
	if pagePath, ok := telegraph.PagePath(page.URL); ok {
		info, err := s.publisher.GetPage(ctx, pagePath, true)
		if err != nil {
			s.logger.Warn("failed to fetch page info", "page_url", page.URL, "error", err)
		} else {
			title, description = info.Title, info.Description
			if img := info.FirstImage(); img != "" {
				thumbURL = img
			}
		}
	}
	if title == "" {
		title = fallbackCardTitle
	}
	if description == "" {
		description = fallbackCardDesc
	}

	var thumb *bluesky.BlobRef
	if thumbURL != "" {
		var err error
		if thumb, err = s.uploadThumb(ctx, thumbURL); err != nil {
			s.logger.Warn("failed to upload thumbnail", "src", thumbURL, "error", err)
		}
	}

	text, facets := bluesky.TextWithHashtag(s.opts.ReplyText, s.opts.ReplyHashtag)
	_, err := s.network.CreatePost(ctx, bluesky.PostRecord{
		Text:   text,
		Facets: facets,
		Embed:  bluesky.NewExternalEmbed(page.URL, title, description, thumb),
		Reply:  &ref,
	})
	return err
}

func (s *Service) uploadThumb(ctx context.Context, src string) (*bluesky.BlobRef, error) {
	img, err := s.rehoster.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	return s.network.UploadBlob(ctx, img.Data, img.ContentType)
}

// StartCleanupJob runs a background loop that forgets processed mentions
// older than maxAge. It runs immediately on start and then repeats at the
// given interval. It blocks until ctx is cancelled.
func (s *Service) StartCleanupJob(ctx context.Context, interval, maxAge time.Duration) {
	s.runCleanup(ctx, maxAge)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCleanup(ctx, maxAge)
		}
	}
}

func (s *Service) runCleanup(ctx context.Context, maxAge time.Duration) {
	deleted, err := s.processed.DeleteProcessedBefore(ctx, time.Now().Add(-maxAge))
	if err != nil {
		s.logger.Error("processed mention cleanup failed", "error", err)
	} else if deleted > 0 {
		s.logger.Info("processed mention cleanup complete", "deleted", deleted)
	}
}

// titleSuffix keeps page titles unique across repeated compilations of the
// same thread.
func titleSuffix() string {
	id := strings.ToLower(ulid.Make().String())
	return " • " + id[len(id)-8:]
}
