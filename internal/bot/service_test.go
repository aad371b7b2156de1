package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/bluesky-thread2page/internal/bluesky"
	"github.com/blackmichael/bluesky-thread2page/internal/compiler"
	"github.com/blackmichael/bluesky-thread2page/internal/document"
	"github.com/blackmichael/bluesky-thread2page/internal/domain"
	"github.com/blackmichael/bluesky-thread2page/internal/rehost"
	"github.com/blackmichael/bluesky-thread2page/internal/telegraph"
)

const botDID = "did:plc:bot"

type fakeNetwork struct {
	notifs  []domain.Notification
	records map[string]*domain.Record
	threads map[string]domain.ThreadPath
	posts   []bluesky.PostRecord
	blobs   int
}

func (f *fakeNetwork) DID() string { return botDID }

func (f *fakeNetwork) ListNotifications(context.Context, int) ([]domain.Notification, error) {
	return f.notifs, nil
}

func (f *fakeNetwork) GetPostRecord(_ context.Context, uri string) (*domain.Record, error) {
	if r, ok := f.records[uri]; ok {
		return r, nil
	}
	return nil, errors.New("record not found")
}

func (f *fakeNetwork) GetPostThread(_ context.Context, uri string, _ int) (domain.ThreadPath, error) {
	return f.threads[uri], nil
}

func (f *fakeNetwork) CreatePost(_ context.Context, r bluesky.PostRecord) (domain.StrongRef, error) {
	f.posts = append(f.posts, r)
	return domain.StrongRef{URI: "at://did:plc:bot/app.bsky.feed.post/reply", CID: "reply-cid"}, nil
}

func (f *fakeNetwork) UploadBlob(context.Context, []byte, string) (*bluesky.BlobRef, error) {
	f.blobs++
	return &bluesky.BlobRef{Type: "blob", MimeType: "image/jpeg", Size: 4}, nil
}

type fakePublisher struct {
	accounts int
	pages    []document.Document
	tokens   []string
}

func (f *fakePublisher) CreateAccount(context.Context, string, string, string) (*telegraph.Account, error) {
	f.accounts++
	return &telegraph.Account{AccessToken: "new-token"}, nil
}

func (f *fakePublisher) CreatePage(_ context.Context, token string, doc document.Document) (*telegraph.Page, error) {
	f.tokens = append(f.tokens, token)
	f.pages = append(f.pages, doc)
	return &telegraph.Page{Path: "Thread-10-15", URL: "https://telegra.ph/Thread-10-15", Title: doc.Title}, nil
}

func (f *fakePublisher) GetPage(context.Context, string, bool) (*telegraph.Page, error) {
	return &telegraph.Page{Title: "Page title", Description: "Page description"}, nil
}

type fakeRehoster struct{}

func (fakeRehoster) RehostPath(_ context.Context, path domain.ThreadPath) domain.ThreadPath {
	return path
}

func (fakeRehoster) Fetch(context.Context, string) (*rehost.Image, error) {
	return &rehost.Image{Data: []byte("jpeg"), ContentType: "image/jpeg"}, nil
}

type memRepo struct {
	mu        sync.Mutex
	processed map[string]string
	token     *domain.Token
}

func newMemRepo() *memRepo {
	return &memRepo{processed: make(map[string]string)}
}

func (m *memRepo) HasProcessed(_ context.Context, uri string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.processed[uri]
	return ok, nil
}

func (m *memRepo) MarkProcessed(_ context.Context, uri, pageURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.processed[uri]; !ok {
		m.processed[uri] = pageURL
	}
	return nil
}

func (m *memRepo) DeleteProcessedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (m *memRepo) GetToken(context.Context, string) (*domain.Token, error) {
	return m.token, nil
}

func (m *memRepo) SaveToken(_ context.Context, _ string, t domain.Token) error {
	m.token = &t
	return nil
}

func mentionFacet() []domain.Facet {
	return []domain.Facet{{ByteStart: 0, ByteEnd: 4, Features: []domain.Feature{{Kind: domain.FeatureMention, DID: botDID}}}}
}

func threadPost(rkey, text string) domain.Post {
	return domain.Post{
		URI:    "at://did:plc:alice/app.bsky.feed.post/" + rkey,
		CID:    "cid-" + rkey,
		Author: domain.Author{DID: "did:plc:alice", Handle: "alice.test"},
		Text:   text,
	}
}

type fixture struct {
	network   *fakeNetwork
	publisher *fakePublisher
	repo      *memRepo
	svc       *Service
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	if opts.TriggerWords == nil {
		opts.TriggerWords = []string{"رتبها", "compile"}
	}
	if opts.MaxMentionsPerRun == 0 {
		opts.MaxMentionsPerRun = 3
	}

	f := &fixture{
		network: &fakeNetwork{
			records: make(map[string]*domain.Record),
			threads: make(map[string]domain.ThreadPath),
		},
		publisher: &fakePublisher{},
		repo:      newMemRepo(),
	}
	svc, err := NewService(f.network, f.publisher, fakeRehoster{}, compiler.New(compiler.Options{}),
		f.repo, f.repo, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	f.svc = svc
	return f
}

// addMention registers a mention at the end of a two-post thread.
func (f *fixture) addMention(rkey, text string, withFacets bool) domain.Notification {
	mention := threadPost(rkey, text)
	mention.Facets = mentionFacet()
	f.network.threads[mention.URI] = domain.ThreadPath{
		threadPost("root-"+rkey, "The root post of "+rkey),
		mention,
	}

	n := domain.Notification{URI: mention.URI, CID: mention.CID, Reason: "mention", Record: &domain.Record{Text: text}}
	if withFacets {
		n.Record.Facets = mention.Facets
	} else {
		f.network.records[mention.URI] = &domain.Record{Text: text, Facets: mention.Facets}
	}
	f.network.notifs = append(f.network.notifs, n)
	return n
}

func TestProcessMention_PublishesAndReplies(t *testing.T) {
	f := newFixture(t, Options{ReplyText: "here", ReplyHashtag: "threads", AccessToken: "cfg-token"})
	n := f.addMention("m1", "@bot compile", true)

	ok, err := f.svc.ProcessMention(context.Background(), n)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, f.publisher.pages, 1)
	page := f.publisher.pages[0]
	assert.True(t, strings.HasPrefix(page.Title, "The root post of m1 • "))
	assert.Len(t, []rune(strings.TrimPrefix(page.Title, "The root post of m1 • ")), 8)
	assert.Equal(t, "alice.test", page.AuthorName)
	assert.Equal(t, []string{"cfg-token"}, f.publisher.tokens)
	assert.NotContains(t, string(page.Encoded), "@bot compile", "the trigger post is excluded")

	require.Len(t, f.network.posts, 1)
	reply := f.network.posts[0]
	assert.Equal(t, "here #threads", reply.Text)
	require.Len(t, reply.Facets, 1)
	assert.Equal(t, "https://telegra.ph/Thread-10-15", reply.Embed.External.URI)
	assert.Equal(t, "Page title", reply.Embed.External.Title)
	assert.Equal(t, domain.StrongRef{URI: "at://did:plc:alice/app.bsky.feed.post/root-m1", CID: "cid-root-m1"}, reply.Reply.Root)
	assert.Equal(t, domain.StrongRef{URI: n.URI, CID: n.CID}, reply.Reply.Parent)

	assert.Equal(t, "https://telegra.ph/Thread-10-15", f.repo.processed[n.URI])

	ok, err = f.svc.ProcessMention(context.Background(), n)
	require.NoError(t, err)
	assert.False(t, ok, "already processed")
}

func TestProcessMention_FetchesRecordWithoutFacets(t *testing.T) {
	f := newFixture(t, Options{AccessToken: "tok"})
	n := f.addMention("m1", "@bot رتبها", false)

	ok, err := f.svc.ProcessMention(context.Background(), n)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProcessMention_RequiresTriggerAndMention(t *testing.T) {
	f := newFixture(t, Options{AccessToken: "tok"})

	noTrigger := f.addMention("m1", "@bot hello", true)
	ok, err := f.svc.ProcessMention(context.Background(), noTrigger)
	require.NoError(t, err)
	assert.False(t, ok)

	otherDID := domain.Notification{
		URI:    "at://did:plc:x/app.bsky.feed.post/2",
		Reason: "mention",
		Record: &domain.Record{Text: "@other compile", Facets: []domain.Facet{{ByteStart: 0, ByteEnd: 6, Features: []domain.Feature{{Kind: domain.FeatureMention, DID: "did:plc:other"}}}}},
	}
	ok, err = f.svc.ProcessMention(context.Background(), otherDID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Empty(t, f.publisher.pages)
	assert.Empty(t, f.repo.processed)
}

func TestProcessMention_EmptyThreadIsMarked(t *testing.T) {
	f := newFixture(t, Options{AccessToken: "tok"})
	mention := threadPost("solo", "@bot compile")
	mention.Facets = mentionFacet()
	f.network.threads[mention.URI] = domain.ThreadPath{mention}
	n := domain.Notification{URI: mention.URI, CID: mention.CID, Reason: "mention", Record: &domain.Record{Text: mention.Text, Facets: mention.Facets}}

	ok, err := f.svc.ProcessMention(context.Background(), n)
	assert.False(t, ok)
	assert.ErrorIs(t, err, compiler.ErrEmptyThread)
	assert.Contains(t, f.repo.processed, n.URI)
	assert.Empty(t, f.publisher.pages)
}

func TestProcessMention_DryRun(t *testing.T) {
	f := newFixture(t, Options{DryRun: true})
	n := f.addMention("m1", "@bot compile", true)

	ok, err := f.svc.ProcessMention(context.Background(), n)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.publisher.pages)
	assert.Empty(t, f.network.posts)
	assert.Empty(t, f.repo.processed)
	assert.Zero(t, f.publisher.accounts)
}

func TestProcessNotifications_RespectsCap(t *testing.T) {
	f := newFixture(t, Options{MaxMentionsPerRun: 2, AccessToken: "tok"})
	f.addMention("m1", "@bot compile", true)
	f.addMention("m2", "@bot compile", false)
	f.addMention("m3", "@bot compile", true)
	f.network.notifs = append(f.network.notifs,
		domain.Notification{URI: "at://did:plc:z/app.bsky.feed.like/1", Reason: "like"},
		domain.Notification{URI: "at://did:plc:z/app.bsky.feed.post/9", Reason: "mention",
			Record: &domain.Record{Text: "@other compile", Facets: []domain.Facet{}}},
	)

	n, err := f.svc.ProcessNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.repo.processed, 2)

	n, err = f.svc.ProcessNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, f.repo.processed, 3)
}

func TestAccessToken_CreatesAndPersistsAccount(t *testing.T) {
	f := newFixture(t, Options{})
	f.addMention("m1", "@bot compile", true)
	f.addMention("m2", "@bot compile", true)

	_, err := f.svc.ProcessNotifications(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, f.publisher.accounts)
	assert.Equal(t, []string{"new-token", "new-token"}, f.publisher.tokens)
	require.NotNil(t, f.repo.token)
	assert.Equal(t, "new-token", f.repo.token.Value)
}

func TestAccessToken_UsesStoredToken(t *testing.T) {
	f := newFixture(t, Options{})
	f.repo.token = &domain.Token{Value: "stored", CreatedAt: time.Now().Add(-2 * time.Hour)}

	token, err := f.svc.accessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stored", token)
	assert.Zero(t, f.publisher.accounts)
}

func TestReply_UploadsThumbnail(t *testing.T) {
	f := newFixture(t, Options{AccessToken: "tok"})
	n := f.addMention("m1", "@bot compile", true)
	root := f.network.threads[n.URI][0]
	root.Embed = &domain.Embed{Kind: domain.EmbedImages, Images: []domain.Image{{Fullsize: "https://cdn.example/a.jpg"}}}
	f.network.threads[n.URI][0] = root

	ok, err := f.svc.ProcessMention(context.Background(), n)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, 1, f.network.blobs)
	assert.NotNil(t, f.network.posts[0].Embed.External.Thumb)
}

func TestNewService_Validates(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := NewService(nil, nil, nil, nil, nil, nil, Options{MaxMentionsPerRun: 1}, logger)
	assert.Error(t, err)

	_, err = NewService(nil, nil, nil, nil, nil, nil, Options{TriggerWords: []string{"x"}}, logger)
	assert.Error(t, err)
}
