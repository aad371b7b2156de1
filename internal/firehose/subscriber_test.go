package firehose

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/bluesky-thread2page/internal/bluesky"
	"github.com/blackmichael/bluesky-thread2page/internal/domain"
)

const botDID = "did:plc:bot"

type fakeHandler struct {
	seen []domain.Notification
	err  error
}

func (h *fakeHandler) ProcessMention(_ context.Context, notif domain.Notification) (bool, error) {
	h.seen = append(h.seen, notif)
	if h.err != nil {
		return false, h.err
	}
	return true, nil
}

type memCursors struct {
	cursors map[string]int64
}

func (m *memCursors) GetCursor(_ context.Context, service string) (int64, error) {
	return m.cursors[service], nil
}

func (m *memCursors) UpdateCursor(_ context.Context, service string, cursor int64) error {
	m.cursors[service] = cursor
	return nil
}

func newTestSubscriber(h MentionHandler) *Subscriber {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSubscriber("wss://jetstream.example/subscribe", botDID, h,
		&memCursors{cursors: map[string]int64{}}, logger)
}

const mentionEvent = `{
	"did": "did:plc:alice",
	"time_us": 1725911162329308,
	"kind": "commit",
	"commit": {
		"rev": "3l3qo2vutsw2b",
		"operation": "create",
		"collection": "app.bsky.feed.post",
		"rkey": "3l3qo2vuowo2b",
		"cid": "bafyreiexample",
		"record": {
			"$type": "app.bsky.feed.post",
			"text": "@bot.test سرد",
			"createdAt": "2024-09-09T19:46:02.102Z",
			"facets": [{
				"index": {"byteStart": 0, "byteEnd": 9},
				"features": [{"$type": "app.bsky.richtext.facet#mention", "did": "did:plc:bot"}]
			}]
		}
	}
}`

func mentionFacets(did string) []bluesky.Facet {
	return []bluesky.Facet{{
		Index: bluesky.FacetIndex{ByteStart: 0, ByteEnd: 4},
		Features: []bluesky.FacetFeature{
			{Type: "app.bsky.richtext.facet#mention", DID: did},
		},
	}}
}

func TestParseEvent_MentionFacets(t *testing.T) {
	event, err := parseEvent([]byte(mentionEvent))
	require.NoError(t, err)

	assert.Equal(t, "did:plc:alice", event.DID)
	assert.Equal(t, int64(1725911162329308), event.TimeUS)
	require.NotNil(t, event.Commit)
	require.NotNil(t, event.Commit.Record)

	record := event.Commit.Record.toDomain()
	require.Len(t, record.Facets, 1)
	assert.Equal(t, domain.FeatureMention, record.Facets[0].Features[0].Kind)
	assert.True(t, record.MentionsDID(botDID))
}

func TestParseEvent_Invalid(t *testing.T) {
	_, err := parseEvent([]byte(`{not json`))
	assert.Error(t, err)

	event, err := parseEvent([]byte(`{"did":"did:plc:x","time_us":1,"kind":"identity"}`))
	require.NoError(t, err)
	assert.Nil(t, event.Commit)
}

func TestHandleCommit_Mention(t *testing.T) {
	h := &fakeHandler{}
	s := newTestSubscriber(h)

	event, err := parseEvent([]byte(mentionEvent))
	require.NoError(t, err)

	handled, err := s.handleCommit(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, handled)

	require.Len(t, h.seen, 1)
	notif := h.seen[0]
	assert.Equal(t, "at://did:plc:alice/app.bsky.feed.post/3l3qo2vuowo2b", notif.URI)
	assert.Equal(t, "bafyreiexample", notif.CID)
	assert.Equal(t, "mention", notif.Reason)
	assert.Equal(t, "@bot.test سرد", notif.Record.Text)
}

func TestHandleCommit_Ignored(t *testing.T) {
	tests := []struct {
		name  string
		event *jetstreamEvent
	}{
		{
			name: "delete",
			event: &jetstreamEvent{DID: "did:plc:alice", Commit: &jetstreamCommit{
				Operation: "delete", Collection: "app.bsky.feed.post", RKey: "x",
			}},
		},
		{
			name: "no mention",
			event: &jetstreamEvent{DID: "did:plc:alice", Commit: &jetstreamCommit{
				Operation: "create", Collection: "app.bsky.feed.post", RKey: "x",
				Record: &postRecord{Text: "سرد"},
			}},
		},
		{
			name: "mentions someone else",
			event: &jetstreamEvent{DID: "did:plc:alice", Commit: &jetstreamCommit{
				Operation: "create", Collection: "app.bsky.feed.post", RKey: "x",
				Record: &postRecord{Text: "@other", Facets: mentionFacets("did:plc:other")},
			}},
		},
		{
			name: "posted by the bot",
			event: &jetstreamEvent{DID: botDID, Commit: &jetstreamCommit{
				Operation: "create", Collection: "app.bsky.feed.post", RKey: "x",
				Record: &postRecord{Text: "@bot", Facets: mentionFacets(botDID)},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &fakeHandler{}
			s := newTestSubscriber(h)

			handled, err := s.handleCommit(context.Background(), tt.event)
			require.NoError(t, err)
			assert.False(t, handled)
			assert.Empty(t, h.seen)
		})
	}
}

func TestHandleCommit_HandlerError(t *testing.T) {
	h := &fakeHandler{err: errors.New("boom")}
	s := newTestSubscriber(h)

	event, err := parseEvent([]byte(mentionEvent))
	require.NoError(t, err)

	handled, err := s.handleCommit(context.Background(), event)
	assert.Error(t, err)
	assert.False(t, handled)
}

func TestBuildURL(t *testing.T) {
	s := newTestSubscriber(&fakeHandler{})

	u, err := url.Parse(s.buildURL(0))
	require.NoError(t, err)
	assert.Equal(t, []string{"app.bsky.feed.post"}, u.Query()["wantedCollections"])
	assert.Empty(t, u.Query().Get("cursor"))

	u, err = url.Parse(s.buildURL(42))
	require.NoError(t, err)
	assert.Equal(t, "42", u.Query().Get("cursor"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abc", 2))
	assert.Equal(t, "سر...", truncate("سرد", 2))
}
