package firehose

import (
	"github.com/blackmichael/bluesky-thread2page/internal/bluesky"
	"github.com/blackmichael/bluesky-thread2page/internal/domain"
)

// jetstreamEvent is the raw JSON structure from Jetstream.
type jetstreamEvent struct {
	DID    string           `json:"did"`
	TimeUS int64            `json:"time_us"`
	Kind   string           `json:"kind"`
	Commit *jetstreamCommit `json:"commit,omitempty"`
}

// jetstreamCommit is the raw commit data from Jetstream.
type jetstreamCommit struct {
	Rev        string      `json:"rev"`
	Operation  string      `json:"operation"`
	Collection string      `json:"collection"`
	RKey       string      `json:"rkey"`
	Record     *postRecord `json:"record,omitempty"`
	CID        string      `json:"cid"`
}

// postRecord is the parsed content of an app.bsky.feed.post record.
type postRecord struct {
	Type      string           `json:"$type"`
	Text      string           `json:"text"`
	CreatedAt string           `json:"createdAt"`
	Langs     []string         `json:"langs"`
	Reply     *domain.ReplyRef `json:"reply,omitempty"`
	Facets    []bluesky.Facet  `json:"facets,omitempty"`
}

func (r *postRecord) toDomain() *domain.Record {
	return &domain.Record{
		Text:   r.Text,
		Facets: bluesky.FacetsToDomain(r.Facets),
	}
}
