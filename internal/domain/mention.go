package domain

import (
	"regexp"
	"strings"
)

// Notification is a single entry from the account's notification list.
type Notification struct {
	URI    string
	CID    string
	Reason string

	// Record is nil when the notification did not carry the post record.
	Record *Record
}

// Record is the text and facets of a post record.
type Record struct {
	Text   string
	Facets []Facet
}

// MentionsDID reports whether any facet of the record mentions did.
func (r *Record) MentionsDID(did string) bool {
	if r == nil || did == "" {
		return false
	}
	for _, f := range r.Facets {
		for _, feat := range f.Features {
			if feat.Kind == FeatureMention && feat.DID == did {
				return true
			}
		}
	}
	return false
}

// StrongRef is a reference to a specific version of a record.
type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// ReplyRef contains references to the parent and root of a reply chain.
type ReplyRef struct {
	Root   StrongRef `json:"root"`
	Parent StrongRef `json:"parent"`
}

// TriggerMatcher checks post text for any of a set of trigger words. A word
// only matches when it is not embedded in a longer run of letters.
type TriggerMatcher struct {
	pattern *regexp.Regexp
}

// NewTriggerMatcher compiles the trigger words. Blank words are ignored; a
// matcher without words never matches.
func NewTriggerMatcher(words []string) *TriggerMatcher {
	var escaped []string
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w != "" {
			escaped = append(escaped, regexp.QuoteMeta(w))
		}
	}
	if len(escaped) == 0 {
		return &TriggerMatcher{}
	}
	expr := `(?:^|[^\p{L}])(?:` + strings.Join(escaped, "|") + `)(?:$|[^\p{L}])`
	return &TriggerMatcher{pattern: regexp.MustCompile(expr)}
}

// Match returns true if text contains a trigger word.
func (m *TriggerMatcher) Match(text string) bool {
	if m.pattern == nil || text == "" {
		return false
	}
	return m.pattern.MatchString(text)
}
