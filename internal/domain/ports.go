package domain

import (
	"context"
	"time"
)

// ProcessedRepository records which mentions have been answered.
type ProcessedRepository interface {
	// HasProcessed reports whether the mention post has already been handled.
	HasProcessed(ctx context.Context, uri string) (bool, error)

	// MarkProcessed records the mention post as handled together with the
	// page published for it. Marking an already processed URI is not an error.
	MarkProcessed(ctx context.Context, uri, pageURL string) error

	// DeleteProcessedBefore removes records older than cutoff. Returns the
	// number of rows deleted.
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CursorRepository defines persistence operations for firehose cursors.
type CursorRepository interface {
	// GetCursor retrieves the last-processed firehose cursor for the given
	// service name. Returns 0 if no cursor has been saved.
	GetCursor(ctx context.Context, service string) (int64, error)

	// UpdateCursor persists the firehose cursor so we can resume on restart.
	UpdateCursor(ctx context.Context, service string, cursor int64) error
}

// Token is a stored access token for a document host account.
type Token struct {
	Value     string
	CreatedAt time.Time
}

// TokenRepository persists host access tokens by name.
type TokenRepository interface {
	// GetToken returns the stored token, or nil if none has been saved.
	GetToken(ctx context.Context, name string) (*Token, error)

	// SaveToken stores or replaces the token.
	SaveToken(ctx context.Context, name string, token Token) error
}
