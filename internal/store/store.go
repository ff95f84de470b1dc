// Package store provides the room persistence interface and SQLite implementation.
package store

import (
	"context"
	"errors"

	"github.com/rcliao/roomverse/internal/model"
)

// ErrMalformedSession is returned when a session identifier cannot be
// parsed as a ULID. Surfaced to callers as a client error, never fatal.
var ErrMalformedSession = errors.New("malformed session id")

// ErrLoreNotFound is returned when no lore entry exists for a keyword.
var ErrLoreNotFound = errors.New("lore entry not found")

// LoreParams holds parameters for authoring a lore entry.
type LoreParams struct {
	Keyword           string
	KeywordTranslated string
	Content           string
	ContentTranslated string
	Book              string
	Aliases           string
	Constant          bool
	Enabled           bool
	Author            string
}

// LoreStore is the lorebook persistence consumed by the retrieval engine
// and the teach command.
type LoreStore interface {
	// UpsertLore creates or replaces the entry for its primary keyword.
	UpsertLore(ctx context.Context, p LoreParams) (*model.LoreEntry, error)

	// ListLore returns entries in keyword order, optionally restricted
	// to enabled ones.
	ListLore(ctx context.Context, enabledOnly bool) ([]model.LoreEntry, error)

	// DeleteLore removes the entry for a keyword.
	DeleteLore(ctx context.Context, keyword string) error
}

// VisitStore persists visit logs and per-visitor relationships.
type VisitStore interface {
	// LogVisit appends a visit record and upserts the visitor's
	// relationship, refreshing last-met time and display name.
	LogVisit(ctx context.Context, visitorID, visitorName, callbackURL string) (*model.Relationship, error)

	// Relationship returns the stored relationship, or nil when the
	// visitor has never been logged.
	Relationship(ctx context.Context, visitorID string) (*model.Relationship, error)
}

// ConversationStore persists per-session transcripts.
type ConversationStore interface {
	// AppendTurn records one side of an exchange under a session id.
	AppendTurn(ctx context.Context, sessionID, visitorID, sender, message string) error

	// Turns returns a session's transcript in chronological order.
	// Returns ErrMalformedSession for an unparsable session id.
	Turns(ctx context.Context, sessionID string) ([]model.ConversationTurn, error)

	// DeleteTurns removes a session's transcript.
	// Returns ErrMalformedSession for an unparsable session id.
	DeleteTurns(ctx context.Context, sessionID string) error
}

// Store is the full persistence surface of the room.
type Store interface {
	LoreStore
	VisitStore
	ConversationStore

	// NewID mints a session/row identifier.
	NewID() string

	// Close closes the store.
	Close() error
}
