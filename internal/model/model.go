// Package model defines the core room data types.
package model

import (
	"strings"
	"time"
)

// Visitor is a party currently present in the room, keyed by a
// caller-supplied opaque id. Display names are sanitized before storage.
type Visitor struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CallbackURL string    `json:"callback_url,omitempty"`
	Model       string    `json:"model,omitempty"`
	LastSeen    time.Time `json:"last_seen"`
}

// ChatEvent is one immutable entry in the shared scene history.
type ChatEvent struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	IsHuman    bool      `json:"is_human"`
	Model      string    `json:"model,omitempty"`
}

// LoreEntry is an associative knowledge snippet, keyed by its primary
// keyword. Translated fields are optional aliases in the room's display
// language; Aliases holds comma-separated secondary match terms.
type LoreEntry struct {
	Keyword           string    `json:"keyword"`
	KeywordTranslated string    `json:"keyword_translated,omitempty"`
	Content           string    `json:"content"`
	ContentTranslated string    `json:"content_translated,omitempty"`
	Book              string    `json:"book"`
	Aliases           string    `json:"aliases,omitempty"`
	Constant          bool      `json:"constant"`
	Enabled           bool      `json:"enabled"`
	Author            string    `json:"author,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// DisplayContent prefers the translated content when present.
func (e LoreEntry) DisplayContent() string {
	if e.ContentTranslated != "" {
		return e.ContentTranslated
	}
	return e.Content
}

// MatchTerms returns every term the entry can be matched on: the primary
// keyword, the translated keyword, and any secondary aliases.
func (e LoreEntry) MatchTerms() []string {
	terms := []string{e.Keyword}
	if e.KeywordTranslated != "" {
		terms = append(terms, e.KeywordTranslated)
	}
	if e.Aliases != "" {
		for _, a := range strings.Split(e.Aliases, ",") {
			if a = strings.TrimSpace(a); a != "" {
				terms = append(terms, a)
			}
		}
	}
	return terms
}

// VisitLog is one persisted record of an inbound visit.
type VisitLog struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	VisitorID   string    `json:"visitor_id"`
	VisitorName string    `json:"visitor_name"`
	CallbackURL string    `json:"callback_url,omitempty"`
}

// Relationship tracks long-term affinity with a visitor across visits.
type Relationship struct {
	VisitorID     string    `json:"visitor_id"`
	VisitorName   string    `json:"visitor_name"`
	Affinity      int       `json:"affinity"`
	FirstMet      time.Time `json:"first_met"`
	LastMet       time.Time `json:"last_met"`
	MemorySummary string    `json:"memory_summary,omitempty"`
}

// ConversationTurn is one persisted side of an exchange within a session.
type ConversationTurn struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	VisitorID string    `json:"visitor_id"`
	Sender    string    `json:"sender"` // "visitor" or "host"
	Message   string    `json:"message"`
}

// Senders recorded on conversation turns.
const (
	SenderVisitor = "visitor"
	SenderHost    = "host"
)
