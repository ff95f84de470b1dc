package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/roomverse/internal/model"
)

// UpsertLore creates or replaces the entry for its primary keyword.
// Keywords are stored lowercased so retrieval matching stays consistent.
func (s *SQLiteStore) UpsertLore(ctx context.Context, p LoreParams) (*model.LoreEntry, error) {
	keyword := strings.ToLower(strings.TrimSpace(p.Keyword))
	if keyword == "" {
		return nil, fmt.Errorf("lore keyword is required")
	}
	if strings.TrimSpace(p.Content) == "" {
		return nil, fmt.Errorf("lore content is required")
	}

	book := p.Book
	if book == "" {
		book = "default"
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lore_entries
		   (keyword, keyword_translated, content, content_translated, book, aliases, is_constant, enabled, author, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(keyword) DO UPDATE SET
		   keyword_translated = excluded.keyword_translated,
		   content            = excluded.content,
		   content_translated = excluded.content_translated,
		   book               = excluded.book,
		   aliases            = excluded.aliases,
		   is_constant        = excluded.is_constant,
		   enabled            = excluded.enabled,
		   author             = excluded.author`,
		keyword, nullable(p.KeywordTranslated), p.Content, nullable(p.ContentTranslated),
		book, nullable(p.Aliases), boolInt(p.Constant), boolInt(p.Enabled),
		nullable(p.Author), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("upsert lore: %w", err)
	}

	return &model.LoreEntry{
		Keyword:           keyword,
		KeywordTranslated: p.KeywordTranslated,
		Content:           p.Content,
		ContentTranslated: p.ContentTranslated,
		Book:              book,
		Aliases:           p.Aliases,
		Constant:          p.Constant,
		Enabled:           p.Enabled,
		Author:            p.Author,
		CreatedAt:         now,
	}, nil
}

// ListLore returns entries in keyword order, optionally only enabled ones.
func (s *SQLiteStore) ListLore(ctx context.Context, enabledOnly bool) ([]model.LoreEntry, error) {
	query := `SELECT keyword, keyword_translated, content, content_translated, book,
	                 aliases, is_constant, enabled, author, created_at
	          FROM lore_entries`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY keyword`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.LoreEntry
	for rows.Next() {
		e, err := scanLore(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteLore removes the entry for a keyword.
func (s *SQLiteStore) DeleteLore(ctx context.Context, keyword string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM lore_entries WHERE keyword = ?`, strings.ToLower(strings.TrimSpace(keyword)))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrLoreNotFound, keyword)
	}
	return nil
}

func scanLore(row scanner) (model.LoreEntry, error) {
	var e model.LoreEntry
	var kwTr, contentTr, aliases, author sql.NullString
	var constant, enabled int
	var createdAt string

	err := row.Scan(&e.Keyword, &kwTr, &e.Content, &contentTr, &e.Book,
		&aliases, &constant, &enabled, &author, &createdAt)
	if err != nil {
		return e, err
	}

	e.KeywordTranslated = kwTr.String
	e.ContentTranslated = contentTr.String
	e.Aliases = aliases.String
	e.Author = author.String
	e.Constant = constant != 0
	e.Enabled = enabled != 0
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return e, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
