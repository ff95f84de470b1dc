package store

import (
	"context"
	"os"
)

// Stats holds database statistics for the stats command.
type Stats struct {
	DBPath        string      `json:"db_path"`
	DBSizeBytes   int64       `json:"db_size_bytes"`
	LoreEntries   int         `json:"lore_entries"`
	LoreEnabled   int         `json:"lore_enabled"`
	Visits        int         `json:"visits"`
	Relationships int         `json:"relationships"`
	Turns         int         `json:"conversation_turns"`
	Books         []BookStats `json:"books,omitempty"`
}

// BookStats holds per-book lore counts.
type BookStats struct {
	Book  string `json:"book"`
	Count int    `json:"count"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lore_entries`).Scan(&st.LoreEntries)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lore_entries WHERE enabled = 1`).Scan(&st.LoreEnabled)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM visit_logs`).Scan(&st.Visits)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM relationships`).Scan(&st.Relationships)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversation_turns`).Scan(&st.Turns)

	rows, err := s.db.QueryContext(ctx, `
		SELECT book, COUNT(*) as cnt
		FROM lore_entries GROUP BY book ORDER BY cnt DESC`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var b BookStats
		rows.Scan(&b.Book, &b.Count)
		st.Books = append(st.Books, b)
	}

	return st, nil
}
