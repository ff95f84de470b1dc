package store

import (
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	// entropy serves concurrent NewID callers; the locked monotonic
	// reader also keeps same-millisecond ULIDs distinct.
	entropy *ulid.LockedMonotonicReader
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db: db,
		entropy: &ulid.LockedMonotonicReader{
			MonotonicReader: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		},
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// NewID returns a fresh ULID, used for row ids and chat session ids.
func (s *SQLiteStore) NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// parseSessionID validates a caller-supplied session identifier.
func parseSessionID(sessionID string) (string, error) {
	id, err := ulid.Parse(sessionID)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrMalformedSession, sessionID)
	}
	return id.String(), nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS lore_entries (
		keyword             TEXT PRIMARY KEY,
		keyword_translated  TEXT,
		content             TEXT NOT NULL,
		content_translated  TEXT,
		book                TEXT NOT NULL DEFAULT 'default',
		aliases             TEXT,
		is_constant         INTEGER NOT NULL DEFAULT 0,
		enabled             INTEGER NOT NULL DEFAULT 1,
		author              TEXT,
		created_at          TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lore_enabled ON lore_entries(enabled);
	CREATE INDEX IF NOT EXISTS idx_lore_book ON lore_entries(book);

	CREATE TABLE IF NOT EXISTS visit_logs (
		id           TEXT PRIMARY KEY,
		timestamp    TEXT NOT NULL,
		visitor_id   TEXT NOT NULL,
		visitor_name TEXT NOT NULL,
		callback_url TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_visits_visitor ON visit_logs(visitor_id);

	CREATE TABLE IF NOT EXISTS relationships (
		visitor_id     TEXT PRIMARY KEY,
		visitor_name   TEXT NOT NULL,
		affinity       INTEGER NOT NULL DEFAULT 0,
		first_met      TEXT NOT NULL,
		last_met       TEXT NOT NULL,
		memory_summary TEXT
	);

	CREATE TABLE IF NOT EXISTS conversation_turns (
		id         TEXT PRIMARY KEY,
		timestamp  TEXT NOT NULL,
		session_id TEXT NOT NULL,
		visitor_id TEXT NOT NULL,
		sender     TEXT NOT NULL,
		message    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON conversation_turns(session_id);
	CREATE INDEX IF NOT EXISTS idx_turns_visitor ON conversation_turns(visitor_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}
