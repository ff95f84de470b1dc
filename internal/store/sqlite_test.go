package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewIDUniqueUnderConcurrency(t *testing.T) {
	s := newTestStore(t)

	const workers, perWorker = 8, 200
	ids := make(chan string, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				ids <- s.NewID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, workers*perWorker)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id minted: %q", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*perWorker {
		t.Errorf("expected %d distinct ids, got %d", workers*perWorker, len(seen))
	}
}

func TestLoreUpsertAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e, err := s.UpsertLore(ctx, LoreParams{
		Keyword: "Sword", Content: "a blade forged by the smith", Enabled: true, Author: "host",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if e.Keyword != "sword" {
		t.Errorf("keyword should be lowercased, got %q", e.Keyword)
	}
	if e.Book != "default" {
		t.Errorf("expected default book, got %q", e.Book)
	}

	entries, err := s.ListLore(ctx, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Content != "a blade forged by the smith" {
		t.Errorf("content mismatch: %q", entries[0].Content)
	}
}

func TestLoreUpsertReplacesExisting(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.UpsertLore(ctx, LoreParams{Keyword: "sword", Content: "v1", Enabled: true})
	s.UpsertLore(ctx, LoreParams{Keyword: "sword", Content: "v2", Enabled: true, Author: "visitor"})

	entries, _ := s.ListLore(ctx, false)
	if len(entries) != 1 {
		t.Fatalf("upsert should not duplicate, got %d entries", len(entries))
	}
	if entries[0].Content != "v2" {
		t.Errorf("expected replaced content 'v2', got %q", entries[0].Content)
	}
	if entries[0].Author != "visitor" {
		t.Errorf("expected author 'visitor', got %q", entries[0].Author)
	}
}

func TestLoreEnabledFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.UpsertLore(ctx, LoreParams{Keyword: "a", Content: "x", Enabled: true})
	s.UpsertLore(ctx, LoreParams{Keyword: "b", Content: "y", Enabled: false})

	all, _ := s.ListLore(ctx, false)
	if len(all) != 2 {
		t.Errorf("expected 2 total, got %d", len(all))
	}
	enabled, _ := s.ListLore(ctx, true)
	if len(enabled) != 1 || enabled[0].Keyword != "a" {
		t.Errorf("expected only enabled entry 'a', got %+v", enabled)
	}
}

func TestLoreDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.UpsertLore(ctx, LoreParams{Keyword: "a", Content: "x", Enabled: true})
	if err := s.DeleteLore(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteLore(ctx, "a"); !errors.Is(err, ErrLoreNotFound) {
		t.Errorf("expected ErrLoreNotFound, got %v", err)
	}
}

func TestLogVisitUpsertsRelationship(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r1, err := s.LogVisit(ctx, "v1", "Alice", "")
	if err != nil {
		t.Fatalf("log visit: %v", err)
	}
	if r1.Affinity != 0 {
		t.Errorf("new relationship should start at 0 affinity, got %d", r1.Affinity)
	}

	r2, err := s.LogVisit(ctx, "v1", "Alice Prime", "http://cb")
	if err != nil {
		t.Fatalf("second visit: %v", err)
	}
	if r2.VisitorName != "Alice Prime" {
		t.Errorf("name should refresh, got %q", r2.VisitorName)
	}
	if !r2.FirstMet.Equal(r1.FirstMet) {
		t.Errorf("first_met should not change on repeat visit")
	}
}

func TestRelationshipUnknownVisitor(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r, err := s.Relationship(ctx, "nobody")
	if err != nil {
		t.Fatalf("relationship: %v", err)
	}
	if r != nil {
		t.Errorf("expected nil for unknown visitor, got %+v", r)
	}
}

func TestConversationTurns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sid := s.NewID()
	s.AppendTurn(ctx, sid, "v1", "visitor", "hello")
	s.AppendTurn(ctx, sid, "v1", "host", "hi there")

	turns, err := s.Turns(ctx, sid)
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Sender != "visitor" || turns[1].Sender != "host" {
		t.Errorf("turns out of order: %+v", turns)
	}

	if err := s.DeleteTurns(ctx, sid); err != nil {
		t.Fatalf("delete turns: %v", err)
	}
	turns, _ = s.Turns(ctx, sid)
	if len(turns) != 0 {
		t.Errorf("expected empty after delete, got %d", len(turns))
	}
}

func TestMalformedSessionID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Turns(ctx, "not-a-ulid"); !errors.Is(err, ErrMalformedSession) {
		t.Errorf("expected ErrMalformedSession from Turns, got %v", err)
	}
	if err := s.DeleteTurns(ctx, "not-a-ulid"); !errors.Is(err, ErrMalformedSession) {
		t.Errorf("expected ErrMalformedSession from DeleteTurns, got %v", err)
	}
	if err := s.AppendTurn(ctx, "???", "v1", "visitor", "x"); !errors.Is(err, ErrMalformedSession) {
		t.Errorf("expected ErrMalformedSession from AppendTurn, got %v", err)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	s.UpsertLore(ctx, LoreParams{Keyword: "a", Content: "x", Enabled: true})
	s.UpsertLore(ctx, LoreParams{Keyword: "b", Content: "y", Enabled: false, Book: "world"})
	s.LogVisit(ctx, "v1", "Alice", "")

	st, err := s.Stats(ctx, dbPath)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.LoreEntries != 2 || st.LoreEnabled != 1 {
		t.Errorf("lore counts wrong: %+v", st)
	}
	if st.Visits != 1 || st.Relationships != 1 {
		t.Errorf("visit counts wrong: %+v", st)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("db file missing: %v", err)
	}
}
