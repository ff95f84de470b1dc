package room

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/roomverse/internal/config"
	"github.com/rcliao/roomverse/internal/llm"
	"github.com/rcliao/roomverse/internal/store"
	"github.com/rcliao/roomverse/internal/translate"
)

// fakeGen is a scripted Generator recording every call.
type fakeGen struct {
	mu    sync.Mutex
	calls []llm.Params
	reply func(p llm.Params) (string, error)
}

func (f *fakeGen) Generate(_ context.Context, p llm.Params) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, p)
	f.mu.Unlock()
	if f.reply != nil {
		return f.reply(p)
	}
	return "a reply", nil
}

func (f *fakeGen) lastCall(t *testing.T) llm.Params {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("generator was never called")
	}
	return f.calls[len(f.calls)-1]
}

func testConfig(maxVisitors int) *config.Config {
	return &config.Config{
		Character: config.Character{Name: "Mira", Persona: "a quiet librarian"},
		Room: config.Room{
			MaxVisitors:      maxVisitors,
			Open:             true,
			HistoryLimit:     100,
			VisitorTTLSecs:   600,
			SceneWindowSecs:  300,
			SceneWindowLimit: 10,
		},
	}
}

func newTestRoom(t *testing.T, maxVisitors int, gen llm.Generator) (*Room, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "room.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if gen == nil {
		gen = &fakeGen{}
	}
	return New(testConfig(maxVisitors), s, gen, translate.Noop{}, zap.NewNop()), s
}

func TestVisitHappyPath(t *testing.T) {
	gen := &fakeGen{reply: func(llm.Params) (string, error) { return "Welcome in.", nil }}
	r, s := newTestRoom(t, 5, gen)
	ctx := context.Background()

	res, err := r.Visit(ctx, VisitParams{VisitorID: "v1", VisitorName: "Alice", Message: "hello", IsHuman: true})
	if err != nil {
		t.Fatalf("visit: %v", err)
	}
	if res.SessionID == "" {
		t.Error("expected a session id")
	}
	if res.HostName != "Mira" || res.Response != "Welcome in." {
		t.Errorf("unexpected result: %+v", res)
	}

	events := r.History().Events()
	if len(events) != 2 {
		t.Fatalf("expected visitor message + reply in history, got %d", len(events))
	}
	if events[0].Content != "hello" || events[1].Content != "Welcome in." {
		t.Errorf("history order wrong: %+v", events)
	}

	rel, err := s.Relationship(ctx, "v1")
	if err != nil || rel == nil {
		t.Fatalf("visit should log a relationship, got %v err %v", rel, err)
	}

	turns, err := s.Turns(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	if len(turns) != 2 {
		t.Errorf("expected persisted exchange, got %d turns", len(turns))
	}
}

func TestVisitCapacity(t *testing.T) {
	r, _ := newTestRoom(t, 1, nil)
	ctx := context.Background()

	if _, err := r.Visit(ctx, VisitParams{VisitorID: "v1", VisitorName: "A", Message: "hi"}); err != nil {
		t.Fatalf("first visit: %v", err)
	}
	if _, err := r.Visit(ctx, VisitParams{VisitorID: "v2", VisitorName: "B", Message: "hi"}); !errors.Is(err, ErrRoomFull) {
		t.Errorf("expected ErrRoomFull, got %v", err)
	}
	// The present visitor is always re-accepted.
	if _, err := r.Visit(ctx, VisitParams{VisitorID: "v1", VisitorName: "A", Message: "again"}); err != nil {
		t.Errorf("present visitor rejected: %v", err)
	}
}

func TestVisitCapacityUnderConcurrency(t *testing.T) {
	r, _ := newTestRoom(t, 1, nil)

	const visitors = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted, rejected := 0, 0
	for i := 0; i < visitors; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("v%d", i)
			_, err := r.Visit(context.Background(), VisitParams{VisitorID: name, VisitorName: name, Message: "hi"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, ErrRoomFull):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if admitted != 1 || rejected != visitors-1 {
		t.Errorf("capacity-1 room admitted %d and rejected %d of %d simultaneous visitors",
			admitted, rejected, visitors)
	}
	if got := r.Registry().ActiveCount(); got != 1 {
		t.Errorf("active count = %d, want 1", got)
	}
}

func TestVisitClosedRoom(t *testing.T) {
	r, _ := newTestRoom(t, 5, nil)
	r.ToggleOpen() // now closed

	_, err := r.Visit(context.Background(), VisitParams{VisitorID: "v1", VisitorName: "A", Message: "hi"})
	if !errors.Is(err, ErrRoomClosed) {
		t.Errorf("expected ErrRoomClosed, got %v", err)
	}
	if r.CanAccept("v1") {
		t.Error("closed room must not accept")
	}
}

func TestGenerationIsSerialized(t *testing.T) {
	// A slow generator: if two regions overlapped, both would read the
	// in-flight counter as nonzero.
	var inFlight, maxInFlight int32
	var mu sync.Mutex
	gen := &fakeGen{reply: func(p llm.Params) (string, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return "reply to " + p.SpeakerName, nil
	}}
	r, _ := newTestRoom(t, 5, gen)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("V%d", i)
			_, err := r.Visit(context.Background(), VisitParams{
				VisitorID: name, VisitorName: name, Message: "hello from " + name,
			})
			if err != nil {
				t.Errorf("visit %s: %v", name, err)
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight != 1 {
		t.Errorf("generation regions overlapped: max in flight = %d", maxInFlight)
	}

	// Each exchange lands as an adjacent message/reply pair.
	events := r.History().Events()
	if len(events) != 8 {
		t.Fatalf("expected 8 events, got %d", len(events))
	}
	for i := 0; i < len(events); i += 2 {
		if !strings.HasPrefix(events[i].Content, "hello from ") {
			t.Fatalf("event %d should be a visitor message, got %q", i, events[i].Content)
		}
		want := "reply to " + events[i].SenderName
		if events[i+1].Content != want {
			t.Errorf("reply out of causal order at %d: got %q want %q", i+1, events[i+1].Content, want)
		}
	}
}

func TestGenerationFailureFallsBack(t *testing.T) {
	gen := &fakeGen{reply: func(llm.Params) (string, error) {
		return "", errors.New("backend exploded")
	}}
	r, _ := newTestRoom(t, 5, gen)

	res, err := r.Visit(context.Background(), VisitParams{VisitorID: "v1", VisitorName: "A", Message: "hi"})
	if err != nil {
		t.Fatalf("generation failure must not surface: %v", err)
	}
	if res.Response != FallbackReply {
		t.Errorf("expected fallback reply, got %q", res.Response)
	}
	if !r.IsOpen() || !r.CanAccept("v2") {
		t.Error("room should remain open and accepting after a failure")
	}
}

func TestTeachCommand(t *testing.T) {
	gen := &fakeGen{}
	r, s := newTestRoom(t, 5, gen)
	ctx := context.Background()

	res, err := r.Visit(ctx, VisitParams{VisitorID: "v1", VisitorName: "A", Message: "/teach dragon sleeps-under-the-mountain"})
	if err != nil {
		t.Fatalf("teach visit: %v", err)
	}
	if !strings.Contains(res.Response, "dragon") {
		t.Errorf("expected acknowledgement naming the keyword, got %q", res.Response)
	}

	gen.mu.Lock()
	calls := len(gen.calls)
	gen.mu.Unlock()
	if calls != 0 {
		t.Error("teach command must skip generation")
	}

	entries, _ := s.ListLore(ctx, true)
	if len(entries) != 1 || entries[0].Keyword != "dragon" {
		t.Fatalf("expected taught entry, got %+v", entries)
	}
	if entries[0].Author != "visitor" {
		t.Errorf("taught entry should carry visitor provenance, got %q", entries[0].Author)
	}
}

func TestTeachRequiresExactShape(t *testing.T) {
	gen := &fakeGen{}
	r, s := newTestRoom(t, 5, gen)
	ctx := context.Background()

	// Too many tokens: treated as conversation, not authoring.
	r.Visit(ctx, VisitParams{VisitorID: "v1", VisitorName: "A", Message: "/teach dragon sleeps under the mountain"})
	entries, _ := s.ListLore(ctx, false)
	if len(entries) != 0 {
		t.Errorf("malformed teach should not author lore: %+v", entries)
	}
	gen.lastCall(t) // generation must have run instead
}

func TestSceneContextOnlyWithMultipleVisitors(t *testing.T) {
	gen := &fakeGen{}
	r, _ := newTestRoom(t, 5, gen)
	ctx := context.Background()

	r.Visit(ctx, VisitParams{VisitorID: "v1", VisitorName: "A", Message: "first message"})
	if p := gen.lastCall(t); p.SceneContext != "" {
		t.Errorf("1:1 conversation should not inject scene context, got %q", p.SceneContext)
	}

	r.Visit(ctx, VisitParams{VisitorID: "v2", VisitorName: "B", Message: "second message"})
	if p := gen.lastCall(t); p.SceneContext == "" {
		t.Error("multi-party conversation should inject scene context")
	} else if !strings.Contains(p.SceneContext, "first message") {
		t.Errorf("scene context should carry earlier events, got %q", p.SceneContext)
	}
}

func TestLoreContextInjected(t *testing.T) {
	gen := &fakeGen{}
	r, s := newTestRoom(t, 5, gen)
	ctx := context.Background()

	s.UpsertLore(ctx, store.LoreParams{Keyword: "sword", Content: "an heirloom", Enabled: true})
	r.Visit(ctx, VisitParams{VisitorID: "v1", VisitorName: "A", Message: "about that sword"})

	if p := gen.lastCall(t); !strings.Contains(p.LoreContext, "an heirloom") {
		t.Errorf("expected lore context, got %q", p.LoreContext)
	}
}

func TestChatContinuesSession(t *testing.T) {
	gen := &fakeGen{}
	r, s := newTestRoom(t, 5, gen)
	ctx := context.Background()

	res, err := r.Visit(ctx, VisitParams{VisitorID: "v1", VisitorName: "Alice", Message: "hello"})
	if err != nil {
		t.Fatalf("visit: %v", err)
	}

	res2, err := r.Visit(ctx, VisitParams{VisitorID: "v1", Message: "still here", SessionID: res.SessionID})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if res2.SessionID != res.SessionID {
		t.Errorf("chat should keep the session id, got %q", res2.SessionID)
	}

	turns, _ := s.Turns(ctx, res.SessionID)
	if len(turns) != 4 {
		t.Errorf("expected 4 persisted turns across the session, got %d", len(turns))
	}

	// The registered display name is reused for in-session messages, and
	// the earlier exchange rides along as conversation context.
	p := gen.lastCall(t)
	if p.SpeakerName != "Alice" {
		t.Errorf("chat should resolve the registered name, got %q", p.SpeakerName)
	}
	if len(p.PriorTurns) != 2 {
		t.Fatalf("expected the first exchange as prior turns, got %d", len(p.PriorTurns))
	}
	if p.PriorTurns[0].Role != "user" || p.PriorTurns[0].Content != "hello" {
		t.Errorf("unexpected first prior turn: %+v", p.PriorTurns[0])
	}
	if p.PriorTurns[1].Role != "assistant" {
		t.Errorf("second prior turn should be the host reply: %+v", p.PriorTurns[1])
	}
}

func TestChatReadmitsLapsedVisitor(t *testing.T) {
	r, _ := newTestRoom(t, 5, nil)
	ctx := context.Background()

	res, err := r.Visit(ctx, VisitParams{VisitorID: "v1", VisitorName: "Alice", Message: "hello"})
	if err != nil {
		t.Fatalf("visit: %v", err)
	}

	// Let the registry entry lapse, then continue the session. The chat
	// must re-create the entry, not leave the visitor uncounted.
	r.registry.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	if got := r.Registry().ActiveCount(); got != 0 {
		t.Fatalf("entry should have lapsed, count = %d", got)
	}

	if _, err := r.Visit(ctx, VisitParams{VisitorID: "v1", Message: "still here", SessionID: res.SessionID}); err != nil {
		t.Fatalf("chat after lapse: %v", err)
	}
	if got := r.Registry().ActiveCount(); got != 1 {
		t.Errorf("lapsed visitor should be re-admitted, count = %d", got)
	}
}

func TestToggleOpen(t *testing.T) {
	r, _ := newTestRoom(t, 5, nil)

	if !r.Status().IsOpen {
		t.Fatal("room should start open")
	}
	if open := r.ToggleOpen(); open {
		t.Error("toggle should close the room")
	}
	if open := r.ToggleOpen(); !open {
		t.Error("second toggle should reopen")
	}
}
