package peer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestVisitAndChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/visit":
			var req VisitRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.VisitorName != "Mira" {
				t.Errorf("expected visitor name Mira, got %q", req.VisitorName)
			}
			json.NewEncoder(w).Encode(VisitResponse{
				SessionID: "01ARZ3NDEKTSV4RRFFQ69G5FAV",
				HostName:  "Ren",
				Response:  "Come in!",
			})
		case "/chat":
			var req ChatRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.SessionID != "01ARZ3NDEKTSV4RRFFQ69G5FAV" {
				t.Errorf("chat should carry the captured session id, got %q", req.SessionID)
			}
			json.NewEncoder(w).Encode(ChatResponse{Response: "Nice weather."})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	ctx := context.Background()

	v, err := c.Visit(ctx, srv.URL, VisitRequest{VisitorID: "i1", VisitorName: "Mira", Message: "hi"})
	if err != nil {
		t.Fatalf("visit: %v", err)
	}
	if v.HostName != "Ren" || v.Response != "Come in!" {
		t.Errorf("unexpected visit response: %+v", v)
	}

	ch, err := c.Chat(ctx, srv.URL, ChatRequest{VisitorID: "i1", SessionID: v.SessionID, Message: "hello"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if ch.Response != "Nice weather." {
		t.Errorf("unexpected chat response: %+v", ch)
	}
}

func TestNonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "room is full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	if _, err := c.Visit(context.Background(), srv.URL, VisitRequest{}); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestUnreachablePeer(t *testing.T) {
	c := NewClient(500 * time.Millisecond)
	_, err := c.Visit(context.Background(), "http://127.0.0.1:1", VisitRequest{})
	if err == nil {
		t.Fatal("expected transport error")
	}
}
