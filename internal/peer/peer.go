// Package peer is the transport client for talking to other rooms.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// VisitRequest opens a conversation with a remote room.
type VisitRequest struct {
	VisitorID   string `json:"visitor_id"`
	VisitorName string `json:"visitor_name"`
	Message     string `json:"message"`
	CallbackURL string `json:"callback_url,omitempty"`
	Model       string `json:"model,omitempty"`
}

// VisitResponse is the remote room's greeting.
type VisitResponse struct {
	SessionID string `json:"session_id"`
	HostName  string `json:"host_name"`
	Response  string `json:"response"`
}

// ChatRequest continues an open conversation.
type ChatRequest struct {
	VisitorID string `json:"visitor_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ChatResponse is the remote room's reply to a chat turn.
type ChatResponse struct {
	Response string `json:"response"`
}

// Transport sends visit and chat requests to a remote room.
type Transport interface {
	Visit(ctx context.Context, baseURL string, req VisitRequest) (*VisitResponse, error)
	Chat(ctx context.Context, baseURL string, req ChatRequest) (*ChatResponse, error)
}

// Client is the HTTP Transport implementation.
type Client struct {
	client *http.Client
}

// NewClient creates a peer client with a bounded per-request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{client: &http.Client{Timeout: timeout}}
}

// Visit opens a conversation with the room at baseURL.
func (c *Client) Visit(ctx context.Context, baseURL string, req VisitRequest) (*VisitResponse, error) {
	var out VisitResponse
	if err := c.post(ctx, baseURL, "/visit", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chat sends one turn of an open conversation.
func (c *Client) Chat(ctx context.Context, baseURL string, req ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.post(ctx, baseURL, "/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, baseURL, path string, in, out interface{}) error {
	body, _ := json.Marshal(in)
	req, err := http.NewRequestWithContext(ctx, "POST",
		strings.TrimSuffix(baseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("peer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("peer error %d: %s", resp.StatusCode, string(b))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
