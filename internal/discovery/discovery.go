// Package discovery announces this room to a directory service and lists
// other known rooms.
package discovery

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

// Room is a directory listing of a reachable room.
type Room struct {
	UUID string `json:"uuid"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Client announces presence and lists rooms.
type Client interface {
	Announce(ctx context.Context, uuid, url, name string) error
	ListRooms(ctx context.Context) ([]Room, error)
}

// Noop is used when no discovery service is configured.
type Noop struct{}

func (Noop) Announce(context.Context, string, string, string) error { return nil }
func (Noop) ListRooms(context.Context) ([]Room, error)              { return nil, nil }

// HTTPClient talks to a discovery service exposing
// POST /announce {uuid, url, name} and GET /rooms.
type HTTPClient struct {
	apiURL string
	client *http.Client
}

// NewHTTPClient creates a discovery client for the given service URL.
func NewHTTPClient(apiURL string) *HTTPClient {
	return &HTTPClient{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Announce registers this room's public URL with the directory.
func (c *HTTPClient) Announce(ctx context.Context, uuid, url, name string) error {
	body, _ := json.Marshal(Room{UUID: uuid, URL: url, Name: name})
	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL+"/announce", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("announce failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("announce error %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

// ListRooms fetches the current directory listing.
func (c *HTTPClient) ListRooms(ctx context.Context) ([]Room, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.apiURL+"/rooms", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list rooms failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list rooms error %d: %s", resp.StatusCode, string(b))
	}

	var rooms []Room
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}
