// Package translate provides best-effort machine translation for display
// text. Failures fall back to the original text; translation is never a
// hard dependency of the room.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Translator converts text to a target language. Implementations are
// best-effort: on failure they return the original text and the error so
// callers can log and move on.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// Noop returns text unchanged. Used when no display language is configured.
type Noop struct{}

func (Noop) Translate(_ context.Context, text, _ string) (string, error) {
	return text, nil
}

// GoogleClient calls the public translate endpoint (single-segment,
// auto-detected source language).
type GoogleClient struct {
	baseURL string
	client  *http.Client
}

// NewGoogleClient creates a translator. baseURL is overridable for tests;
// empty means the public endpoint.
func NewGoogleClient(baseURL string) *GoogleClient {
	if baseURL == "" {
		baseURL = "https://translate.googleapis.com"
	}
	return &GoogleClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Translate converts text to targetLang. On any failure the original text
// is returned alongside the error.
func (g *GoogleClient) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if text == "" || targetLang == "" {
		return text, nil
	}

	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "auto")
	q.Set("tl", targetLang)
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, "GET",
		g.baseURL+"/translate_a/single?"+q.Encode(), nil)
	if err != nil {
		return text, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return text, fmt.Errorf("translate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return text, fmt.Errorf("translate error %d: %s", resp.StatusCode, string(b))
	}

	// Response shape: [[[ "translated", "original", ... ], ...], ...]
	var payload []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return text, err
	}
	if len(payload) == 0 {
		return text, fmt.Errorf("empty translate response")
	}

	var segments [][]json.RawMessage
	if err := json.Unmarshal(payload[0], &segments); err != nil {
		return text, err
	}

	var out string
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		var piece string
		if err := json.Unmarshal(seg[0], &piece); err != nil {
			continue
		}
		out += piece
	}
	if out == "" {
		return text, fmt.Errorf("no translation segments")
	}
	return out, nil
}
