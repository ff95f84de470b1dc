// Package llm provides the response-generation collaborator: a client for
// any OpenAI-compatible chat completions API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rcliao/roomverse/internal/config"
)

// Turn is one prior exchange side passed as conversation context.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Params describes one generation request.
type Params struct {
	// SpeakerName is the party the character is replying to.
	SpeakerName string
	// Message is the latest inbound message.
	Message string
	// PriorTurns is recent conversation context, oldest first.
	PriorTurns []Turn
	// RelationshipContext is an optional blurb about the speaker.
	RelationshipContext string
	// SceneContext is the optional shared-room transcript window.
	SceneContext string
	// LoreContext is optional retrieved background knowledge.
	LoreContext string
	// RoleHint overrides how the speaker is framed in the system prompt,
	// e.g. when the character is visiting another room as an agent.
	RoleHint string
}

// Generator produces a character reply. Implementations may fail; callers
// substitute a neutral fallback rather than propagating the error.
type Generator interface {
	Generate(ctx context.Context, p Params) (string, error)
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL   string
	apiKey    string
	model     string
	character config.Character
	client    *http.Client
}

// NewClient creates a generation client for the configured backend.
func NewClient(cfg config.LLM, character config.Character) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		character: character,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate builds the character system prompt and requests a completion.
func (c *Client) Generate(ctx context.Context, p Params) (string, error) {
	messages := []chatMessage{{Role: "system", Content: c.systemPrompt(p)}}
	for _, t := range p.PriorTurns {
		messages = append(messages, chatMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: p.Message})

	body, _ := json.Marshal(chatRequest{Model: c.model, Messages: messages, Temperature: 0.7})
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("completion error %d: %s", resp.StatusCode, string(b))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	return result.Choices[0].Message.Content, nil
}

func (c *Client) systemPrompt(p Params) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.\n", c.character.Name)
	if c.character.Persona != "" {
		fmt.Fprintf(&b, "Persona: %s\n", c.character.Persona)
	}
	if c.character.SystemPrompt != "" {
		b.WriteString(c.character.SystemPrompt + "\n")
	}

	if p.RoleHint != "" {
		b.WriteString(p.RoleHint + "\n")
	} else {
		fmt.Fprintf(&b, "You are currently talking to a visitor named %s.\n", p.SpeakerName)
	}

	if p.RelationshipContext != "" {
		fmt.Fprintf(&b, "\n[Relationship Context]\n%s\n", p.RelationshipContext)
	}
	if p.SceneContext != "" {
		fmt.Fprintf(&b, "\n[Recent Room Conversation]\n%s\n", p.SceneContext)
	}
	if p.LoreContext != "" {
		fmt.Fprintf(&b, "\n%s\n", p.LoreContext)
	}
	return b.String()
}
