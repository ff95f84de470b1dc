package room

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/roomverse/internal/model"
	"github.com/rcliao/roomverse/internal/sanitize"
)

// History is the bounded, time-ordered scene log shared by everyone in
// the room. Entries are append-only; once the cap is exceeded the oldest
// entry is evicted regardless of age.
type History struct {
	mu      sync.Mutex
	events  []model.ChatEvent
	max     int
	entropy *rand.Rand
	now     func() time.Time
}

// NewHistory creates a buffer holding at most max events.
func NewHistory(max int) *History {
	return &History{
		max:     max,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
}

// Append records a chat event. Name and content are sanitized again here;
// double-escaping upstream-sanitized text is accepted.
func (h *History) Append(senderID, senderName, content string, isHuman bool, modelName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appendLocked(senderID, senderName, content, isHuman, modelName)
}

// AppendExchange records both sides of an exchange as one atomic unit, so
// concurrent writers can never interleave between a message and its reply.
func (h *History) AppendExchange(in, out model.ChatEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appendLocked(in.SenderID, in.SenderName, in.Content, in.IsHuman, in.Model)
	h.appendLocked(out.SenderID, out.SenderName, out.Content, out.IsHuman, out.Model)
}

func (h *History) appendLocked(senderID, senderName, content string, isHuman bool, modelName string) {
	now := h.now()
	h.events = append(h.events, model.ChatEvent{
		ID:         ulid.MustNew(ulid.Timestamp(now), h.entropy).String(),
		Timestamp:  now,
		SenderID:   senderID,
		SenderName: sanitize.Clean(senderName),
		Content:    sanitize.Clean(content),
		IsHuman:    isHuman,
		Model:      modelName,
	})
	if len(h.events) > h.max {
		h.events = h.events[len(h.events)-h.max:]
	}
}

// Events returns a copy of the current buffer, oldest first.
func (h *History) Events() []model.ChatEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.ChatEvent, len(h.events))
	copy(out, h.events)
	return out
}

// Len returns the current number of buffered events.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

// RecentWindow renders the last limit events newer than the window as
// a "- name: content" transcript. Events are filtered by age first, then
// truncated to the limit, so the window is always a time-bounded suffix.
// Returns "" when nothing qualifies.
func (h *History) RecentWindow(limit int, window time.Duration) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-window)
	var recent []model.ChatEvent
	for _, e := range h.events {
		if e.Timestamp.After(cutoff) {
			recent = append(recent, e)
		}
	}
	if len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}
	if len(recent) == 0 {
		return ""
	}

	var b strings.Builder
	for _, e := range recent {
		b.WriteString("- " + e.SenderName + ": " + e.Content + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
