// Package room implements the orchestration core: admission, shared scene
// history, lore retrieval, serialized response generation, and the
// autonomous outbound agent loop.
package room

import (
	"sync"
	"time"

	"github.com/rcliao/roomverse/internal/model"
	"github.com/rcliao/roomverse/internal/sanitize"
)

// Registry tracks currently-present visitors and enforces capacity.
// Expiry is lazy: stale entries are purged on the next capacity check or
// count query, never by a background sweep.
type Registry struct {
	mu       sync.Mutex
	visitors map[string]*model.Visitor
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewRegistry creates a registry with the given capacity and idle TTL.
func NewRegistry(capacity int, ttl time.Duration) *Registry {
	return &Registry{
		visitors: make(map[string]*model.Visitor),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// CanAccept reports whether a visitor could enter right now: already
// present, or the post-expiry count is below capacity. This is a
// read-only query for status display; admission itself goes through
// Admit so the check and the insert share one critical section.
func (r *Registry) CanAccept(visitorID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeLocked()

	if _, ok := r.visitors[visitorID]; ok {
		return true
	}
	return len(r.visitors) < r.capacity
}

// Admit upserts a visitor, enforcing capacity and the upsert under one
// lock so two concurrent newcomers can never both slip past the count.
// A present visitor is always re-admitted: empty fields leave the
// stored info alone, non-empty ones refresh it, and last-seen always
// advances. Returns ErrRoomFull when a newcomer finds no free slot.
func (r *Registry) Admit(visitorID, name, callbackURL, modelName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeLocked()

	v, ok := r.visitors[visitorID]
	if !ok {
		if len(r.visitors) >= r.capacity {
			return ErrRoomFull
		}
		v = &model.Visitor{ID: visitorID}
		r.visitors[visitorID] = v
	}
	if name != "" {
		v.Name = sanitize.Clean(name)
	}
	if callbackURL != "" {
		v.CallbackURL = callbackURL
	}
	if modelName != "" {
		v.Model = modelName
	}
	v.LastSeen = r.now()
	return nil
}

// Remove drops a visitor explicitly (leave).
func (r *Registry) Remove(visitorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.visitors, visitorID)
}

// ActiveCount returns the post-expiry number of distinct visitors.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeLocked()
	return len(r.visitors)
}

// ListActive returns post-expiry copies of all present visitors.
func (r *Registry) ListActive() []model.Visitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeLocked()

	out := make([]model.Visitor, 0, len(r.visitors))
	for _, v := range r.visitors {
		out = append(out, *v)
	}
	return out
}

func (r *Registry) purgeLocked() {
	cutoff := r.now().Add(-r.ttl)
	for id, v := range r.visitors {
		if v.LastSeen.Before(cutoff) {
			delete(r.visitors, id)
		}
	}
}
