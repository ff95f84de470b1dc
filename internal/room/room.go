package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/roomverse/internal/config"
	"github.com/rcliao/roomverse/internal/llm"
	"github.com/rcliao/roomverse/internal/model"
	"github.com/rcliao/roomverse/internal/sanitize"
	"github.com/rcliao/roomverse/internal/store"
	"github.com/rcliao/roomverse/internal/translate"
)

// ErrRoomFull is returned when admission is denied on capacity.
var ErrRoomFull = errors.New("room is at capacity")

// ErrRoomClosed is returned when the room is not accepting visitors.
var ErrRoomClosed = errors.New("room is closed")

// FallbackReply is substituted when the generation backend fails.
const FallbackReply = "..."

// TeachPrefix marks an in-conversation lore-authoring command:
// "/teach <keyword> <content>".
const TeachPrefix = "/teach"

// maxPriorTurns bounds how much of a session transcript is replayed as
// generation context.
const maxPriorTurns = 20

// Room is the single conversational space hosted by this process. All
// response generation is serialized through one mutex so the shared
// transcript stays causally ordered even while the slow model call runs.
type Room struct {
	cfg      *config.Config
	registry *Registry
	history  *History
	lore     *LoreEngine
	gen      llm.Generator
	tr       translate.Translator
	db       store.Store
	log      *zap.Logger

	genMu sync.Mutex // the generation serializer

	stateMu sync.Mutex
	open    bool
}

// New assembles a room from its collaborators.
func New(cfg *config.Config, db store.Store, gen llm.Generator, tr translate.Translator, log *zap.Logger) *Room {
	return &Room{
		cfg:      cfg,
		registry: NewRegistry(cfg.Room.MaxVisitors, cfg.VisitorTTL()),
		history:  NewHistory(cfg.Room.HistoryLimit),
		lore:     NewLoreEngine(db, 2),
		gen:      gen,
		tr:       tr,
		db:       db,
		log:      log,
		open:     cfg.Room.Open,
	}
}

// Registry exposes the visitor registry.
func (r *Room) Registry() *Registry { return r.registry }

// History exposes the shared scene history buffer.
func (r *Room) History() *History { return r.history }

// Lore exposes the retrieval engine.
func (r *Room) Lore() *LoreEngine { return r.lore }

// HostName returns the character's display name.
func (r *Room) HostName() string { return r.cfg.Character.Name }

// Status describes the room to callers.
type Status struct {
	IsOpen      bool   `json:"is_open"`
	HostName    string `json:"host_name"`
	ActiveCount int    `json:"active_visitor_count"`
}

// Status reports whether the room is open and how many visitors are present.
func (r *Room) Status() Status {
	r.stateMu.Lock()
	open := r.open
	r.stateMu.Unlock()
	return Status{IsOpen: open, HostName: r.HostName(), ActiveCount: r.registry.ActiveCount()}
}

// ToggleOpen flips the open flag and returns the new state.
func (r *Room) ToggleOpen() bool {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	r.open = !r.open
	return r.open
}

// IsOpen reports whether the room accepts visitors.
func (r *Room) IsOpen() bool {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.open
}

// CanAccept reports whether visitorID may enter: the room must be open
// and either the visitor is already present or a slot is free.
func (r *Room) CanAccept(visitorID string) bool {
	return r.IsOpen() && r.registry.CanAccept(visitorID)
}

// VisitParams describes an inbound visit or chat message.
type VisitParams struct {
	VisitorID   string
	VisitorName string
	Message     string
	CallbackURL string
	Model       string
	IsHuman     bool
	// SessionID continues an existing conversation; empty starts one.
	SessionID string
}

// VisitResult is the room's reply.
type VisitResult struct {
	SessionID string `json:"session_id"`
	HostName  string `json:"host_name"`
	Response  string `json:"response"`
}

// Visit admits a visitor and produces the character's reply to their
// message. Admission, sanitization and teach-command handling run outside
// the generation serializer; only the generate-and-publish step is
// exclusive.
func (r *Room) Visit(ctx context.Context, p VisitParams) (*VisitResult, error) {
	if !r.IsOpen() {
		return nil, ErrRoomClosed
	}
	// Admission is atomic: capacity check and upsert share the registry
	// lock, and a lapsed entry is re-created rather than silently lost.
	if err := r.registry.Admit(p.VisitorID, p.VisitorName, p.CallbackURL, p.Model); err != nil {
		return nil, err
	}

	message := sanitize.Clean(p.Message)
	sessionID := p.SessionID
	var name string
	var prior []llm.Turn

	if sessionID == "" {
		// First contact of a session: log the visit, open a transcript.
		name = sanitize.Clean(p.VisitorName)
		sessionID = r.db.NewID()
		if rel, err := r.db.LogVisit(ctx, p.VisitorID, name, p.CallbackURL); err != nil {
			r.log.Warn("visit log failed", zap.Error(err))
		} else if rel != nil {
			r.log.Info("visitor admitted",
				zap.String("visitor", p.VisitorID),
				zap.Int("affinity", rel.Affinity))
		}
	} else {
		// Loading the transcript doubles as session reference validation.
		recorded, err := r.db.Turns(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		prior = priorTurns(recorded)
		name = r.visitorName(p.VisitorID, p.VisitorName)
	}

	// Normalize the message into the host language before the teach check
	// so visitors can teach in their own language. Best effort.
	normalized, err := r.tr.Translate(ctx, p.Message, r.cfg.Character.Language)
	if err != nil {
		r.log.Debug("translation fell back to original", zap.Error(err))
		normalized = p.Message
	}

	if ack, taught := r.handleTeach(ctx, normalized); taught {
		r.history.Append(p.VisitorID, name, p.Message, p.IsHuman, p.Model)
		r.history.Append("system", "System", ack, false, "")
		return &VisitResult{SessionID: sessionID, HostName: r.HostName(), Response: ack}, nil
	}

	reply := r.generateAndPublish(ctx, p, name, message, prior)

	r.persistExchange(ctx, sessionID, p.VisitorID, p.Message, reply)

	return &VisitResult{SessionID: sessionID, HostName: r.HostName(), Response: reply}, nil
}

// generateAndPublish is the serialized region: context assembly, the
// model call, and the history append happen under one lock so concurrent
// visitors cannot observe a half-updated transcript or publish replies
// out of causal order. The lock is deliberately held across the network
// call; latency is traded for transcript correctness.
func (r *Room) generateAndPublish(ctx context.Context, p VisitParams, name, message string, prior []llm.Turn) string {
	r.genMu.Lock()
	defer r.genMu.Unlock()

	var sceneCtx string
	if r.registry.ActiveCount() > 1 {
		// Shared history is only relevant when the conversation is not 1:1.
		sceneCtx = r.history.RecentWindow(r.cfg.Room.SceneWindowLimit,
			time.Duration(r.cfg.Room.SceneWindowSecs)*time.Second)
	}

	loreCtx, err := r.lore.Retrieve(ctx, p.Message)
	if err != nil {
		r.log.Warn("lore retrieval failed", zap.Error(err))
	}

	var relCtx string
	if rel, err := r.db.Relationship(ctx, p.VisitorID); err == nil && rel != nil {
		relCtx = relationshipBlurb(rel)
	}

	reply, err := r.gen.Generate(ctx, llm.Params{
		SpeakerName:         name,
		Message:             message,
		PriorTurns:          prior,
		RelationshipContext: relCtx,
		SceneContext:        sceneCtx,
		LoreContext:         loreCtx,
	})
	if err != nil {
		r.log.Warn("generation failed, using fallback", zap.Error(err))
		reply = FallbackReply
	}
	reply = sanitize.Clean(reply)

	r.history.AppendExchange(
		model.ChatEvent{SenderID: p.VisitorID, SenderName: name, Content: message, IsHuman: p.IsHuman, Model: p.Model},
		model.ChatEvent{SenderID: "host", SenderName: r.HostName(), Content: reply},
	)
	return reply
}

// handleTeach intercepts "/teach <keyword> <content>" messages and authors
// a lore entry instead of generating a reply. The message must split into
// exactly the prefix plus two tokens.
func (r *Room) handleTeach(ctx context.Context, message string) (string, bool) {
	fields := strings.Fields(strings.TrimSpace(message))
	if len(fields) != 3 || fields[0] != TeachPrefix {
		return "", false
	}
	keyword, content := fields[1], fields[2]

	_, err := r.db.UpsertLore(ctx, store.LoreParams{
		Keyword: keyword,
		Content: content,
		Enabled: true,
		Author:  "visitor",
	})
	if err != nil {
		r.log.Warn("teach failed", zap.String("keyword", keyword), zap.Error(err))
		return fmt.Sprintf("I couldn't remember that: %v", err), true
	}

	r.log.Info("lore taught", zap.String("keyword", keyword))
	return fmt.Sprintf("Understood. I'll remember %q.", keyword), true
}

// priorTurns converts a session transcript into generation context, most
// recent turns only.
func priorTurns(recorded []model.ConversationTurn) []llm.Turn {
	if len(recorded) > maxPriorTurns {
		recorded = recorded[len(recorded)-maxPriorTurns:]
	}

	turns := make([]llm.Turn, 0, len(recorded))
	for _, t := range recorded {
		role := "user"
		if t.Sender == model.SenderHost {
			role = "assistant"
		}
		turns = append(turns, llm.Turn{Role: role, Content: t.Message})
	}
	return turns
}

// persistExchange writes both sides of an exchange to the transcript
// store. Failures are logged, never surfaced; persistence is best effort.
func (r *Room) persistExchange(ctx context.Context, sessionID, visitorID, message, reply string) {
	if sessionID == "" {
		return
	}
	if err := r.db.AppendTurn(ctx, sessionID, visitorID, model.SenderVisitor, message); err != nil {
		r.log.Warn("persist visitor turn failed", zap.Error(err))
		return
	}
	if err := r.db.AppendTurn(ctx, sessionID, visitorID, model.SenderHost, reply); err != nil {
		r.log.Warn("persist host turn failed", zap.Error(err))
	}
}

// Leave removes a visitor from the registry.
func (r *Room) Leave(visitorID string) {
	r.registry.Remove(visitorID)
}

// visitorName resolves a display name for an in-session message: the
// registered name when present, otherwise whatever the caller supplied.
func (r *Room) visitorName(visitorID, fallback string) string {
	for _, v := range r.registry.ListActive() {
		if v.ID == visitorID && v.Name != "" {
			return v.Name
		}
	}
	if fallback != "" {
		return sanitize.Clean(fallback)
	}
	return "Visitor"
}

func relationshipBlurb(rel *model.Relationship) string {
	b := fmt.Sprintf("You have met %s before (first met %s, affinity %d).",
		rel.VisitorName, rel.FirstMet.Format("2006-01-02"), rel.Affinity)
	if rel.MemorySummary != "" {
		b += " " + rel.MemorySummary
	}
	return b
}
