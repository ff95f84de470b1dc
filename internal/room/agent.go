package room

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/roomverse/internal/llm"
	"github.com/rcliao/roomverse/internal/model"
	"github.com/rcliao/roomverse/internal/peer"
	"github.com/rcliao/roomverse/internal/sanitize"
)

// Completion reasons for an outbound agent task.
const (
	ReasonConnectionFailed = "connection-failed"
	ReasonConnectionLost   = "connection-lost"
	ReasonSelfEnded        = "self-ended"
	ReasonPeerEnded        = "peer-ended"
	ReasonTurnLimit        = "turn-limit"
)

var farewellTokens = []string{"goodbye", "bye"}

// Greetings the agent opens with, picked per dispatch.
var agentGreetings = []string{
	"Hello! I am exploring the network.",
	"Greetings! How is your day?",
	"Knock knock! Anyone home?",
	"I sensed another presence here.",
	"Just passing through, thought I'd say hi.",
}

// Dispatcher manages the room's outbound visits: at most one live task
// per target URL, each running an independent multi-turn conversation
// against a remote room. Tasks self-remove on completion and are never
// retried.
type Dispatcher struct {
	room      *Room
	transport peer.Transport
	log       *zap.Logger

	instanceID string
	maxTurns   int
	pacing     time.Duration

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup

	// pick selects a greeting; replaceable in tests.
	pick func(n int) int
}

// NewDispatcher creates a dispatcher for the room's agent.
func NewDispatcher(r *Room, transport peer.Transport, instanceID string, maxTurns int, pacing time.Duration, log *zap.Logger) *Dispatcher {
	if maxTurns <= 0 {
		maxTurns = 6
	}
	return &Dispatcher{
		room:       r,
		transport:  transport,
		log:        log,
		instanceID: instanceID,
		maxTurns:   maxTurns,
		pacing:     pacing,
		active:     make(map[string]struct{}),
		pick:       func(n int) int { return int(time.Now().UnixNano()) % n },
	}
}

// Dispatch starts an outbound visit to target. Returns false without
// side effects when a task for that target is already running.
func (d *Dispatcher) Dispatch(ctx context.Context, target string) bool {
	target = strings.TrimSuffix(target, "/")

	d.mu.Lock()
	if _, running := d.active[target]; running {
		d.mu.Unlock()
		d.log.Debug("dispatch ignored, task already active", zap.String("target", target))
		return false
	}
	d.active[target] = struct{}{}
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.finish(target)
		reason := d.run(ctx, target)
		d.log.Info("agent visit completed",
			zap.String("target", target),
			zap.String("reason", reason))
		d.room.History().Append("agent", "System",
			fmt.Sprintf("visit to %s ended (%s)", target, reason), false, "")
	}()
	return true
}

// ActiveTargets returns the targets with a live task, for status display.
func (d *Dispatcher) ActiveTargets() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.active))
	for t := range d.active {
		out = append(out, t)
	}
	return out
}

// Wait blocks until all running tasks complete. Used on shutdown and in
// tests; there is no cancellation beyond the dispatch context.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) finish(target string) {
	d.mu.Lock()
	delete(d.active, target)
	d.mu.Unlock()
}

// run drives one outbound conversation to completion and returns the
// completion reason.
func (d *Dispatcher) run(ctx context.Context, target string) string {
	hostName := d.room.HostName()
	greeting := agentGreetings[d.pick(len(agentGreetings))]

	// Handshake: introduce ourselves and capture the remote session.
	visit, err := d.transport.Visit(ctx, target, peer.VisitRequest{
		VisitorID:   d.instanceID,
		VisitorName: hostName,
		Message:     greeting,
	})
	if err != nil {
		d.log.Warn("handshake failed", zap.String("target", target), zap.Error(err))
		return ReasonConnectionFailed
	}

	remoteName := sanitize.Clean(visit.HostName)
	if remoteName == "" {
		remoteName = target
	}
	d.publishExchange(hostName, greeting, remoteName, visit.Response)

	if containsFarewell(visit.Response) {
		return ReasonPeerEnded
	}

	lastRemote := visit.Response
	var turns []llm.Turn
	turns = append(turns,
		llm.Turn{Role: "assistant", Content: greeting},
		llm.Turn{Role: "user", Content: lastRemote})

	for turn := 0; turn < d.maxTurns; turn++ {
		// Pace the loop so autonomous chatter does not burst.
		select {
		case <-time.After(d.pacing):
		case <-ctx.Done():
			return ReasonConnectionLost
		}

		reply, err := d.room.gen.Generate(ctx, llm.Params{
			SpeakerName: remoteName,
			Message:     lastRemote,
			PriorTurns:  turns,
			RoleHint: fmt.Sprintf(
				"You are currently visiting another room as a guest. Your conversation partner is its host, %s. Keep replies short and conversational.",
				remoteName),
		})
		if err != nil {
			d.log.Warn("agent generation failed, using fallback", zap.Error(err))
			reply = FallbackReply
		}

		// A farewell from our own character ends the visit without
		// sending that message to the peer.
		if containsFarewell(reply) {
			d.room.History().Append("agent", hostName, reply, false, "")
			return ReasonSelfEnded
		}

		chat, err := d.transport.Chat(ctx, target, peer.ChatRequest{
			VisitorID: d.instanceID,
			SessionID: visit.SessionID,
			Message:   reply,
		})
		if err != nil {
			d.log.Warn("peer chat failed", zap.String("target", target), zap.Error(err))
			return ReasonConnectionLost
		}

		d.publishExchange(hostName, reply, remoteName, chat.Response)

		if containsFarewell(chat.Response) {
			return ReasonPeerEnded
		}

		lastRemote = chat.Response
		turns = append(turns,
			llm.Turn{Role: "assistant", Content: reply},
			llm.Turn{Role: "user", Content: lastRemote})
	}

	return ReasonTurnLimit
}

// publishExchange mirrors both sides of an agent exchange into the shared
// history so a human host can watch the autonomous conversation.
func (d *Dispatcher) publishExchange(hostName, sent, remoteName, received string) {
	d.room.History().AppendExchange(
		model.ChatEvent{SenderID: "agent", SenderName: hostName, Content: sent},
		model.ChatEvent{SenderID: "peer", SenderName: remoteName, Content: received},
	)
}

// containsFarewell applies the plain substring heuristic; false positives
// on embedded matches are accepted behavior.
func containsFarewell(text string) bool {
	lower := strings.ToLower(text)
	for _, tok := range farewellTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}
