// Package server exposes the room over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/rcliao/roomverse/internal/room"
	"github.com/rcliao/roomverse/internal/store"
)

// Server wires the room and its dispatcher into an http.Handler.
type Server struct {
	room       *room.Room
	dispatcher *room.Dispatcher
	db         store.Store
	log        *zap.Logger
	mux        *http.ServeMux
}

// New creates the HTTP surface for a room.
func New(r *room.Room, d *room.Dispatcher, db store.Store, log *zap.Logger) *Server {
	s := &Server{room: r, dispatcher: d, db: db, log: log, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /", s.handleRoot)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("POST /toggle", s.handleToggle)
	s.mux.HandleFunc("POST /visit", s.handleVisit)
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("POST /leave", s.handleLeave)
	s.mux.HandleFunc("POST /agent/visit", s.handleAgentVisit)
	s.mux.HandleFunc("GET /lore", s.handleLoreList)
	s.mux.HandleFunc("POST /lore", s.handleLoreUpsert)
	s.mux.HandleFunc("DELETE /lore/{keyword}", s.handleLoreDelete)
	s.mux.HandleFunc("GET /logs/{session}", s.handleLogsGet)
	s.mux.HandleFunc("DELETE /logs/{session}", s.handleLogsDelete)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type visitRequest struct {
	VisitorID   string `json:"visitor_id"`
	VisitorName string `json:"visitor_name"`
	Message     string `json:"message"`
	CallbackURL string `json:"callback_url,omitempty"`
	Model       string `json:"model,omitempty"`
	IsHuman     bool   `json:"is_human,omitempty"`
}

type chatRequest struct {
	VisitorID string `json:"visitor_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	IsHuman   bool   `json:"is_human,omitempty"`
}

type leaveRequest struct {
	VisitorID string `json:"visitor_id"`
}

type agentVisitRequest struct {
	TargetURL string `json:"target_url"`
}

type loreRequest struct {
	Keyword           string `json:"keyword"`
	KeywordTranslated string `json:"keyword_translated,omitempty"`
	Content           string `json:"content"`
	ContentTranslated string `json:"content_translated,omitempty"`
	Book              string `json:"book,omitempty"`
	Aliases           string `json:"aliases,omitempty"`
	Constant          bool   `json:"constant,omitempty"`
	Enabled           *bool  `json:"enabled,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	st := s.room.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "online",
		"character": st.HostName,
		"is_open":   st.IsOpen,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.room.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"is_open":              st.IsOpen,
		"host_name":            st.HostName,
		"active_visitor_count": st.ActiveCount,
		"agent_targets":        s.dispatcher.ActiveTargets(),
	})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	open := s.room.ToggleOpen()
	s.log.Info("room toggled", zap.Bool("open", open))
	writeJSON(w, http.StatusOK, map[string]bool{"is_open": open})
}

func (s *Server) handleVisit(w http.ResponseWriter, r *http.Request) {
	var req visitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.VisitorID == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("visitor_id and message are required"))
		return
	}

	res, err := s.room.Visit(r.Context(), room.VisitParams{
		VisitorID:   req.VisitorID,
		VisitorName: req.VisitorName,
		Message:     req.Message,
		CallbackURL: req.CallbackURL,
		Model:       req.Model,
		IsHuman:     req.IsHuman,
	})
	if err != nil {
		s.writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.VisitorID == "" || req.SessionID == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("visitor_id, session_id and message are required"))
		return
	}

	res, err := s.room.Visit(r.Context(), room.VisitParams{
		VisitorID: req.VisitorID,
		Message:   req.Message,
		IsHuman:   req.IsHuman,
		SessionID: req.SessionID,
	})
	if err != nil {
		s.writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	var req leaveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.room.Leave(req.VisitorID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (s *Server) handleAgentVisit(w http.ResponseWriter, r *http.Request) {
	var req agentVisitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.TargetURL == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("target_url is required"))
		return
	}

	// The task outlives this request; duplicates are silently ignored.
	started := s.dispatcher.Dispatch(context.WithoutCancel(r.Context()), req.TargetURL)
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": started})
}

func (s *Server) handleLoreList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.db.ListLore(r.Context(), false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleLoreUpsert(w http.ResponseWriter, r *http.Request) {
	var req loreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	entry, err := s.db.UpsertLore(r.Context(), store.LoreParams{
		Keyword:           req.Keyword,
		KeywordTranslated: req.KeywordTranslated,
		Content:           req.Content,
		ContentTranslated: req.ContentTranslated,
		Book:              req.Book,
		Aliases:           req.Aliases,
		Constant:          req.Constant,
		Enabled:           enabled,
		Author:            "host",
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleLoreDelete(w http.ResponseWriter, r *http.Request) {
	err := s.db.DeleteLore(r.Context(), r.PathValue("keyword"))
	if errors.Is(err, store.ErrLoreNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleLogsGet(w http.ResponseWriter, r *http.Request) {
	turns, err := s.db.Turns(r.Context(), r.PathValue("session"))
	if errors.Is(err, store.ErrMalformedSession) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

func (s *Server) handleLogsDelete(w http.ResponseWriter, r *http.Request) {
	err := s.db.DeleteTurns(r.Context(), r.PathValue("session"))
	if errors.Is(err, store.ErrMalformedSession) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// writeRoomError maps room admission errors onto HTTP statuses.
func (s *Server) writeRoomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, room.ErrRoomFull):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, room.ErrRoomClosed):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, store.ErrMalformedSession):
		writeError(w, http.StatusBadRequest, err)
	default:
		s.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
