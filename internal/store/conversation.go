package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rcliao/roomverse/internal/model"
)

// AppendTurn records one side of an exchange under a session id.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID, visitorID, sender, message string) error {
	sid, err := parseSessionID(sessionID)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (id, timestamp, session_id, visitor_id, sender, message)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.NewID(), time.Now().UTC().Format(time.RFC3339), sid, visitorID, sender, message)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// Turns returns a session's transcript in chronological order.
func (s *SQLiteStore) Turns(ctx context.Context, sessionID string) ([]model.ConversationTurn, error) {
	sid, err := parseSessionID(sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, session_id, visitor_id, sender, message
		 FROM conversation_turns WHERE session_id = ? ORDER BY id`, sid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []model.ConversationTurn
	for rows.Next() {
		var t model.ConversationTurn
		var ts string
		if err := rows.Scan(&t.ID, &ts, &t.SessionID, &t.VisitorID, &t.Sender, &t.Message); err != nil {
			return nil, err
		}
		t.Timestamp, _ = time.Parse(time.RFC3339, ts)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// DeleteTurns removes a session's transcript.
func (s *SQLiteStore) DeleteTurns(ctx context.Context, sessionID string) error {
	sid, err := parseSessionID(sessionID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM conversation_turns WHERE session_id = ?`, sid)
	return err
}
