package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/roomverse/internal/model"
)

// LogVisit appends a visit record and upserts the visitor's relationship.
// A repeat visitor keeps their first-met time and affinity; the display
// name and last-met time are refreshed.
func (s *SQLiteStore) LogVisit(ctx context.Context, visitorID, visitorName, callbackURL string) (*model.Relationship, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO visit_logs (id, timestamp, visitor_id, visitor_name, callback_url)
		 VALUES (?, ?, ?, ?, ?)`,
		s.NewID(), now.Format(time.RFC3339), visitorID, visitorName, nullable(callbackURL))
	if err != nil {
		return nil, fmt.Errorf("insert visit log: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO relationships (visitor_id, visitor_name, affinity, first_met, last_met)
		 VALUES (?, ?, 0, ?, ?)
		 ON CONFLICT(visitor_id) DO UPDATE SET
		   visitor_name = excluded.visitor_name,
		   last_met     = excluded.last_met`,
		visitorID, visitorName, now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("upsert relationship: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.Relationship(ctx, visitorID)
}

// Relationship returns the stored relationship, or nil if never met.
func (s *SQLiteStore) Relationship(ctx context.Context, visitorID string) (*model.Relationship, error) {
	var r model.Relationship
	var firstMet, lastMet string
	var summary sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT visitor_id, visitor_name, affinity, first_met, last_met, memory_summary
		 FROM relationships WHERE visitor_id = ?`, visitorID).
		Scan(&r.VisitorID, &r.VisitorName, &r.Affinity, &firstMet, &lastMet, &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r.FirstMet, _ = time.Parse(time.RFC3339, firstMet)
	r.LastMet, _ = time.Parse(time.RFC3339, lastMet)
	r.MemorySummary = summary.String
	return &r, nil
}
