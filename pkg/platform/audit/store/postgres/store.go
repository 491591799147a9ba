package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	audit "selfsignup/pkg/platform/audit"
	txcontext "selfsignup/pkg/platform/tx"
)

// Store writes audit events to signup_audit_events. Appends join a
// transaction carried in ctx, so an event recorded inside a store
// transaction commits or rolls back with it.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	_, err := txcontext.Or(ctx, s.db).ExecContext(ctx, `
		INSERT INTO signup_audit_events (
			id, occurred_at, user_id, domain, action, category, channel, request_id, actor_id, ip
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.New(),
		event.Timestamp,
		event.UserID,
		event.Domain,
		string(event.Action),
		string(event.Action.Category()),
		event.Channel,
		event.RequestID,
		event.ActorID,
		event.IP,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByUser returns a user's events oldest first.
func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID) ([]audit.Event, error) {
	rows, err := txcontext.Or(ctx, s.db).QueryContext(ctx, `
		SELECT occurred_at, user_id, domain, action, channel, request_id, actor_id, ip
		FROM signup_audit_events
		WHERE user_id = $1
		ORDER BY occurred_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e      audit.Event
			action string
		)
		if err := rows.Scan(&e.Timestamp, &e.UserID, &e.Domain, &action, &e.Channel, &e.RequestID, &e.ActorID, &e.IP); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = audit.Action(action)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
