package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action names an auditable step of the sign-up lifecycle.
type Action string

const (
	ActionRegistered   Action = "signup_registered"
	ActionConfirmed    Action = "signup_confirmed"
	ActionExpired      Action = "signup_expired"
	ActionCodeReissued Action = "signup_code_reissued"
	ActionAbandoned    Action = "signup_abandoned"
)

// Category classifies events for retention. Compliance events record account
// lifecycle changes; operations events are routine.
type Category string

const (
	CategoryCompliance Category = "compliance"
	CategoryOperations Category = "operations"
)

var categories = map[Action]Category{
	ActionRegistered: CategoryCompliance,
	ActionConfirmed:  CategoryCompliance,
	ActionAbandoned:  CategoryCompliance,
}

// Category returns the action's category. Unknown actions are operations.
func (a Action) Category() Category {
	if c, ok := categories[a]; ok {
		return c
	}
	return CategoryOperations
}

// Event is one audit record. It never carries claim values or credentials.
type Event struct {
	Timestamp time.Time
	UserID    uuid.UUID
	Domain    string
	Action    Action
	Channel   string
	RequestID string
	// ActorID is set when an operator acted, e.g. an on-demand purge.
	ActorID string
	IP      string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Event, error)
}
