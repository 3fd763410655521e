package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus tracks the lifecycle of a reconciliation session.
type SessionStatus string

// Session states.
const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
)

// ReconciliationSession scopes a reconciliation to one account and an
// inclusive date window.
type ReconciliationSession struct {
	StartDate        time.Time
	EndDate          time.Time
	CreatedAt        time.Time
	CompletedAt      *time.Time
	StatementBalance decimal.Decimal
	ID               string
	UserID           string
	AccountID        string
	Status           SessionStatus
}
