package payment

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusRefunded  Status = "REFUNDED"
)

// transitions lists the statuses each status may move to.
var transitions = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {StatusRefunded},
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo reports whether a payment in status s may move to next.
// Re-applying the current status is allowed (gateway redelivery).
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Payment struct {
	ID          string `json:"id"`
	PrincipalID string `json:"principal_id"`
	CourseID    string `json:"course_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Status      Status `json:"status"`
	// GatewayResponse is the last raw payload received from the payment gateway; opaque to the engine.
	// Never serialized to clients.
	GatewayResponse json.RawMessage `json:"-"`
	CreatedAt       time.Time       `json:"created_at"` // UTC
	UpdatedAt       time.Time       `json:"updated_at"` // UTC
}

func (p Payment) IsCompleted() bool { return p.Status == StatusCompleted }

// Matches reports whether the payment was made by principalID for courseID.
func (p Payment) Matches(principalID, courseID string) bool {
	return p.PrincipalID == principalID && p.CourseID == courseID
}
