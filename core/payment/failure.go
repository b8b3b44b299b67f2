package payment

import "time"

const ResolutionRetrySucceeded = "RETRY_SUCCEEDED"

// EnrollmentFailure records a completed payment whose enrollment could not be created.
// Rows are appended, never rewritten, except for stamping the resolution.
type EnrollmentFailure struct {
	ID                   string     `json:"id"`
	PaymentID            string     `json:"payment_id"`
	Error                string     `json:"error"`
	RequiresManualReview bool       `json:"requires_manual_review"`
	CreatedAt            time.Time  `json:"created_at"` // UTC
	ResolvedAt           *time.Time `json:"resolved_at,omitempty"`
	Resolution           string     `json:"resolution,omitempty"`
}

func (f EnrollmentFailure) IsResolved() bool { return f.ResolvedAt != nil }
