package enrollment

import (
	"encoding/json"
	"time"

	"github.com/volatiletech/null/v8"
)

// Source is the path through which an enrollment was created.
type Source string

const (
	SourceFree           Source = "FREE"
	SourcePaid           Source = "PAID"
	SourcePaymentWebhook Source = "PAYMENT_WEBHOOK"
)

type Enrollment struct {
	ID                 string      `json:"id"`
	PrincipalID        string      `json:"principal_id"`
	CourseID           string      `json:"course_id"`
	Source             Source      `json:"source"`
	PaymentID          null.String `json:"payment_id"`
	EnrolledAt         time.Time   `json:"enrolled_at"` // UTC
	ProgressPercent    int         `json:"progress_percent"`
	CompletedLessonIDs []string    `json:"completed_lesson_ids"`
	TotalWatchSeconds  int64       `json:"total_watch_seconds"`
	LastAccessedAt     null.Time   `json:"last_accessed_at"`
}

// New returns a fresh enrollment with zero progress.
// paymentID may be empty for free enrollments.
func New(principalID, courseID string, source Source, paymentID string, now time.Time) Enrollment {
	return Enrollment{
		PrincipalID:        principalID,
		CourseID:           courseID,
		Source:             source,
		PaymentID:          null.NewString(paymentID, paymentID != ""),
		EnrolledAt:         now.UTC(),
		ProgressPercent:    0,
		CompletedLessonIDs: []string{},
		TotalWatchSeconds:  0,
	}
}

type MilestoneKind string

const MilestoneCourseStart MilestoneKind = "COURSE_START"

type Milestone struct {
	ID           string          `json:"id"`
	PrincipalID  string          `json:"principal_id"`
	CourseID     string          `json:"course_id"`
	EnrollmentID string          `json:"enrollment_id"`
	Kind         MilestoneKind   `json:"kind"`
	Metadata     json.RawMessage `json:"metadata"`
	CreatedAt    time.Time       `json:"created_at"` // UTC
}

// CourseStartMetadata is stored on the COURSE_START milestone of a paid enrollment.
type CourseStartMetadata struct {
	PaymentID    string `json:"payment_id"`
	EnrollmentID string `json:"enrollment_id"`
	CourseTitle  string `json:"course_title"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
}

// NewCourseStart builds the milestone marking the start of a paid enrollment.
func NewCourseStart(e Enrollment, meta CourseStartMetadata, now time.Time) (Milestone, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return Milestone{}, err
	}
	return Milestone{
		PrincipalID:  e.PrincipalID,
		CourseID:     e.CourseID,
		EnrollmentID: e.ID,
		Kind:         MilestoneCourseStart,
		Metadata:     raw,
		CreatedAt:    now.UTC(),
	}, nil
}
