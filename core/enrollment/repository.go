package enrollment

import (
	"context"
	"errors"

	"github.com/madrasa/backend/core"
)

var (
	// errors
	ErrNotFound = errors.New("enrollment not found")
	// ErrAlreadyEnrolled is returned by CreateEnrollment when the (principal, course) pair is taken.
	ErrAlreadyEnrolled = errors.New("principal already enrolled in course")
)

type (
	Repository interface {
		CreateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		GetEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (Enrollment, error)
		FindEnrollment(ctx context.Context, principalID, courseID string, exec ...core.DBExecutor) (Enrollment, error)
		CountEnrollments(ctx context.Context, principalID, courseID string, exec ...core.DBExecutor) (int, error)
	}

	MilestoneRepository interface {
		CreateMilestone(ctx context.Context, m Milestone, exec ...core.DBExecutor) (Milestone, error)
		QueryMilestones(ctx context.Context, enrollmentID string, exec ...core.DBExecutor) ([]Milestone, error)
	}
)
