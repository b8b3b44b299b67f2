package access

import (
	"context"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/madrasa/backend/core"
	"github.com/madrasa/backend/core/course"
	"github.com/madrasa/backend/core/enrollment"
	"github.com/madrasa/backend/core/payment"
	"github.com/madrasa/backend/core/principal"
)

type Reason string

const (
	ReasonNotFound         Reason = "NOT_FOUND"
	ReasonNotAuthenticated Reason = "NOT_AUTHENTICATED"
	ReasonNotPublished     Reason = "NOT_PUBLISHED"
	ReasonAdminAccess      Reason = "ADMIN_ACCESS"
	ReasonProfessorOwns    Reason = "PROFESSOR_OWNS"
	ReasonFreeCourse       Reason = "FREE_COURSE"
	ReasonEnrolled         Reason = "ENROLLED"
	ReasonPaymentRequired  Reason = "PAYMENT_REQUIRED"
)

// Decision is the outcome of an access evaluation.
// Enrollment and Payment are attached for display only.
type Decision struct {
	HasAccess  bool                   `json:"has_access"`
	Reason     Reason                 `json:"reason"`
	Enrollment *enrollment.Enrollment `json:"enrollment,omitempty"`
	Payment    *payment.Payment       `json:"payment,omitempty"`
}

func grant(reason Reason) Decision { return Decision{HasAccess: true, Reason: reason} }
func deny(reason Reason) Decision  { return Decision{Reason: reason} }

type Evaluator struct {
	courses     course.Repository
	enrollments enrollment.Repository
	payments    payment.Repository
	logger      core.Logger
	metrics     core.Metrics
}

func NewEvaluator(
	courses course.Repository,
	enrollments enrollment.Repository,
	payments payment.Repository,
	logger core.Logger,
	metrics core.Metrics,
) *Evaluator {
	vala.BeginValidation().Validate(
		vala.IsNotNil(courses, "courses"),
		vala.IsNotNil(enrollments, "enrollments"),
		vala.IsNotNil(payments, "payments"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(metrics, "metrics"),
	).CheckAndPanic()

	return &Evaluator{
		courses:     courses,
		enrollments: enrollments,
		payments:    payments,
		logger:      logger,
		metrics:     metrics,
	}
}

// Evaluate decides whether p may access the course. A nil p is an unauthenticated caller.
// It has no side effects; store failures deny with NOT_FOUND.
func (ev *Evaluator) Evaluate(ctx context.Context, courseID string, p *principal.Principal) Decision {
	dec, err := ev.evaluate(ctx, courseID, p)
	if err != nil {
		fields := map[string]interface{}{"course_id": courseID}
		if p != nil {
			ev.logger.Error("access.Evaluate: "+err.Error(), err, *p, fields)
		} else {
			ev.logger.Error("access.Evaluate: "+err.Error(), err, fields)
		}
		dec = deny(ReasonNotFound)
	}
	ev.metrics.AccessDecision(string(dec.Reason))
	return dec
}

// evaluate applies the rules top to bottom; the first match wins.
func (ev *Evaluator) evaluate(ctx context.Context, courseID string, p *principal.Principal) (Decision, error) {
	crs, err := ev.courses.GetCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, course.ErrNotFound) {
			return deny(ReasonNotFound), nil
		}
		return Decision{}, err
	}
	if p == nil {
		return deny(ReasonNotAuthenticated), nil
	}
	if !crs.IsPublished && p.IsStudent() {
		return deny(ReasonNotPublished), nil
	}
	if p.IsAdmin() {
		return grant(ReasonAdminAccess), nil
	}
	if p.IsProfessor() && crs.IsOwnedBy(p.ID) {
		return grant(ReasonProfessorOwns), nil
	}

	enr, err := ev.findEnrollment(ctx, p.ID, crs.ID)
	if err != nil {
		return Decision{}, err
	}

	if crs.IsFree() {
		dec := grant(ReasonFreeCourse)
		dec.Enrollment = enr
		return dec, nil
	}

	if enr == nil {
		return deny(ReasonPaymentRequired), nil
	}
	dec := grant(ReasonEnrolled)
	dec.Enrollment = enr
	pmt, err := ev.payments.GetLatestCompleted(ctx, p.ID, crs.ID)
	switch {
	case err == nil:
		dec.Payment = &pmt
	case !errors.Is(err, payment.ErrNotFound):
		return Decision{}, err
	}
	return dec, nil
}

func (ev *Evaluator) findEnrollment(ctx context.Context, principalID, courseID string) (*enrollment.Enrollment, error) {
	enr, err := ev.enrollments.FindEnrollment(ctx, principalID, courseID)
	if err != nil {
		if errors.Is(err, enrollment.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &enr, nil
}
