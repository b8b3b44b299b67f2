package enrollment

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/madrasa/backend/core"
	"github.com/madrasa/backend/core/course"
	"github.com/madrasa/backend/core/payment"
	"github.com/madrasa/backend/core/principal"
)

var nowFunc = time.Now

// Service creates enrollments for free courses and for completed payments.
// Business outcomes are returned as values; only the logger sees infrastructure errors.
type Service struct {
	courses     course.Repository
	enrollments Repository
	payments    payment.Repository
	logger      core.Logger
	metrics     core.Metrics
}

func NewService(
	courses course.Repository,
	enrollments Repository,
	payments payment.Repository,
	logger core.Logger,
	metrics core.Metrics,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(courses, "courses"),
		vala.IsNotNil(enrollments, "enrollments"),
		vala.IsNotNil(payments, "payments"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(metrics, "metrics"),
	).CheckAndPanic()

	return &Service{
		courses:     courses,
		enrollments: enrollments,
		payments:    payments,
		logger:      logger,
		metrics:     metrics,
	}
}

// CanEnroll reports whether p may enroll in the course right now.
func (svc *Service) CanEnroll(ctx context.Context, courseID string, p *principal.Principal) Eligibility {
	elig, _ := svc.checkEligibility(ctx, courseID, p)
	return elig
}

// checkEligibility runs the eligibility chain, short-circuiting on the first denial.
// The existing enrollment is returned alongside ALREADY_ENROLLED.
func (svc *Service) checkEligibility(ctx context.Context, courseID string, p *principal.Principal) (Eligibility, Enrollment) {
	if p == nil {
		return denied(ReasonNotAuthenticated), Enrollment{}
	}
	if !(p.IsStudent() || p.IsAdmin()) {
		return denied(ReasonInvalidRole), Enrollment{}
	}

	crs, err := svc.courses.GetCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, course.ErrNotFound) {
			return denied(ReasonCourseNotFound), Enrollment{}
		}
		svc.logger.Error("enrollment.checkEligibility: "+err.Error(), err, *p)
		return denied(ReasonInternalError), Enrollment{}
	}
	if !crs.IsPublished {
		return denied(ReasonCourseNotPublished), Enrollment{}
	}
	if crs.IsOwnedBy(p.ID) {
		return denied(ReasonOwnCourse), Enrollment{}
	}

	existing, err := svc.enrollments.FindEnrollment(ctx, p.ID, crs.ID)
	switch {
	case err == nil:
		return denied(ReasonAlreadyEnrolled), existing
	case !errors.Is(err, ErrNotFound):
		svc.logger.Error("enrollment.checkEligibility: "+err.Error(), err, *p)
		return denied(ReasonInternalError), Enrollment{}
	}

	if crs.Pricing.IsPaid() {
		return denied(ReasonPaymentRequired), Enrollment{}
	}
	return eligible(), Enrollment{}
}

// EnrollInFreeCourse re-checks eligibility and enrolls p in a free course.
// Enrolling twice succeeds both times with the same enrollment.
func (svc *Service) EnrollInFreeCourse(ctx context.Context, courseID string, p *principal.Principal) Result {
	elig, existing := svc.checkEligibility(ctx, courseID, p)
	switch elig.Reason {
	case ReasonEligible:
	case ReasonAlreadyEnrolled:
		return Succeeded(existing.ID, true)
	default:
		return Failed(elig.Reason)
	}

	enr, already, err := svc.create(ctx, New(p.ID, courseID, SourceFree, "", nowFunc()))
	if err != nil {
		svc.logger.Error("enrollment.EnrollInFreeCourse: "+err.Error(), err, *p)
		return Failed(ReasonInternalError)
	}
	return Succeeded(enr.ID, already)
}

// CreatePaidEnrollment enrolls p using a completed payment made by p for the course.
func (svc *Service) CreatePaidEnrollment(ctx context.Context, courseID string, p *principal.Principal, paymentID string) Result {
	if p == nil {
		return Failed(ReasonNotAuthenticated)
	}
	if paymentID == "" {
		return Failed(ReasonPaymentMissing)
	}

	pmt, err := svc.payments.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			return Failed(ReasonPaymentMissing)
		}
		svc.logger.Error("enrollment.CreatePaidEnrollment: "+err.Error(), err, *p)
		return Failed(ReasonInternalError)
	}
	if !pmt.IsCompleted() {
		return Failed(ReasonPaymentNotCompleted)
	}
	if !pmt.Matches(p.ID, courseID) {
		svc.logger.Error("enrollment.CreatePaidEnrollment: payment does not match request", *p, map[string]interface{}{
			"payment_id":           pmt.ID,
			"payment_principal_id": pmt.PrincipalID,
			"payment_course_id":    pmt.CourseID,
			"course_id":            courseID,
		})
		return Failed(ReasonPaymentMismatch)
	}

	existing, err := svc.enrollments.FindEnrollment(ctx, p.ID, courseID)
	switch {
	case err == nil:
		return Succeeded(existing.ID, true)
	case !errors.Is(err, ErrNotFound):
		svc.logger.Error("enrollment.CreatePaidEnrollment: "+err.Error(), err, *p)
		return Failed(ReasonInternalError)
	}

	enr, already, err := svc.create(ctx, New(p.ID, courseID, SourcePaid, pmt.ID, nowFunc()))
	if err != nil {
		svc.logger.Error("enrollment.CreatePaidEnrollment: "+err.Error(), err, *p)
		return Failed(ReasonInternalError)
	}
	return Succeeded(enr.ID, already)
}

// create inserts e, resolving a uniqueness conflict to the enrollment that won the race.
func (svc *Service) create(ctx context.Context, e Enrollment) (Enrollment, bool, error) {
	created, err := svc.enrollments.CreateEnrollment(ctx, e)
	if err == nil {
		svc.metrics.EnrollmentCreated(string(e.Source))
		return created, false, nil
	}
	if !errors.Is(err, ErrAlreadyEnrolled) {
		return Enrollment{}, false, err
	}

	svc.logger.Info("enrollment.create: concurrent enrollment resolved to existing record", map[string]interface{}{
		"principal_id": e.PrincipalID,
		"course_id":    e.CourseID,
	})
	existing, err := svc.enrollments.FindEnrollment(ctx, e.PrincipalID, e.CourseID)
	if err != nil {
		return Enrollment{}, false, errors.Wrap(err, "finding conflicting enrollment")
	}
	return existing, true, nil
}
