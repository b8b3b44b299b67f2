// Package fulfillment turns completed payments into enrollments.
//
// It is driven by the payment gateway webhook and by operators retrying
// enrollments that previously failed; it never relies on an interactive session.
package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/madrasa/backend/core"
	"github.com/madrasa/backend/core/course"
	"github.com/madrasa/backend/core/enrollment"
	"github.com/madrasa/backend/core/payment"
	"github.com/madrasa/backend/core/principal"
)

var nowFunc = time.Now

// Deps holds the collaborators of the fulfillment Service.
type Deps struct {
	Tx          core.Transactor
	Courses     course.Repository
	Principals  principal.Repository
	Enrollments enrollment.Repository
	Milestones  enrollment.MilestoneRepository
	Payments    payment.Repository
	Failures    payment.FailureRepository
	MailSvc     core.EmailService
	Logger      core.Logger
	Metrics     core.Metrics
	// OperatorEmails receive an alert for every enrollment failure.
	OperatorEmails []string
}

type Service struct {
	Deps
}

func NewService(deps Deps) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Tx, "Tx"),
		vala.IsNotNil(deps.Courses, "Courses"),
		vala.IsNotNil(deps.Principals, "Principals"),
		vala.IsNotNil(deps.Enrollments, "Enrollments"),
		vala.IsNotNil(deps.Milestones, "Milestones"),
		vala.IsNotNil(deps.Payments, "Payments"),
		vala.IsNotNil(deps.Failures, "Failures"),
		vala.IsNotNil(deps.MailSvc, "MailSvc"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Metrics, "Metrics"),
	).CheckAndPanic()

	return &Service{Deps: deps}
}

// CreateEnrollmentFromPayment enrolls the payer of a completed payment.
// Redelivery is safe: an existing enrollment is returned as a success.
func (svc *Service) CreateEnrollmentFromPayment(ctx context.Context, paymentID string) enrollment.Result {
	pmt, err := svc.Payments.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			return enrollment.Failed(enrollment.ReasonPaymentNotFound)
		}
		svc.Logger.Error("fulfillment.CreateEnrollmentFromPayment: "+err.Error(), err)
		return enrollment.Failed(enrollment.ReasonInternalError)
	}
	if !pmt.IsCompleted() {
		return enrollment.Failed(enrollment.ReasonPaymentNotCompleted)
	}

	crs, err := svc.Courses.GetCourse(ctx, pmt.CourseID)
	if err != nil {
		if errors.Is(err, course.ErrNotFound) {
			return enrollment.Failed(enrollment.ReasonCourseNotFound)
		}
		svc.Logger.Error("fulfillment.CreateEnrollmentFromPayment: "+err.Error(), err)
		return enrollment.Failed(enrollment.ReasonInternalError)
	}
	if !crs.IsPublished {
		return enrollment.Failed(enrollment.ReasonCourseNotPublished)
	}

	existing, err := svc.Enrollments.FindEnrollment(ctx, pmt.PrincipalID, pmt.CourseID)
	switch {
	case err == nil:
		svc.Logger.Info("fulfillment.CreateEnrollmentFromPayment: already enrolled", map[string]interface{}{
			"payment_id":    pmt.ID,
			"enrollment_id": existing.ID,
		})
		return enrollment.Succeeded(existing.ID, true)
	case !errors.Is(err, enrollment.ErrNotFound):
		svc.Logger.Error("fulfillment.CreateEnrollmentFromPayment: "+err.Error(), err)
		return enrollment.Failed(enrollment.ReasonInternalError)
	}

	enr, err := svc.enroll(ctx, pmt, crs)
	if err != nil {
		if !errors.Is(err, enrollment.ErrAlreadyEnrolled) {
			svc.HandleEnrollmentFailure(ctx, pmt.ID, err.Error())
			return enrollment.Failed(enrollment.ReasonEnrollmentFailed)
		}
		// lost a race with a concurrent delivery; the unit was rolled back
		existing, err := svc.Enrollments.FindEnrollment(ctx, pmt.PrincipalID, pmt.CourseID)
		if err != nil {
			svc.HandleEnrollmentFailure(ctx, pmt.ID, err.Error())
			return enrollment.Failed(enrollment.ReasonEnrollmentFailed)
		}
		return enrollment.Succeeded(existing.ID, true)
	}

	svc.Metrics.EnrollmentCreated(string(enrollment.SourcePaymentWebhook))
	svc.sendConfirmation(ctx, pmt, crs)
	return enrollment.Succeeded(enr.ID, false)
}

// enroll creates the enrollment and its COURSE_START milestone in a single transaction.
func (svc *Service) enroll(ctx context.Context, pmt payment.Payment, crs course.Course) (enrollment.Enrollment, error) {
	var enr enrollment.Enrollment
	err := svc.Tx.InTx(ctx, func(exec core.DBExecutor) error {
		now := nowFunc()
		var err error
		enr, err = svc.Enrollments.CreateEnrollment(
			ctx,
			enrollment.New(pmt.PrincipalID, pmt.CourseID, enrollment.SourcePaymentWebhook, pmt.ID, now),
			exec,
		)
		if err != nil {
			return err
		}

		ms, err := enrollment.NewCourseStart(enr, enrollment.CourseStartMetadata{
			PaymentID:    pmt.ID,
			EnrollmentID: enr.ID,
			CourseTitle:  crs.Title,
			AmountCents:  pmt.AmountCents,
			Currency:     pmt.Currency,
		}, now)
		if err != nil {
			return errors.Wrap(err, "encoding milestone metadata")
		}
		_, err = svc.Milestones.CreateMilestone(ctx, ms, exec)
		return err
	})
	return enr, err
}

// HandleEnrollmentFailure records that the payment's enrollment failed and alerts operators.
// Failures are appended to the FailureRepository (enrollment_failures); the payment row and its
// gateway_response are left untouched. It never fails; a failure to record is itself logged.
func (svc *Service) HandleEnrollmentFailure(ctx context.Context, paymentID, errMsg string) {
	svc.Metrics.FulfillmentFailure()
	fields := map[string]interface{}{"payment_id": paymentID, "error": errMsg}
	svc.Logger.Error("fulfillment: enrollment failed for payment "+paymentID, fields)

	f, err := svc.Failures.CreateFailure(ctx, payment.EnrollmentFailure{
		PaymentID:            paymentID,
		Error:                errMsg,
		RequiresManualReview: true,
		CreatedAt:            nowFunc().UTC(),
	})
	if err != nil {
		svc.Logger.Error("fulfillment.HandleEnrollmentFailure: "+err.Error(), err, fields)
		return
	}
	svc.alertOperators(f)
}

// RetryFailedEnrollment re-runs the payment's enrollment; success resolves its failures in the
// FailureRepository.
func (svc *Service) RetryFailedEnrollment(ctx context.Context, paymentID string) enrollment.Result {
	res := svc.CreateEnrollmentFromPayment(ctx, paymentID)
	if !res.Success {
		return res
	}

	n, err := svc.Failures.ResolveFailures(ctx, paymentID, payment.ResolutionRetrySucceeded, nowFunc().UTC())
	if err != nil {
		svc.Logger.Error("fulfillment.RetryFailedEnrollment: "+err.Error(), err, map[string]interface{}{"payment_id": paymentID})
		return res
	}
	svc.Logger.Info("fulfillment.RetryFailedEnrollment: retry succeeded", map[string]interface{}{
		"payment_id":    paymentID,
		"enrollment_id": res.EnrollmentID,
		"resolved":      n,
	})
	return res
}

// ApplyGatewayEvent moves the payment to the status reported by the gateway and,
// once completed, enrolls the payer. Re-applying the current status is a no-op.
func (svc *Service) ApplyGatewayEvent(ctx context.Context, paymentID string, status payment.Status, raw []byte) (enrollment.Result, error) {
	if !status.IsValid() {
		return enrollment.Result{}, errors.Wrapf(payment.ErrInvalidTransition, "unknown status %q", status)
	}

	pmt, err := svc.Payments.GetPayment(ctx, paymentID)
	if err != nil {
		return enrollment.Result{}, err
	}
	if !pmt.Status.CanTransitionTo(status) {
		return enrollment.Result{}, errors.Wrapf(payment.ErrInvalidTransition, "%s -> %s", pmt.Status, status)
	}
	if pmt.Status != status {
		_, err = svc.Payments.UpdateStatus(ctx, pmt.ID, pmt.Status, status, json.RawMessage(raw))
		if err != nil && !svc.concurrentlyApplied(ctx, err, pmt.ID, status) {
			return enrollment.Result{}, err
		}
	}

	if status != payment.StatusCompleted {
		return enrollment.Failed(enrollment.ReasonPaymentNotCompleted), nil
	}
	return svc.CreateEnrollmentFromPayment(ctx, pmt.ID), nil
}

// concurrentlyApplied reports whether a failed status update lost to a delivery of the same event.
func (svc *Service) concurrentlyApplied(ctx context.Context, err error, paymentID string, status payment.Status) bool {
	if !errors.Is(err, payment.ErrInvalidTransition) {
		return false
	}
	pmt, err := svc.Payments.GetPayment(ctx, paymentID)
	return err == nil && pmt.Status == status
}

// ListPendingFailures returns the failures still awaiting an operator, oldest first.
func (svc *Service) ListPendingFailures(ctx context.Context) ([]payment.EnrollmentFailure, error) {
	return svc.Failures.QueryFailures(ctx, "", true /* unresolved only */)
}

func (svc *Service) sendConfirmation(ctx context.Context, pmt payment.Payment, crs course.Course) {
	p, err := svc.Principals.GetPrincipal(ctx, pmt.PrincipalID)
	if err != nil {
		svc.Logger.Error("fulfillment.sendConfirmation: "+err.Error(), err)
		return
	}
	svc.MailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: p.Name, Address: p.Email}},
		Subject:      "You are enrolled in " + crs.Title,
		TemplateName: "enrollment_confirmed",
		TemplateData: map[string]interface{}{
			"Name":        p.Name,
			"CourseID":    crs.ID,
			"CourseTitle": crs.Title,
			"Amount":      course.Paid(pmt.AmountCents, pmt.Currency).String(),
		},
	})
}

func (svc *Service) alertOperators(f payment.EnrollmentFailure) {
	if len(svc.OperatorEmails) == 0 {
		return
	}
	to := make([]mail.Address, 0, len(svc.OperatorEmails))
	for _, addr := range svc.OperatorEmails {
		to = append(to, mail.Address{Address: addr})
	}
	svc.MailSvc.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      fmt.Sprintf("Enrollment failed for payment %s", f.PaymentID),
		TemplateName: "enrollment_failed",
		TemplateData: map[string]interface{}{
			"PaymentID": f.PaymentID,
			"Error":     f.Error,
			"FailedAt":  f.CreatedAt.Format(time.RFC3339),
		},
	})
}
