package fulfillment_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appfs "github.com/madrasa/backend/assets"
	"github.com/madrasa/backend/core"
	"github.com/madrasa/backend/core/course"
	"github.com/madrasa/backend/core/enrollment"
	. "github.com/madrasa/backend/core/fulfillment"
	"github.com/madrasa/backend/core/payment"
	"github.com/madrasa/backend/core/principal"
	"github.com/madrasa/backend/services/email"
	"github.com/madrasa/backend/testutil"
)

type fixture struct {
	repos   *testutil.Repos
	deps    Deps
	svc     *Service
	mailSvc *emailsvc.ConsoleServiceMock
	logger  *testutil.Logger
	student principal.Principal
	course  course.Course
}

func setup(t *testing.T) *fixture {
	conf := core.NewTestConfig()
	logger := &testutil.Logger{}
	core.ParseEmailTemplates(appfs.FS, conf, logger)

	db := testutil.PrepareDB(t)
	repos := testutil.NewRepos(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	deps := Deps{
		Tx:             repos.Tx,
		Courses:        repos.Courses,
		Principals:     repos.Principals,
		Enrollments:    repos.Enrollments,
		Milestones:     repos.Milestones,
		Payments:       repos.Payments,
		Failures:       repos.Failures,
		MailSvc:        mailSvc,
		Logger:         logger,
		Metrics:        core.NopMetrics(),
		OperatorEmails: conf.OperatorEmails,
	}
	prof := testutil.CreatePrincipal(t, repos.Principals, "Prof", "prof@test.eg", principal.RoleProfessor, true)
	return &fixture{
		repos:   repos,
		deps:    deps,
		svc:     NewService(deps),
		mailSvc: mailSvc,
		logger:  logger,
		student: testutil.CreatePrincipal(t, repos.Principals, "Amal", "amal@test.eg", principal.RoleStudent, true),
		course:  testutil.CreateCourse(t, repos.Courses, "Arabic Grammar", prof.ID, course.Paid(19900, "EGP"), true),
	}
}

func TestService_CreateEnrollmentFromPayment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	pmt := testutil.CreatePayment(t, f.repos.Payments, f.student.ID, f.course.ID, 19900, payment.StatusCompleted)

	res := f.svc.CreateEnrollmentFromPayment(ctx, pmt.ID)
	require.True(t, res.Success, res.Message)
	assert.False(t, res.AlreadyEnrolled)

	// webhook redelivery
	again := f.svc.CreateEnrollmentFromPayment(ctx, pmt.ID)
	require.True(t, again.Success, again.Message)
	assert.True(t, again.AlreadyEnrolled)
	assert.Equal(t, res.EnrollmentID, again.EnrollmentID)

	assert.Equal(t, 1, testutil.CountEnrollments(t, f.repos.Enrollments, f.student.ID, f.course.ID))
	enr, err := f.repos.Enrollments.GetEnrollment(ctx, res.EnrollmentID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.SourcePaymentWebhook, enr.Source)
	assert.Equal(t, pmt.ID, enr.PaymentID.String)

	milestones, err := f.repos.Milestones.QueryMilestones(ctx, res.EnrollmentID)
	require.NoError(t, err)
	require.Len(t, milestones, 1)
	assert.Equal(t, enrollment.MilestoneCourseStart, milestones[0].Kind)
	var meta enrollment.CourseStartMetadata
	require.NoError(t, json.Unmarshal(milestones[0].Metadata, &meta))
	assert.Equal(t, enrollment.CourseStartMetadata{
		PaymentID:    pmt.ID,
		EnrollmentID: res.EnrollmentID,
		CourseTitle:  "Arabic Grammar",
		AmountCents:  19900,
		Currency:     "EGP",
	}, meta)

	// one confirmation, not repeated on redelivery
	sent := f.mailSvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "amal@test.eg", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "199.00 EGP")
	assert.Empty(t, f.logger.Errors())
}

func TestService_CreateEnrollmentFromPayment_rejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	prof := testutil.CreatePrincipal(t, f.repos.Principals, "Prof 2", "prof2@test.eg", principal.RoleProfessor, true)
	draft := testutil.CreateCourse(t, f.repos.Courses, "Withdrawn", prof.ID, course.Paid(100, "EGP"), false)

	pending := testutil.CreatePayment(t, f.repos.Payments, f.student.ID, f.course.ID, 19900, payment.StatusPending)
	cancelled := testutil.CreatePayment(t, f.repos.Payments, f.student.ID, f.course.ID, 19900, payment.StatusCancelled)
	forDraft := testutil.CreatePayment(t, f.repos.Payments, f.student.ID, draft.ID, 100, payment.StatusCompleted)

	tests := []struct {
		name       string
		paymentID  string
		wantReason enrollment.Reason
	}{
		{name: "unknown payment", paymentID: "missing", wantReason: enrollment.ReasonPaymentNotFound},
		{name: "pending payment", paymentID: pending.ID, wantReason: enrollment.ReasonPaymentNotCompleted},
		{name: "cancelled payment", paymentID: cancelled.ID, wantReason: enrollment.ReasonPaymentNotCompleted},
		{name: "unpublished course", paymentID: forDraft.ID, wantReason: enrollment.ReasonCourseNotPublished},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.svc.CreateEnrollmentFromPayment(ctx, tt.paymentID)
			assert.False(t, res.Success)
			assert.Equal(t, tt.wantReason, res.Reason)
		})
	}
	assert.Equal(t, 0, testutil.CountEnrollments(t, f.repos.Enrollments, f.student.ID, f.course.ID))
	assert.Equal(t, 0, testutil.CountEnrollments(t, f.repos.Enrollments, f.student.ID, draft.ID))

	failures, err := f.svc.ListPendingFailures(ctx)
	require.NoError(t, err)
	assert.Empty(t, failures, "business rejections are not enrollment failures")
}

// brokenMilestones fails every insert, aborting the enrollment transaction.
type brokenMilestones struct {
	enrollment.MilestoneRepository
}

func (brokenMilestones) CreateMilestone(context.Context, enrollment.Milestone, ...core.DBExecutor) (enrollment.Milestone, error) {
	return enrollment.Milestone{}, errors.New("disk I/O error")
}

func TestService_failureAndRetry(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	pmt := testutil.CreatePayment(t, f.repos.Payments, f.student.ID, f.course.ID, 19900, payment.StatusCompleted)

	deps := f.deps
	deps.Milestones = &brokenMilestones{}
	broken := NewService(deps)

	res := broken.CreateEnrollmentFromPayment(ctx, pmt.ID)
	assert.False(t, res.Success)
	assert.Equal(t, enrollment.ReasonEnrollmentFailed, res.Reason)

	// the enrollment insert was rolled back with the milestone
	assert.Equal(t, 0, testutil.CountEnrollments(t, f.repos.Enrollments, f.student.ID, f.course.ID))

	failures, err := f.svc.ListPendingFailures(ctx)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, pmt.ID, failures[0].PaymentID)
	assert.Contains(t, failures[0].Error, "disk I/O error")
	assert.True(t, failures[0].RequiresManualReview)
	assert.False(t, failures[0].IsResolved())

	// operators were alerted
	sent := f.mailSvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ops@madrasa.test", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "admin retry -payment "+pmt.ID)

	// a failed retry appends another failure
	res = broken.RetryFailedEnrollment(ctx, pmt.ID)
	assert.False(t, res.Success)
	failures, err = f.svc.ListPendingFailures(ctx)
	require.NoError(t, err)
	assert.Len(t, failures, 2)

	res = f.svc.RetryFailedEnrollment(ctx, pmt.ID)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 1, testutil.CountEnrollments(t, f.repos.Enrollments, f.student.ID, f.course.ID))

	failures, err = f.svc.ListPendingFailures(ctx)
	require.NoError(t, err)
	assert.Empty(t, failures)

	history, err := f.repos.Failures.QueryFailures(ctx, pmt.ID, false)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, fl := range history {
		assert.True(t, fl.IsResolved())
		assert.Equal(t, payment.ResolutionRetrySucceeded, fl.Resolution)
	}
}

// racingEnrollments hides existing enrollments from the first lookup, as if a concurrent
// delivery inserted one between the check and the insert.
type racingEnrollments struct {
	enrollment.Repository
	hidden bool
}

func (r *racingEnrollments) FindEnrollment(ctx context.Context, principalID, courseID string, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	if r.hidden {
		r.hidden = false
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	return r.Repository.FindEnrollment(ctx, principalID, courseID, exec...)
}

func TestService_CreateEnrollmentFromPayment_conflictResolvesToExisting(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	pmt := testutil.CreatePayment(t, f.repos.Payments, f.student.ID, f.course.ID, 19900, payment.StatusCompleted)

	winner := f.svc.CreateEnrollmentFromPayment(ctx, pmt.ID)
	require.True(t, winner.Success, winner.Message)
	require.False(t, winner.AlreadyEnrolled)

	deps := f.deps
	deps.Enrollments = &racingEnrollments{Repository: f.repos.Enrollments, hidden: true}
	racing := NewService(deps)

	res := racing.CreateEnrollmentFromPayment(ctx, pmt.ID)
	require.True(t, res.Success, res.Message)
	assert.True(t, res.AlreadyEnrolled)
	assert.Equal(t, winner.EnrollmentID, res.EnrollmentID)

	// the losing unit was rolled back with its milestone
	assert.Equal(t, 1, testutil.CountEnrollments(t, f.repos.Enrollments, f.student.ID, f.course.ID))
	milestones, err := f.repos.Milestones.QueryMilestones(ctx, winner.EnrollmentID)
	require.NoError(t, err)
	assert.Len(t, milestones, 1)

	history, err := f.repos.Failures.QueryFailures(ctx, pmt.ID, false)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Len(t, f.mailSvc.Sent(), 1)
	assert.Empty(t, f.logger.Errors())
}

func TestService_ApplyGatewayEvent_concurrentRedelivery(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	pmt := testutil.CreatePayment(t, f.repos.Payments, f.student.ID, f.course.ID, 19900, payment.StatusPending)
	raw := []byte(`{"obj": {"id": 4242, "success": true}}`)

	const deliveries = 8
	results := make([]enrollment.Result, deliveries)
	errs := make([]error, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.ApplyGatewayEvent(ctx, pmt.ID, payment.StatusCompleted, raw)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.True(t, results[i].Success, results[i].Message)
		assert.Equal(t, results[0].EnrollmentID, results[i].EnrollmentID)
	}
	assert.Equal(t, 1, testutil.CountEnrollments(t, f.repos.Enrollments, f.student.ID, f.course.ID))
	milestones, err := f.repos.Milestones.QueryMilestones(ctx, results[0].EnrollmentID)
	require.NoError(t, err)
	assert.Len(t, milestones, 1)
	assert.Len(t, f.mailSvc.Sent(), 1)
}

func TestService_RetryFailedEnrollment_alreadyEnrolled(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	pmt := testutil.CreatePayment(t, f.repos.Payments, f.student.ID, f.course.ID, 19900, payment.StatusCompleted)
	f.svc.HandleEnrollmentFailure(ctx, pmt.ID, "timeout")
	existing := testutil.CreateEnrollment(t, f.repos.Enrollments, f.student.ID, f.course.ID)

	res := f.svc.RetryFailedEnrollment(ctx, pmt.ID)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, existing.ID, res.EnrollmentID)

	failures, err := f.svc.ListPendingFailures(ctx)
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestService_ApplyGatewayEvent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	raw := []byte(`{"obj": {"id": 4242, "success": true}}`)

	t.Run("pending to completed enrolls", func(t *testing.T) {
		pmt := testutil.CreatePayment(t, f.repos.Payments, f.student.ID, f.course.ID, 19900, payment.StatusPending)

		res, err := f.svc.ApplyGatewayEvent(ctx, pmt.ID, payment.StatusCompleted, raw)
		require.NoError(t, err)
		require.True(t, res.Success, res.Message)

		got, err := f.repos.Payments.GetPayment(ctx, pmt.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusCompleted, got.Status)
		assert.JSONEq(t, string(raw), string(got.GatewayResponse))

		// redelivery is a no-op
		again, err := f.svc.ApplyGatewayEvent(ctx, pmt.ID, payment.StatusCompleted, raw)
		require.NoError(t, err)
		assert.True(t, again.AlreadyEnrolled)
		assert.Equal(t, res.EnrollmentID, again.EnrollmentID)
	})

	t.Run("completed to refunded", func(t *testing.T) {
		pmt := testutil.CreatePayment(t, f.repos.Payments, f.student.ID, f.course.ID, 19900, payment.StatusCompleted)
		res, err := f.svc.ApplyGatewayEvent(ctx, pmt.ID, payment.StatusRefunded, nil)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, enrollment.ReasonPaymentNotCompleted, res.Reason)
	})

	t.Run("invalid transitions", func(t *testing.T) {
		failed := testutil.CreatePayment(t, f.repos.Payments, f.student.ID, f.course.ID, 19900, payment.StatusFailed)
		_, err := f.svc.ApplyGatewayEvent(ctx, failed.ID, payment.StatusCompleted, raw)
		assert.True(t, errors.Is(err, payment.ErrInvalidTransition), "got %v", err)

		_, err = f.svc.ApplyGatewayEvent(ctx, failed.ID, payment.Status("PAID"), raw)
		assert.True(t, errors.Is(err, payment.ErrInvalidTransition), "got %v", err)

		got, err := f.repos.Payments.GetPayment(ctx, failed.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusFailed, got.Status)
	})

	t.Run("unknown payment", func(t *testing.T) {
		_, err := f.svc.ApplyGatewayEvent(ctx, "missing", payment.StatusCompleted, raw)
		assert.True(t, errors.Is(err, payment.ErrNotFound), "got %v", err)
	})
}
