package sqlxrepos_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madrasa/backend/core"
	"github.com/madrasa/backend/core/course"
	"github.com/madrasa/backend/core/enrollment"
	"github.com/madrasa/backend/core/payment"
	"github.com/madrasa/backend/core/principal"
	"github.com/madrasa/backend/testutil"
)

func TestPrincipalRepository_CreatePrincipal(t *testing.T) {
	repos := testutil.NewRepos(testutil.PrepareDB(t))
	ctx := context.Background()
	p := testutil.CreatePrincipal(t, repos.Principals, "Amal", "amal@test.eg", principal.RoleStudent, true)

	got, err := repos.Principals.GetPrincipalByEmail(ctx, "amal@test.eg")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = repos.Principals.CreatePrincipal(ctx, principal.Principal{
		Name: "Other", Email: "amal@test.eg", Role: principal.RoleStudent, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	assert.True(t, errors.Is(err, principal.ErrEmailExists), "got %v", err)

	_, err = repos.Principals.GetPrincipal(ctx, "nope")
	assert.True(t, errors.Is(err, principal.ErrNotFound), "got %v", err)
}

func TestCourseRepository_pricing(t *testing.T) {
	db := testutil.PrepareDB(t)
	repos := testutil.NewRepos(db)
	ctx := context.Background()
	prof := testutil.CreatePrincipal(t, repos.Principals, "Prof", "prof@test.eg", principal.RoleProfessor, true)

	paid := testutil.CreateCourse(t, repos.Courses, "Nahw", prof.ID, course.Paid(19900, "EGP"), true)
	got, err := repos.Courses.GetCourse(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, course.Paid(19900, "EGP"), got.Pricing)

	free := testutil.CreateCourse(t, repos.Courses, "Sarf", prof.ID, course.Free(), true)
	got, err = repos.Courses.GetCourse(ctx, free.ID)
	require.NoError(t, err)
	assert.True(t, got.IsFree())

	// rows written outside the application may still carry legacy prices
	for _, price := range []int64{0, -100} {
		id := uuid.New().String()
		_, err = db.ExecContext(ctx, db.Rebind(`INSERT INTO courses
			(id, title, is_published, price_cents, currency, professor_id, lesson_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			id, "Legacy", true, price, "EGP", prof.ID, 0, time.Now().UTC(), time.Now().UTC(),
		)
		require.NoError(t, err)

		got, err = repos.Courses.GetCourse(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.IsFree(), "price %d", price)
	}

	_, err = repos.Courses.GetCourse(ctx, "nope")
	assert.True(t, errors.Is(err, course.ErrNotFound), "got %v", err)
}

func TestEnrollmentRepository(t *testing.T) {
	repos := testutil.NewRepos(testutil.PrepareDB(t))
	ctx := context.Background()
	prof := testutil.CreatePrincipal(t, repos.Principals, "Prof", "prof@test.eg", principal.RoleProfessor, true)
	student := testutil.CreatePrincipal(t, repos.Principals, "Amal", "amal@test.eg", principal.RoleStudent, true)
	crs := testutil.CreateCourse(t, repos.Courses, "Nahw", prof.ID, course.Free(), true)

	e := enrollment.New(student.ID, crs.ID, enrollment.SourceFree, "", time.Now())
	e.CompletedLessonIDs = []string{"l1", "l2"}
	created, err := repos.Enrollments.CreateEnrollment(ctx, e)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	got, err := repos.Enrollments.FindEnrollment(ctx, student.ID, crs.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, []string{"l1", "l2"}, got.CompletedLessonIDs)
	assert.False(t, got.PaymentID.Valid)

	_, err = repos.Enrollments.CreateEnrollment(ctx, enrollment.New(student.ID, crs.ID, enrollment.SourceFree, "", time.Now()))
	assert.True(t, errors.Is(err, enrollment.ErrAlreadyEnrolled), "got %v", err)
	assert.Equal(t, 1, testutil.CountEnrollments(t, repos.Enrollments, student.ID, crs.ID))

	_, err = repos.Enrollments.FindEnrollment(ctx, prof.ID, crs.ID)
	assert.True(t, errors.Is(err, enrollment.ErrNotFound), "got %v", err)
}

func TestTransactor_rollback(t *testing.T) {
	repos := testutil.NewRepos(testutil.PrepareDB(t))
	ctx := context.Background()
	prof := testutil.CreatePrincipal(t, repos.Principals, "Prof", "prof@test.eg", principal.RoleProfessor, true)
	student := testutil.CreatePrincipal(t, repos.Principals, "Amal", "amal@test.eg", principal.RoleStudent, true)
	crs := testutil.CreateCourse(t, repos.Courses, "Nahw", prof.ID, course.Free(), true)
	boom := errors.New("boom")

	err := repos.Tx.InTx(ctx, func(exec core.DBExecutor) error {
		e, err := repos.Enrollments.CreateEnrollment(ctx, enrollment.New(student.ID, crs.ID, enrollment.SourceFree, "", time.Now()), exec)
		if err != nil {
			return err
		}
		ms, err := enrollment.NewCourseStart(e, enrollment.CourseStartMetadata{EnrollmentID: e.ID}, time.Now())
		if err != nil {
			return err
		}
		if _, err = repos.Milestones.CreateMilestone(ctx, ms, exec); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom), "got %v", err)
	assert.Zero(t, testutil.CountEnrollments(t, repos.Enrollments, student.ID, crs.ID))

	assert.Panics(t, func() {
		_ = repos.Tx.InTx(ctx, func(exec core.DBExecutor) error {
			_, _ = repos.Enrollments.CreateEnrollment(ctx, enrollment.New(student.ID, crs.ID, enrollment.SourceFree, "", time.Now()), exec)
			panic("boom")
		})
	})
	assert.Zero(t, testutil.CountEnrollments(t, repos.Enrollments, student.ID, crs.ID))
}

func TestPaymentRepository_UpdateStatus(t *testing.T) {
	repos := testutil.NewRepos(testutil.PrepareDB(t))
	ctx := context.Background()
	prof := testutil.CreatePrincipal(t, repos.Principals, "Prof", "prof@test.eg", principal.RoleProfessor, true)
	student := testutil.CreatePrincipal(t, repos.Principals, "Amal", "amal@test.eg", principal.RoleStudent, true)
	crs := testutil.CreateCourse(t, repos.Courses, "Nahw", prof.ID, course.Paid(19900, "EGP"), true)
	pmt := testutil.CreatePayment(t, repos.Payments, student.ID, crs.ID, 19900, payment.StatusPending)

	_, err := repos.Payments.UpdateStatus(ctx, pmt.ID, payment.StatusPending, payment.StatusCompleted, json.RawMessage(`{oops`))
	assert.Error(t, err)

	updated, err := repos.Payments.UpdateStatus(ctx, pmt.ID, payment.StatusPending, payment.StatusCompleted, json.RawMessage(`{"ref":"tx_1"}`))
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, updated.Status)
	assert.JSONEq(t, `{"ref":"tx_1"}`, string(updated.GatewayResponse))

	// the stored status moved on: compare-and-set refuses
	_, err = repos.Payments.UpdateStatus(ctx, pmt.ID, payment.StatusPending, payment.StatusFailed, nil)
	assert.True(t, errors.Is(err, payment.ErrInvalidTransition), "got %v", err)

	_, err = repos.Payments.UpdateStatus(ctx, "nope", payment.StatusPending, payment.StatusFailed, nil)
	assert.True(t, errors.Is(err, payment.ErrNotFound), "got %v", err)
}

func TestPaymentRepository_GetLatestCompleted(t *testing.T) {
	repos := testutil.NewRepos(testutil.PrepareDB(t))
	ctx := context.Background()
	prof := testutil.CreatePrincipal(t, repos.Principals, "Prof", "prof@test.eg", principal.RoleProfessor, true)
	student := testutil.CreatePrincipal(t, repos.Principals, "Amal", "amal@test.eg", principal.RoleStudent, true)
	crs := testutil.CreateCourse(t, repos.Courses, "Nahw", prof.ID, course.Paid(19900, "EGP"), true)

	_, err := repos.Payments.GetLatestCompleted(ctx, student.ID, crs.ID)
	assert.True(t, errors.Is(err, payment.ErrNotFound), "got %v", err)

	now := time.Now().UTC().Truncate(time.Second)
	testutil.CreatePayment(t, repos.Payments, student.ID, crs.ID, 19900, payment.StatusCompleted, now.Add(-2*time.Hour))
	latest := testutil.CreatePayment(t, repos.Payments, student.ID, crs.ID, 19900, payment.StatusCompleted, now.Add(-time.Hour))
	testutil.CreatePayment(t, repos.Payments, student.ID, crs.ID, 19900, payment.StatusPending, now)

	got, err := repos.Payments.GetLatestCompleted(ctx, student.ID, crs.ID)
	require.NoError(t, err)
	assert.Equal(t, latest.ID, got.ID)
}

func TestFailureRepository(t *testing.T) {
	repos := testutil.NewRepos(testutil.PrepareDB(t))
	ctx := context.Background()
	prof := testutil.CreatePrincipal(t, repos.Principals, "Prof", "prof@test.eg", principal.RoleProfessor, true)
	student := testutil.CreatePrincipal(t, repos.Principals, "Amal", "amal@test.eg", principal.RoleStudent, true)
	crs := testutil.CreateCourse(t, repos.Courses, "Nahw", prof.ID, course.Paid(19900, "EGP"), true)
	p1 := testutil.CreatePayment(t, repos.Payments, student.ID, crs.ID, 19900, payment.StatusCompleted)
	p2 := testutil.CreatePayment(t, repos.Payments, student.ID, crs.ID, 19900, payment.StatusCompleted)

	now := time.Now().UTC().Truncate(time.Second)
	create := func(paymentID, msg string, at time.Time) payment.EnrollmentFailure {
		f, err := repos.Failures.CreateFailure(ctx, payment.EnrollmentFailure{
			PaymentID: paymentID, Error: msg, RequiresManualReview: true, CreatedAt: at,
		})
		require.NoError(t, err)
		return f
	}
	second := create(p1.ID, "second", now.Add(-time.Minute))
	first := create(p1.ID, "first", now.Add(-time.Hour))
	other := create(p2.ID, "other", now)

	got, err := repos.Failures.QueryFailures(ctx, p1.ID, true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)

	n, err := repos.Failures.ResolveFailures(ctx, p1.ID, payment.ResolutionRetrySucceeded, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repos.Failures.ResolveFailures(ctx, p1.ID, payment.ResolutionRetrySucceeded, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	pending, err := repos.Failures.QueryFailures(ctx, "", true)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, other.ID, pending[0].ID)

	resolved, err := repos.Failures.QueryFailures(ctx, p1.ID, false)
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	for _, f := range resolved {
		assert.True(t, f.IsResolved())
		assert.Equal(t, payment.ResolutionRetrySucceeded, f.Resolution)
	}
}
