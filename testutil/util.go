// Package testutil provides a migrated sqlite database and seed helpers for tests.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/madrasa/backend/core"
	"github.com/madrasa/backend/core/course"
	"github.com/madrasa/backend/core/enrollment"
	"github.com/madrasa/backend/core/payment"
	"github.com/madrasa/backend/core/principal"
	"github.com/madrasa/backend/storage/database"
	sqlxrepos "github.com/madrasa/backend/storage/database/sqlx"
)

// Repos bundles every repository over a single database.
type Repos struct {
	Principals  principal.Repository
	Courses     course.Repository
	Payments    payment.Repository
	Failures    payment.FailureRepository
	Enrollments enrollment.Repository
	Milestones  enrollment.MilestoneRepository
	Tx          core.Transactor
}

func NewRepos(db *sqlx.DB) *Repos {
	return &Repos{
		Principals:  sqlxrepos.NewPrincipalRepository(db),
		Courses:     sqlxrepos.NewCourseRepository(db),
		Payments:    sqlxrepos.NewPaymentRepository(db),
		Failures:    sqlxrepos.NewFailureRepository(db),
		Enrollments: sqlxrepos.NewEnrollmentRepository(db),
		Milestones:  sqlxrepos.NewMilestoneRepository(db),
		Tx:          database.NewTransactor(db),
	}
}

// PrepareDB opens a fresh, fully migrated sqlite database living for the duration of the test.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conf := core.NewTestConfig()
	conf.Database.Name = filepath.Join(t.TempDir(), "test.db")

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, "up"); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

func CreatePrincipal(t *testing.T, repo principal.Repository, name, email string, role principal.Role, isActive bool) principal.Principal {
	t.Helper()

	now := time.Now().UTC()
	p, err := repo.CreatePrincipal(context.Background(), principal.Principal{
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreatePrincipal() failed: %v", err)
	}
	return p
}

func CreateCourse(t *testing.T, repo course.Repository, title, professorID string, pricing course.Pricing, published bool) course.Course {
	t.Helper()

	now := time.Now().UTC()
	c, err := repo.CreateCourse(context.Background(), course.Course{
		Title:       title,
		IsPublished: published,
		Pricing:     pricing,
		ProfessorID: professorID,
		LessonCount: 12,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

func CreatePayment(
	t *testing.T,
	repo payment.Repository,
	principalID, courseID string,
	amountCents int64,
	status payment.Status,
	createdAt ...time.Time,
) payment.Payment {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	p, err := repo.CreatePayment(context.Background(), payment.Payment{
		PrincipalID: principalID,
		CourseID:    courseID,
		AmountCents: amountCents,
		Currency:    "EGP",
		Status:      status,
		CreatedAt:   tstamp,
		UpdatedAt:   tstamp,
	})
	if err != nil {
		t.Fatalf("CreatePayment() failed: %v", err)
	}
	return p
}

func CreateEnrollment(t *testing.T, repo enrollment.Repository, principalID, courseID string) enrollment.Enrollment {
	t.Helper()

	e, err := repo.CreateEnrollment(
		context.Background(),
		enrollment.New(principalID, courseID, enrollment.SourceFree, "", time.Now()),
	)
	if err != nil {
		t.Fatalf("CreateEnrollment() failed: %v", err)
	}
	return e
}

// CountEnrollments returns how many enrollments exist for the pair.
func CountEnrollments(t *testing.T, repo enrollment.Repository, principalID, courseID string) int {
	t.Helper()

	n, err := repo.CountEnrollments(context.Background(), principalID, courseID)
	if err != nil {
		t.Fatalf("CountEnrollments() failed: %v", err)
	}
	return n
}

// Logger is a core.Logger recording messages by level.
type Logger struct {
	mu     sync.Mutex
	errors []string
	infos  []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) Debug(string, ...interface{}) {}
func (l *Logger) Warn(string, ...interface{})  {}

func (l *Logger) Info(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *Logger) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *Logger) Fatal(msg string, args ...interface{}) { l.Error(msg, args...) }

func (l *Logger) Errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

func (l *Logger) Infos() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.infos...)
}
