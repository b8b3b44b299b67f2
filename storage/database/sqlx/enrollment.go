package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/madrasa/backend/core"
	"github.com/madrasa/backend/core/enrollment"
	"github.com/madrasa/backend/storage/database"
)

const enrollmentColumns = "id, principal_id, course_id, source, payment_id, enrolled_at, progress_percent, " +
	"completed_lesson_ids, total_watch_seconds, last_accessed_at"

type enrollmentRow struct {
	ID                 string         `db:"id"`
	PrincipalID        string         `db:"principal_id"`
	CourseID           string         `db:"course_id"`
	Source             string         `db:"source"`
	PaymentID          null.String    `db:"payment_id"`
	EnrolledAt         time.Time      `db:"enrolled_at"`
	ProgressPercent    int            `db:"progress_percent"`
	CompletedLessonIDs types.JSONText `db:"completed_lesson_ids"`
	TotalWatchSeconds  int64          `db:"total_watch_seconds"`
	LastAccessedAt     null.Time      `db:"last_accessed_at"`
}

type enrollmentRepository struct {
	baseRepository
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(exec core.DBExecutor) *enrollmentRepository {
	return &enrollmentRepository{baseRepository{exec: exec}}
}

func (repo enrollmentRepository) toRow(e enrollment.Enrollment) (enrollmentRow, error) {
	lessons := e.CompletedLessonIDs
	if lessons == nil {
		lessons = []string{}
	}
	rawLessons, err := json.Marshal(lessons)
	if err != nil {
		return enrollmentRow{}, errors.Wrap(err, "encoding completed lessons")
	}
	return enrollmentRow{
		ID:                 e.ID,
		PrincipalID:        e.PrincipalID,
		CourseID:           e.CourseID,
		Source:             string(e.Source),
		PaymentID:          e.PaymentID,
		EnrolledAt:         e.EnrolledAt.UTC(),
		ProgressPercent:    e.ProgressPercent,
		CompletedLessonIDs: types.JSONText(rawLessons),
		TotalWatchSeconds:  e.TotalWatchSeconds,
		LastAccessedAt:     e.LastAccessedAt,
	}, nil
}

func (repo enrollmentRepository) fromRow(row enrollmentRow) (enrollment.Enrollment, error) {
	lessons := make([]string, 0)
	if err := row.CompletedLessonIDs.Unmarshal(&lessons); err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "decoding completed lessons")
	}
	return enrollment.Enrollment{
		ID:                 row.ID,
		PrincipalID:        row.PrincipalID,
		CourseID:           row.CourseID,
		Source:             enrollment.Source(row.Source),
		PaymentID:          row.PaymentID,
		EnrolledAt:         row.EnrolledAt.UTC(),
		ProgressPercent:    row.ProgressPercent,
		CompletedLessonIDs: lessons,
		TotalWatchSeconds:  row.TotalWatchSeconds,
		LastAccessedAt:     row.LastAccessedAt,
	}, nil
}

// CreateEnrollment inserts e; enrollment.ErrAlreadyEnrolled is returned when the pair is taken.
func (repo enrollmentRepository) CreateEnrollment(ctx context.Context, e enrollment.Enrollment, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	row, err := repo.toRow(e)
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	q := `INSERT INTO enrollments (` + enrollmentColumns + `)
		VALUES (:id, :principal_id, :course_id, :source, :payment_id, :enrolled_at, :progress_percent,
			:completed_lesson_ids, :total_watch_seconds, :last_accessed_at)`
	if _, err = sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		if database.IsUniqueViolation(err) {
			return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return repo.fromRow(row)
}

func (repo enrollmentRepository) GetEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	return repo.getOne(ctx, repo.getExec(exec), "id = ?", id)
}

func (repo enrollmentRepository) FindEnrollment(ctx context.Context, principalID, courseID string, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	return repo.getOne(ctx, repo.getExec(exec), "principal_id = ? AND course_id = ?", principalID, courseID)
}

func (repo enrollmentRepository) getOne(ctx context.Context, e core.DBExecutor, where string, args ...interface{}) (enrollment.Enrollment, error) {
	var row enrollmentRow
	q := "SELECT " + enrollmentColumns + " FROM enrollments WHERE " + where
	if err := sqlx.GetContext(ctx, e, &row, e.Rebind(q), args...); err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "selecting enrollment")
	}
	return repo.fromRow(row)
}

func (repo enrollmentRepository) CountEnrollments(ctx context.Context, principalID, courseID string, exec ...core.DBExecutor) (int, error) {
	e := repo.getExec(exec)
	var n int
	q := "SELECT COUNT(*) FROM enrollments WHERE principal_id = ? AND course_id = ?"
	if err := sqlx.GetContext(ctx, e, &n, e.Rebind(q), principalID, courseID); err != nil {
		return 0, errors.Wrap(err, "counting enrollments")
	}
	return n, nil
}
