package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/madrasa/backend/core"
	"github.com/madrasa/backend/core/course"
)

const courseColumns = "id, title, is_published, price_cents, currency, professor_id, lesson_count, created_at, updated_at"

type courseRow struct {
	ID          string     `db:"id"`
	Title       string     `db:"title"`
	IsPublished bool       `db:"is_published"`
	PriceCents  null.Int64 `db:"price_cents"`
	Currency    string     `db:"currency"`
	ProfessorID string     `db:"professor_id"`
	LessonCount int        `db:"lesson_count"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

type courseRepository struct {
	baseRepository
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(exec core.DBExecutor) *courseRepository {
	return &courseRepository{baseRepository{exec: exec}}
}

func (repo courseRepository) toRow(c course.Course) courseRow {
	return courseRow{
		ID:          c.ID,
		Title:       c.Title,
		IsPublished: c.IsPublished,
		PriceCents:  c.Pricing.PriceCents(),
		Currency:    c.Pricing.Currency(),
		ProfessorID: c.ProfessorID,
		LessonCount: c.LessonCount,
		CreatedAt:   c.CreatedAt.UTC(),
		UpdatedAt:   c.UpdatedAt.UTC(),
	}
}

func (repo courseRepository) fromRow(row courseRow) course.Course {
	return course.Course{
		ID:          row.ID,
		Title:       row.Title,
		IsPublished: row.IsPublished,
		Pricing:     course.PricingFromStorage(row.PriceCents, row.Currency),
		ProfessorID: row.ProfessorID,
		LessonCount: row.LessonCount,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	row := repo.toRow(c)
	q := `INSERT INTO courses (` + courseColumns + `)
		VALUES (:id, :title, :is_published, :price_cents, :currency, :professor_id, :lesson_count, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return repo.fromRow(row), nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	e := repo.getExec(exec)
	var row courseRow
	q := "SELECT " + courseColumns + " FROM courses WHERE id = ?"
	if err := sqlx.GetContext(ctx, e, &row, e.Rebind(q), id); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "selecting course")
	}
	return repo.fromRow(row), nil
}

func (repo courseRepository) SetPublished(ctx context.Context, id string, published bool, exec ...core.DBExecutor) error {
	n, err := execAffecting(
		ctx, repo.getExec(exec),
		"UPDATE courses SET is_published = ?, updated_at = ? WHERE id = ?",
		published, time.Now().UTC(), id,
	)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	if n == 0 {
		return course.ErrNotFound
	}
	return nil
}
