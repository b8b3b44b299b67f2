package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/madrasa/backend/core"
	"github.com/madrasa/backend/core/payment"
)

const failureColumns = "id, payment_id, error, requires_manual_review, created_at, resolved_at, resolution"

type failureRow struct {
	ID                   string    `db:"id"`
	PaymentID            string    `db:"payment_id"`
	Error                string    `db:"error"`
	RequiresManualReview bool      `db:"requires_manual_review"`
	CreatedAt            time.Time `db:"created_at"`
	ResolvedAt           null.Time `db:"resolved_at"`
	Resolution           string    `db:"resolution"`
}

func (row failureRow) failure() payment.EnrollmentFailure {
	f := payment.EnrollmentFailure{
		ID:                   row.ID,
		PaymentID:            row.PaymentID,
		Error:                row.Error,
		RequiresManualReview: row.RequiresManualReview,
		CreatedAt:            row.CreatedAt.UTC(),
		Resolution:           row.Resolution,
	}
	if row.ResolvedAt.Valid {
		at := row.ResolvedAt.Time.UTC()
		f.ResolvedAt = &at
	}
	return f
}

type failureRepository struct {
	baseRepository
}

var _ payment.FailureRepository = (*failureRepository)(nil) // interface compliance check

func NewFailureRepository(exec core.DBExecutor) *failureRepository {
	return &failureRepository{baseRepository{exec: exec}}
}

func (repo failureRepository) CreateFailure(ctx context.Context, f payment.EnrollmentFailure, exec ...core.DBExecutor) (payment.EnrollmentFailure, error) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	row := failureRow{
		ID:                   f.ID,
		PaymentID:            f.PaymentID,
		Error:                f.Error,
		RequiresManualReview: f.RequiresManualReview,
		CreatedAt:            f.CreatedAt.UTC(),
		ResolvedAt:           null.TimeFromPtr(f.ResolvedAt),
		Resolution:           f.Resolution,
	}
	q := `INSERT INTO enrollment_failures (` + failureColumns + `)
		VALUES (:id, :payment_id, :error, :requires_manual_review, :created_at, :resolved_at, :resolution)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		return payment.EnrollmentFailure{}, errors.Wrap(err, "inserting enrollment failure")
	}
	return row.failure(), nil
}

// QueryFailures lists failures, oldest first. An empty paymentID matches every payment.
func (repo failureRepository) QueryFailures(ctx context.Context, paymentID string, unresolvedOnly bool, exec ...core.DBExecutor) ([]payment.EnrollmentFailure, error) {
	var (
		where []string
		args  []interface{}
	)
	if paymentID != "" {
		where = append(where, "payment_id = ?")
		args = append(args, paymentID)
	}
	if unresolvedOnly {
		where = append(where, "resolved_at IS NULL")
	}

	q := "SELECT " + failureColumns + " FROM enrollment_failures"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + core.DBOrdering{Field: "created_at", Ascending: true}.String()

	e := repo.getExec(exec)
	var rows []failureRow
	if err := sqlx.SelectContext(ctx, e, &rows, e.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting enrollment failures")
	}
	failures := make([]payment.EnrollmentFailure, 0, len(rows))
	for _, row := range rows {
		failures = append(failures, row.failure())
	}
	return failures, nil
}

func (repo failureRepository) ResolveFailures(ctx context.Context, paymentID, resolution string, at time.Time, exec ...core.DBExecutor) (int, error) {
	n, err := execAffecting(
		ctx, repo.getExec(exec),
		"UPDATE enrollment_failures SET resolved_at = ?, resolution = ? WHERE payment_id = ? AND resolved_at IS NULL",
		at.UTC(), resolution, paymentID,
	)
	if err != nil {
		return 0, errors.Wrap(err, "resolving enrollment failures")
	}
	return n, nil
}
