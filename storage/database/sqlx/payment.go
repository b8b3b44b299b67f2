package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"

	"github.com/madrasa/backend/core"
	"github.com/madrasa/backend/core/payment"
)

const paymentColumns = "id, principal_id, course_id, amount_cents, currency, status, gateway_response, created_at, updated_at"

type paymentRow struct {
	ID              string         `db:"id"`
	PrincipalID     string         `db:"principal_id"`
	CourseID        string         `db:"course_id"`
	AmountCents     int64          `db:"amount_cents"`
	Currency        string         `db:"currency"`
	Status          string         `db:"status"`
	GatewayResponse types.JSONText `db:"gateway_response"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

type paymentRepository struct {
	baseRepository
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(exec core.DBExecutor) *paymentRepository {
	return &paymentRepository{baseRepository{exec: exec}}
}

func gatewayJSON(raw json.RawMessage) (types.JSONText, error) {
	if len(raw) == 0 {
		return types.JSONText("{}"), nil
	}
	if !json.Valid(raw) {
		return nil, errors.New("gateway response is not valid JSON")
	}
	return types.JSONText(raw), nil
}

func (repo paymentRepository) fromRow(row paymentRow) payment.Payment {
	return payment.Payment{
		ID:              row.ID,
		PrincipalID:     row.PrincipalID,
		CourseID:        row.CourseID,
		AmountCents:     row.AmountCents,
		Currency:        row.Currency,
		Status:          payment.Status(row.Status),
		GatewayResponse: json.RawMessage(row.GatewayResponse),
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
}

func (repo paymentRepository) CreatePayment(ctx context.Context, p payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	gw, err := gatewayJSON(p.GatewayResponse)
	if err != nil {
		return payment.Payment{}, err
	}
	row := paymentRow{
		ID:              p.ID,
		PrincipalID:     p.PrincipalID,
		CourseID:        p.CourseID,
		AmountCents:     p.AmountCents,
		Currency:        p.Currency,
		Status:          string(p.Status),
		GatewayResponse: gw,
		CreatedAt:       p.CreatedAt.UTC(),
		UpdatedAt:       p.UpdatedAt.UTC(),
	}
	q := `INSERT INTO payments (` + paymentColumns + `)
		VALUES (:id, :principal_id, :course_id, :amount_cents, :currency, :status, :gateway_response, :created_at, :updated_at)`
	if _, err = sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		return payment.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return repo.fromRow(row), nil
}

func (repo paymentRepository) GetPayment(ctx context.Context, id string, exec ...core.DBExecutor) (payment.Payment, error) {
	e := repo.getExec(exec)
	var row paymentRow
	q := "SELECT " + paymentColumns + " FROM payments WHERE id = ?"
	if err := sqlx.GetContext(ctx, e, &row, e.Rebind(q), id); err != nil {
		return payment.Payment{}, trapNoRowsErr(err, payment.ErrNotFound, "selecting payment")
	}
	return repo.fromRow(row), nil
}

func (repo paymentRepository) GetLatestCompleted(ctx context.Context, principalID, courseID string, exec ...core.DBExecutor) (payment.Payment, error) {
	e := repo.getExec(exec)
	var row paymentRow
	q := "SELECT " + paymentColumns + ` FROM payments
		WHERE principal_id = ? AND course_id = ? AND status = ?
		ORDER BY ` + core.DBOrdering{Field: "created_at"}.String() + ` LIMIT 1`
	err := sqlx.GetContext(ctx, e, &row, e.Rebind(q), principalID, courseID, string(payment.StatusCompleted))
	if err != nil {
		return payment.Payment{}, trapNoRowsErr(err, payment.ErrNotFound, "selecting latest completed payment")
	}
	return repo.fromRow(row), nil
}

func (repo paymentRepository) UpdateStatus(
	ctx context.Context,
	id string,
	from, to payment.Status,
	gatewayResponse json.RawMessage,
	exec ...core.DBExecutor,
) (payment.Payment, error) {
	e := repo.getExec(exec)
	now := time.Now().UTC()

	var (
		n   int
		err error
	)
	if len(gatewayResponse) > 0 {
		gw, gwErr := gatewayJSON(gatewayResponse)
		if gwErr != nil {
			return payment.Payment{}, gwErr
		}
		n, err = execAffecting(
			ctx, e,
			"UPDATE payments SET status = ?, gateway_response = ?, updated_at = ? WHERE id = ? AND status = ?",
			string(to), gw, now, id, string(from),
		)
	} else {
		n, err = execAffecting(
			ctx, e,
			"UPDATE payments SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
			string(to), now, id, string(from),
		)
	}
	if err != nil {
		return payment.Payment{}, errors.Wrap(err, "updating payment status")
	}

	if n == 0 {
		// either missing, or its status moved since it was read
		if _, err = repo.GetPayment(ctx, id, e); err != nil {
			return payment.Payment{}, err
		}
		return payment.Payment{}, payment.ErrInvalidTransition
	}
	return repo.GetPayment(ctx, id, e)
}
