package sqlxrepos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/madrasa/backend/core"
	"github.com/madrasa/backend/core/principal"
	"github.com/madrasa/backend/storage/database"
)

const principalColumns = "id, name, email, role, is_active, created_at, updated_at"

type principalRepository struct {
	baseRepository
}

var _ principal.Repository = (*principalRepository)(nil) // interface compliance check

func NewPrincipalRepository(exec core.DBExecutor) *principalRepository {
	return &principalRepository{baseRepository{exec: exec}}
}

func (repo principalRepository) CreatePrincipal(ctx context.Context, p principal.Principal, exec ...core.DBExecutor) (principal.Principal, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()

	q := `INSERT INTO principals (` + principalColumns + `)
		VALUES (:id, :name, :email, :role, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, p); err != nil {
		if database.IsUniqueViolation(err) {
			return principal.Principal{}, principal.ErrEmailExists
		}
		return principal.Principal{}, errors.Wrap(err, "inserting principal")
	}
	return p, nil
}

func (repo principalRepository) GetPrincipal(ctx context.Context, id string, exec ...core.DBExecutor) (principal.Principal, error) {
	return repo.getBy(ctx, "id", id, exec)
}

func (repo principalRepository) GetPrincipalByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (principal.Principal, error) {
	return repo.getBy(ctx, "email", core.CleanString(email, true /* lower */), exec)
}

func (repo principalRepository) getBy(ctx context.Context, column, value string, exec []core.DBExecutor) (principal.Principal, error) {
	e := repo.getExec(exec)
	var p principal.Principal
	q := "SELECT " + principalColumns + " FROM principals WHERE " + column + " = ?"
	if err := sqlx.GetContext(ctx, e, &p, e.Rebind(q), value); err != nil {
		return principal.Principal{}, trapNoRowsErr(err, principal.ErrNotFound, "selecting principal")
	}
	return p, nil
}
