package principal

import (
	"context"
	"errors"

	"github.com/madrasa/backend/core"
)

var (
	// errors
	ErrNotFound    = errors.New("principal not found")
	ErrEmailExists = errors.New("a principal with this email already exists")
)

type Repository interface {
	CreatePrincipal(ctx context.Context, p Principal, exec ...core.DBExecutor) (Principal, error)
	GetPrincipal(ctx context.Context, id string, exec ...core.DBExecutor) (Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (Principal, error)
}
