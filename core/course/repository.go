package course

import (
	"context"
	"errors"

	"github.com/madrasa/backend/core"
)

var (
	// errors
	ErrNotFound = errors.New("course not found")
)

type Repository interface {
	CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
	GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
	SetPublished(ctx context.Context, id string, published bool, exec ...core.DBExecutor) error
}
