package payment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/madrasa/backend/core"
)

var (
	// errors
	ErrNotFound          = errors.New("payment not found")
	ErrInvalidTransition = errors.New("invalid payment status transition")
)

type (
	Repository interface {
		CreatePayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (Payment, error)
		GetPayment(ctx context.Context, id string, exec ...core.DBExecutor) (Payment, error)
		// GetLatestCompleted returns the most recently created COMPLETED payment for the pair.
		GetLatestCompleted(ctx context.Context, principalID, courseID string, exec ...core.DBExecutor) (Payment, error)
		// UpdateStatus moves the payment from `from` to `to`, storing the gateway payload.
		// It returns ErrInvalidTransition when the stored status is no longer `from`.
		UpdateStatus(ctx context.Context, id string, from, to Status, gatewayResponse json.RawMessage, exec ...core.DBExecutor) (Payment, error)
	}

	FailureRepository interface {
		CreateFailure(ctx context.Context, f EnrollmentFailure, exec ...core.DBExecutor) (EnrollmentFailure, error)
		QueryFailures(ctx context.Context, paymentID string, unresolvedOnly bool, exec ...core.DBExecutor) ([]EnrollmentFailure, error)
		// ResolveFailures stamps every unresolved failure of the payment; returns the number of rows stamped.
		ResolveFailures(ctx context.Context, paymentID, resolution string, at time.Time, exec ...core.DBExecutor) (int, error)
	}
)
