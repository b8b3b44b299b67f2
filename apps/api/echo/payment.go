package echoapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/madrasa/backend/core"
	"github.com/madrasa/backend/core/fulfillment"
	"github.com/madrasa/backend/core/payment"
)

type (
	paymentApi struct {
		fulfillment *fulfillment.Service
		validate    *validator.Validate
	}

	// gatewayEvent is the part of a gateway notification we act on; the raw body is stored as is.
	gatewayEvent struct {
		PaymentID string         `json:"payment_id" validate:"required"`
		Status    payment.Status `json:"status" validate:"required"`
	}
)

func registerPaymentAPI(v1 *echo.Group, auth *jwtAuth, webhookSecret string, svc *fulfillment.Service, validate *validator.Validate) {
	api := paymentApi{fulfillment: svc, validate: validate}

	v1.POST("/payments/webhook", api.webhook, webhookSecretMiddleware(webhookSecret))

	admin := v1.Group("/admin", auth.required, adminMiddleware(auth))
	admin.GET("/enrollment-failures", api.pendingFailures)
	admin.POST("/payments/:id/retry-enrollment", api.retryEnrollment)
}

func (api *paymentApi) webhook(ctx echo.Context) error {
	raw, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return errors.Wrap(err, "reading webhook body")
	}

	var evt gatewayEvent
	if err = json.Unmarshal(raw, &evt); err != nil {
		return core.NewValidationError(errors.New("malformed gateway event"))
	}
	if err = api.validate.Struct(evt); err != nil {
		return err
	}

	res, err := api.fulfillment.ApplyGatewayEvent(ctx.Request().Context(), evt.PaymentID, evt.Status, raw)
	if err != nil {
		return err
	}
	// the event was processed; a failed enrollment is logged for operators, not redelivered
	return ctx.JSON(http.StatusOK, res)
}

func (api *paymentApi) pendingFailures(ctx echo.Context) error {
	failures, err := api.fulfillment.ListPendingFailures(ctx.Request().Context())
	if err != nil {
		return err
	}
	if failures == nil {
		failures = []payment.EnrollmentFailure{}
	}
	return ctx.JSON(http.StatusOK, failures)
}

func (api *paymentApi) retryEnrollment(ctx echo.Context) error {
	res := api.fulfillment.RetryFailedEnrollment(ctx.Request().Context(), ctx.Param("id"))
	return ctx.JSON(resultStatus(res), res)
}
