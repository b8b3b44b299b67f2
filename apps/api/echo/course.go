package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/madrasa/backend/core/access"
	"github.com/madrasa/backend/core/enrollment"
)

type (
	courseApi struct {
		auth        *jwtAuth
		evaluator   *access.Evaluator
		enrollments *enrollment.Service
	}

	paidEnrollmentRequest struct {
		PaymentID string `json:"payment_id"`
	}
)

func registerCourseAPI(v1 *echo.Group, auth *jwtAuth, evaluator *access.Evaluator, enrollments *enrollment.Service) {
	api := courseApi{auth: auth, evaluator: evaluator, enrollments: enrollments}

	g := v1.Group("/courses/:id")
	g.GET("/access", api.access, auth.optional)
	g.GET("/eligibility", api.eligibility, auth.optional)
	g.POST("/enroll", api.enroll, auth.required)
	g.POST("/enroll/paid", api.enrollPaid, auth.required)
}

func (api *courseApi) access(ctx echo.Context) error {
	p, err := api.auth.contextPrincipal(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, api.evaluator.Evaluate(ctx.Request().Context(), ctx.Param("id"), p))
}

func (api *courseApi) eligibility(ctx echo.Context) error {
	p, err := api.auth.contextPrincipal(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, api.enrollments.CanEnroll(ctx.Request().Context(), ctx.Param("id"), p))
}

func (api *courseApi) enroll(ctx echo.Context) error {
	p, err := api.auth.contextPrincipal(ctx)
	if err != nil {
		return err
	}
	res := api.enrollments.EnrollInFreeCourse(ctx.Request().Context(), ctx.Param("id"), p)
	return ctx.JSON(resultStatus(res), res)
}

func (api *courseApi) enrollPaid(ctx echo.Context) error {
	p, err := api.auth.contextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data paidEnrollmentRequest
	if err = ctx.Bind(&data); err != nil {
		return err
	}
	res := api.enrollments.CreatePaidEnrollment(ctx.Request().Context(), ctx.Param("id"), p, data.PaymentID)
	return ctx.JSON(resultStatus(res), res)
}

// resultStatus maps an enrollment outcome onto the HTTP status carrying it.
func resultStatus(res enrollment.Result) int {
	if res.Success {
		if res.AlreadyEnrolled {
			return http.StatusOK
		}
		return http.StatusCreated
	}

	switch res.Reason {
	case enrollment.ReasonNotAuthenticated:
		return http.StatusUnauthorized
	case enrollment.ReasonPaymentRequired:
		return http.StatusPaymentRequired
	case enrollment.ReasonInvalidRole, enrollment.ReasonOwnCourse, enrollment.ReasonPaymentMismatch:
		return http.StatusForbidden
	case enrollment.ReasonCourseNotFound, enrollment.ReasonPaymentNotFound:
		return http.StatusNotFound
	case enrollment.ReasonCourseNotPublished, enrollment.ReasonPaymentNotCompleted:
		return http.StatusConflict
	case enrollment.ReasonPaymentMissing:
		return http.StatusBadRequest
	case enrollment.ReasonEnrollmentFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
