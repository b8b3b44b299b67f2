package echoapi

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
)

const webhookSecretHeader = "X-Webhook-Secret"

func adminMiddleware(auth *jwtAuth) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			p, err := auth.requirePrincipal(ctx)
			if err != nil {
				return err
			}
			if !p.IsAdmin() {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// webhookSecretMiddleware rejects requests not carrying the shared gateway secret.
// An empty secret rejects everything.
func webhookSecretMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			got := ctx.Request().Header.Get(webhookSecretHeader)
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}
