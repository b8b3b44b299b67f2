package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/madrasa/backend/core"
	"github.com/madrasa/backend/core/principal"
)

const (
	contextTokenKey     = "principalToken"
	contextPrincipalKey = "principal"
	jwtAudience         = "madrasa-web"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// NewClaims returns the claims identifying p for conf.Server.JWTExpirationDelta.
func NewClaims(p principal.Principal, conf *core.Config) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   p.ID,
			Audience:  jwtAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email: p.Email,
		Role:  string(p.Role),
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(claims *Claims, conf *core.Config) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// jwtAuth resolves the acting principal from a bearer token.
type jwtAuth struct {
	required   echo.MiddlewareFunc
	optional   echo.MiddlewareFunc
	principals principal.Repository
}

func newJWTAuth(conf *core.Config, principals principal.Repository) *jwtAuth {
	cfg := middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
	optCfg := cfg
	optCfg.Skipper = func(ctx echo.Context) bool {
		return ctx.Request().Header.Get(echo.HeaderAuthorization) == ""
	}
	return &jwtAuth{
		required:   middleware.JWTWithConfig(cfg),
		optional:   middleware.JWTWithConfig(optCfg),
		principals: principals,
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// contextPrincipal returns the authenticated principal, or nil for an anonymous caller.
// Unknown and deactivated principals are treated as anonymous.
func (a *jwtAuth) contextPrincipal(ctx echo.Context) (*principal.Principal, error) {
	if p, ok := ctx.Get(contextPrincipalKey).(*principal.Principal); ok {
		return p, nil
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return nil, nil
	}
	p, err := a.principals.GetPrincipal(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "finding principal by ID")
	}
	if !p.IsActive {
		return nil, nil
	}
	ctx.Set(contextPrincipalKey, &p)
	return &p, nil
}

// requirePrincipal is contextPrincipal for endpoints refusing anonymous callers.
func (a *jwtAuth) requirePrincipal(ctx echo.Context) (principal.Principal, error) {
	p, err := a.contextPrincipal(ctx)
	if err != nil {
		return principal.Principal{}, err
	}
	if p == nil {
		return principal.Principal{}, errUnauthorized
	}
	return *p, nil
}
