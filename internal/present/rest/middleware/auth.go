package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/spamguard/internal/present/rest/presenter"
	"github.com/totegamma/spamguard/internal/service"
)

var tracer = otel.Tracer("auth")

type ctxKey string

// RequesterCtxKey holds the authenticated requester in the request context.
const RequesterCtxKey ctxKey = "requester"

type AuthMiddleware struct {
	auth *service.AuthService
}

func NewAuthMiddleware(auth *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// RequireAdmin rejects requests without a valid admin bearer token. The
// token may also be passed as the "token" query parameter, since browsers
// cannot set headers on websocket upgrades.
func (s *AuthMiddleware) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Auth.Middleware.RequireAdmin")
		defer span.End()

		token, err := bearerToken(c)
		if err != nil {
			span.RecordError(err)
			return presenter.Unauthorized(c, err.Error())
		}

		result, err := s.auth.AuthToken(ctx, token)
		if err != nil {
			span.RecordError(errors.Wrap(err, "AuthMiddleware.RequireAdmin: s.auth.AuthToken failed"))
			return presenter.Unauthorized(c, "invalid token")
		}

		ctx = context.WithValue(ctx, RequesterCtxKey, result.Requester)
		span.SetAttributes(attribute.String("Requester", result.Requester))

		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("authorization")
	if authHeader == "" {
		if token := c.QueryParam("token"); token != "" {
			return token, nil
		}
		return "", fmt.Errorf("missing authorization header")
	}

	split := strings.Split(authHeader, " ")
	if len(split) != 2 {
		return "", fmt.Errorf("invalid authentication header")
	}

	authType, token := split[0], split[1]
	if authType != "Bearer" {
		return "", fmt.Errorf("only Bearer is acceptable")
	}
	return token, nil
}
