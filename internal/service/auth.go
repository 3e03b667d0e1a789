package service

import (
	"context"
	"crypto/subtle"
	"fmt"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("auth")

// AuthService checks the static admin token guarding the moderation API.
type AuthService struct {
	adminToken string
}

func NewAuthService(adminToken string) *AuthService {
	return &AuthService{adminToken: adminToken}
}

type AuthResult struct {
	Requester string
}

func (s *AuthService) AuthToken(ctx context.Context, token string) (*AuthResult, error) {
	_, span := tracer.Start(ctx, "Auth.Service.AuthToken")
	defer span.End()

	if s.adminToken == "" {
		err := fmt.Errorf("admin token is not configured")
		span.RecordError(err)
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
		err := fmt.Errorf("invalid token")
		span.RecordError(err)
		return nil, err
	}

	return &AuthResult{Requester: "admin"}, nil
}
