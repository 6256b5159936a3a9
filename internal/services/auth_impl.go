package services

import (
	"context"
	"errors"

	"hound/internal/auth"
	"hound/internal/middleware"
)

// AuthImplementation implements the auth service
type AuthImplementation struct {
	authenticator *auth.Authenticator
}

// NewAuthService creates a new auth service implementation
func NewAuthService(authenticator *auth.Authenticator) *AuthImplementation {
	return &AuthImplementation{
		authenticator: authenticator,
	}
}

// Login authenticates a user and returns a JWT token
func (a *AuthImplementation) Login(ctx context.Context, payload *LoginPayload) (*LoginResult, error) {
	token, expiresAt, err := a.authenticator.Authenticate(payload.Username, payload.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			return nil, &UnauthorizedError{Message: "Invalid username or password"}
		case errors.Is(err, auth.ErrAuthDisabled):
			return nil, &UnauthorizedError{Message: "Authentication is disabled"}
		default:
			return nil, &UnauthorizedError{Message: err.Error()}
		}
	}

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// Status returns the current authentication status
func (a *AuthImplementation) Status(ctx context.Context) (*AuthStatus, error) {
	status := &AuthStatus{Enabled: a.authenticator.IsEnabled()}

	if claims := middleware.GetUserFromContext(ctx); claims != nil {
		status.Authenticated = true
		status.Username = &claims.Username
	}
	return status, nil
}
