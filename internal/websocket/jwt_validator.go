package websocket

import (
	"context"
	"errors"

	"github.com/auth0/go-jwt-middleware/v2/validator"
)

// ErrInvalidToken is returned when JWT validation fails
var ErrInvalidToken = errors.New("invalid token")

// TokenValidator resolves a raw token to the authenticated user id
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (userID string, err error)
}

// ClaimsValidator is the claims-level validator shared with the REST middleware.
// *validator.Validator satisfies it.
type ClaimsValidator interface {
	ValidateToken(ctx context.Context, token string) (interface{}, error)
}

// SubjectValidator reduces validated claims to their subject. Browsers cannot set
// headers on the upgrade request, so the token arrives as a query parameter.
type SubjectValidator struct {
	claims ClaimsValidator
}

// NewSubjectValidator wraps a claims validator for websocket upgrades
func NewSubjectValidator(claims ClaimsValidator) *SubjectValidator {
	return &SubjectValidator{claims: claims}
}

// ValidateToken validates a JWT and returns its subject
func (v *SubjectValidator) ValidateToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	claims, err := v.claims.ValidateToken(ctx, token)
	if err != nil {
		return "", ErrInvalidToken
	}

	validated, ok := claims.(*validator.ValidatedClaims)
	if !ok || validated.RegisteredClaims.Subject == "" {
		return "", ErrInvalidToken
	}
	return validated.RegisteredClaims.Subject, nil
}
