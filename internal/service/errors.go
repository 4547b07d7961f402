package service

import (
	"errors"
	"fmt"

	"github.com/spec-kit/auction-house/internal/auth"
)

var (
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateEmail     = errors.New("email is already registered")
	ErrTokenInvalid       = auth.ErrTokenInvalid
	ErrPolicyDenied       = errors.New("insufficient role")
	// ErrSubjectMissing means a valid token names an identity that no longer exists.
	ErrSubjectMissing   = errors.New("user not found")
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("credential store unavailable")
	ErrTooManyAttempts  = errors.New("too many failed login attempts")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalidField(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func storeFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
