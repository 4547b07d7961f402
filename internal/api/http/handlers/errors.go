package handlers

import (
	"errors"

	"github.com/spec-kit/auction-house/internal/service"
	apperrors "github.com/spec-kit/auction-house/pkg/util/errorutil"
)

// toHTTPError maps service outcomes onto transport errors.
func toHTTPError(err error) error {
	var verr *service.ValidationError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &verr):
		return apperrors.NewValidationError(verr.Error(), map[string]any{"field": verr.Field})
	case errors.Is(err, service.ErrInvalidCredentials):
		return apperrors.NewUnauthorized("invalid credentials")
	case errors.Is(err, service.ErrDuplicateEmail):
		return apperrors.NewBadRequest("DUPLICATE_EMAIL", "email is already registered")
	case errors.Is(err, service.ErrTokenInvalid):
		return apperrors.NewUnauthorized("invalid token")
	case errors.Is(err, service.ErrSubjectMissing):
		return apperrors.NewUnauthorized("user not found")
	case errors.Is(err, service.ErrPolicyDenied):
		return apperrors.NewForbidden("insufficient role")
	case errors.Is(err, service.ErrNotFound):
		return apperrors.NewNotFound("user", nil)
	case errors.Is(err, service.ErrTooManyAttempts):
		return apperrors.NewTooManyRequests("too many failed login attempts, try again later")
	default:
		return apperrors.NewInternalError(err)
	}
}
