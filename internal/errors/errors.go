package errors

import (
	"errors"
	"fmt"
)

// Common error types for the GIS gateway
var (
	// Authentication / session errors
	ErrUnauthenticated = errors.New("not authenticated")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")

	// OAuth2 protocol errors
	ErrInvalidState  = errors.New("invalid state parameter")
	ErrTokenExchange = errors.New("token exchange failed")
	ErrUserInfo      = errors.New("failed to get user info")

	// Settings errors
	ErrServiceNotFound = errors.New("service not found")
	ErrValidation      = errors.New("validation failed")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// ForbiddenError is returned when an authenticated user is not a member of
// the required group. It carries enough context to render a diagnostic page
// without another round trip to the identity provider.
type ForbiddenError struct {
	Username      string
	Email         string
	RequiredGroup string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("user %q is not a member of required group %q", e.Username, e.RequiredGroup)
}

// ValidationError is a structured field-level rejection of a settings write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
