package hub

import (
	"errors"
	"fmt"
)

// Store errors.
var (
	// ErrNotFound is returned by a store when the addressed document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrConditionFailed matches every *ConditionError.
	ErrConditionFailed = errors.New("condition failed")

	// ErrUnavailable is returned for writes issued while no collection path is open.
	ErrUnavailable = errors.New("data service unavailable")
)

// Domain errors surfaced to screens.
var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrPollNotFound    = errors.New("poll not found")
	ErrAlreadyVoted    = errors.New("already voted")
	ErrOptionNotFound  = errors.New("option not found")
	ErrArticleNotFound = errors.New("article not found")
	ErrNotOwner        = errors.New("only the owner can delete this article")
)

// ConditionError reports the condition that rejected a conditional write.
type ConditionError struct {
	Condition Condition
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition failed: %s", e.Condition)
}

func (e *ConditionError) Is(target error) bool {
	return target == ErrConditionFailed
}

// ValidationError is raised before any network call when input is incomplete or invalid.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthErrorCode classifies identity failures.
type AuthErrorCode string

const (
	AuthInvalidCredential AuthErrorCode = "invalid-credential"
	AuthEmailInUse        AuthErrorCode = "email-already-in-use"
	AuthWeakPassword      AuthErrorCode = "weak-password"
	AuthInvalidEmail      AuthErrorCode = "invalid-email"
	AuthInvalidSession    AuthErrorCode = "invalid-session"
)

// AuthError is an identity failure whose Message is shown to the user verbatim.
type AuthError struct {
	Code    AuthErrorCode
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// NewAuthError creates an AuthError with the standard message for code.
func NewAuthError(code AuthErrorCode) *AuthError {
	var msg string
	switch code {
	case AuthInvalidCredential:
		msg = "invalid credentials or account not found"
	case AuthEmailInUse:
		msg = "email is already in use"
	case AuthWeakPassword:
		msg = "password must be at least 6 characters"
	case AuthInvalidEmail:
		msg = "email address is not valid"
	case AuthInvalidSession:
		msg = "session is invalid or expired, log in again"
	default:
		msg = "authentication failed"
	}
	return &AuthError{Code: code, Message: msg}
}
