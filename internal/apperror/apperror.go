// Package apperror defines the application's error taxonomy.
//
// Every error the service layer returns to a caller is either one of the
// sentinel errors below (wrapped in an *AppError carrying a human-readable
// message) or an unexpected failure, which handlers report as "internal".
//
// The Kind enum is the tagged form of the same taxonomy. Handlers switch on
// it instead of comparing message strings, while the JSON sent to clients
// keeps the {success, message} shape the frontend already understands.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInternal        = errors.New("internal error")
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal_error"
	}
}

// Conflict codes are machine-checkable outcomes of idempotent no-ops.
// Clients branch on them, so their spelling is part of the API.
const (
	CodeAlreadyLinked      = "already_linked"
	CodeItemAlreadyClaimed = "item_already_claimed"
	CodeItemDeleted        = "item_deleted"
	CodeInvitationHandled  = "invitation_not_pending"
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Code    string // Optional: machine-readable conflict code
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// KindOf reports the Kind of any error, walking the wrap chain.
// Errors outside the taxonomy are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports an idempotent no-op. The code is what clients see.
func Conflict(code, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
		Code:    code,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated is deliberately message-free: callers must not be able to
// tell a malformed token from an expired or unknown one.
func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: "valid authentication required",
	}
}

// Internal wraps an unexpected failure with a message that is safe to show.
func Internal(message string, cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrInternal, cause),
		Message: message,
	}
}
