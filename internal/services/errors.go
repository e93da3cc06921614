package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type ErrorCode string

const (
	ErrorInvalid         ErrorCode = "invalid"
	ErrorForbidden       ErrorCode = "forbidden"
	ErrorNotFound        ErrorCode = "not_found"
	ErrorConflict        ErrorCode = "conflict"
	ErrorUnauthorized    ErrorCode = "unauthorized"
	ErrorTooManyRequests ErrorCode = "too_many_requests"
	ErrorUnavailable     ErrorCode = "unavailable"
)

// ServiceError carries a machine-readable code plus a message. Message is an
// i18n key when Key is set; callers translate it at the edge.
type ServiceError struct {
	Code    ErrorCode
	Message string
	Key     string
	Details []string
	cause   error
}

func (e *ServiceError) Error() string { return e.Message }

func (e *ServiceError) Unwrap() error { return e.cause }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func NewTooManyRequestsError(msg string) error {
	return &ServiceError{Code: ErrorTooManyRequests, Message: msg}
}

// NewUnavailableError wraps a store failure so the original error stays
// reachable through errors.Is / errors.As.
func NewUnavailableError(op string, cause error) error {
	return &ServiceError{Code: ErrorUnavailable, Message: fmt.Sprintf("%s failed", op), Key: "error.remote", cause: cause}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

var (
	// ErrInvalidTransition is returned when an event is not allowed in the session's phase.
	ErrInvalidTransition = &ServiceError{Code: ErrorConflict, Message: "transition not allowed", Key: "error.transition"}
	// ErrDuplicateAudit means an audit already exists for the (store, date) pair.
	ErrDuplicateAudit = &ServiceError{Code: ErrorConflict, Message: "audit already exists for this store and date", Key: "audit.duplicate"}
	// ErrAdminRequired is returned by the access gate; callers route to the admin login.
	ErrAdminRequired = &ServiceError{Code: ErrorUnauthorized, Message: "administrator sign-in required", Key: "auth.required"}
	// ErrInvalidCredentials is the sign-in failure for unknown users or bad passwords.
	ErrInvalidCredentials = &ServiceError{Code: ErrorUnauthorized, Message: "invalid credentials", Key: "auth.invalid"}
	// ErrAccessDenied is the sign-in failure for valid non-admin accounts.
	ErrAccessDenied = &ServiceError{Code: ErrorForbidden, Message: "access denied (not admin)", Key: "auth.denied"}
	// ErrSessionBusy rejects an event while another one is still being handled.
	ErrSessionBusy = &ServiceError{Code: ErrorTooManyRequests, Message: "session busy", Key: "error.busy"}
)

// invalidWithKeys builds a validation error that lists the failing gate messages.
func invalidWithKeys(msg string, keys []string) error {
	return &ServiceError{Code: ErrorInvalid, Message: msg, Key: "error.validation", Details: keys}
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
