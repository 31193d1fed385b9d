package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Error kinds. Handlers map them to HTTP statuses with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidState     = errors.New("invalid state")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConflict         = errors.New("conflict")
	ErrAdapter          = errors.New("external service failure")
	ErrConfiguration    = errors.New("integration not configured")
	ErrUnauthenticated  = errors.New("unauthenticated")
)

// Error is a rejection carrying a numeric business code and a client-facing message.
type Error struct {
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind error, code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: kind}
}

func notFound(what string) *Error {
	return newErr(ErrNotFound, 40401, "%s not found", what)
}

func denied() *Error {
	return newErr(ErrPermissionDenied, 40301, "permission denied")
}

func invalidState(format string, args ...interface{}) *Error {
	return newErr(ErrInvalidState, 40003, format, args...)
}

func invalidInput(format string, args ...interface{}) *Error {
	return newErr(ErrInvalidInput, 40001, format, args...)
}

// adapterFailure wraps cause so both ErrAdapter and the cause match errors.Is.
func adapterFailure(op string, cause error) *Error {
	return &Error{Code: 50201, Message: op + " failed", Err: errors.Join(ErrAdapter, cause)}
}

func notConfigured(what string, cause error) *Error {
	return &Error{Code: 50301, Message: what + " is not configured", Err: errors.Join(ErrConfiguration, cause)}
}

// lookupErr turns gorm.ErrRecordNotFound into a NotFound rejection for what.
func lookupErr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
