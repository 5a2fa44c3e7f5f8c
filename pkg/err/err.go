package errprocess

import (
	"errors"
	"fmt"

	"chat_sync_service/pkg/logger"
)

// Code error category
type Code string

const (
	// CodeUnknown unknown error
	CodeUnknown Code = "UNKNOWN"
	// CodeInvalidArgument bad input
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	// CodeNotFound resource not found
	CodeNotFound Code = "NOT_FOUND"
	// CodePermissionDenied caller not allowed
	CodePermissionDenied Code = "PERMISSION_DENIED"
	// CodeUnavailable collaborator failed or timed out
	CodeUnavailable Code = "UNAVAILABLE"
	// CodeFailedPrecondition state does not allow the operation
	CodeFailedPrecondition Code = "FAILED_PRECONDITION"
	// CodeAlreadyExists resource with the same key stored
	CodeAlreadyExists Code = "ALREADY_EXISTS"
)

// AppError coded error with optional cause
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap expose cause for errors.Is / errors.As
func (e *AppError) Unwrap() error { return e.Cause }

// Is two AppError match when code and message match, so a wrapped
// sentinel still satisfies errors.Is(err, ErrXxx).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == e.Message
}

// New create AppError
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

// Wrap create AppError with cause
func Wrap(sentinel error, cause error) error {
	var app *AppError
	if !errors.As(sentinel, &app) {
		return fmt.Errorf("%w: %v", sentinel, cause)
	}
	return &AppError{Code: app.Code, Message: app.Message, Cause: cause}
}

// CodeOf get error code, CodeUnknown when err is not an AppError
func CodeOf(err error) Code {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	return CodeUnknown
}

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}
