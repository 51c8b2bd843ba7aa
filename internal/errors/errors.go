package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"gooutlier/domain/core"
)

// AppError is the error shape returned across process boundaries (HTTP, CLI)
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeValidationError  = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeInsufficientData = "INSUFFICIENT_DATA"
)

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap adds context to err, keeping the code of a wrapped AppError.
// Domain errors are mapped to a code with FromDomain.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    codeOf(err),
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode overrides the code of err
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{Code: code, Message: appErr.Message, Cause: appErr.Cause}
	}
	return &AppError{Code: code, Message: err.Error(), Cause: err}
}

// IsAppError checks if err is or wraps an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the code of the outermost AppError, or "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// FromDomain converts a detector error into an AppError with a matching code
func FromDomain(err error) error {
	if err == nil {
		return nil
	}
	if IsAppError(err) {
		return err
	}
	return &AppError{Code: codeOf(err), Message: err.Error(), Cause: err}
}

func codeOf(err error) string {
	var appErr *AppError
	switch {
	case stderrors.As(err, &appErr):
		return appErr.Code
	case core.IsConfigurationError(err):
		return CodeConfigInvalid
	case stderrors.Is(err, core.ErrInsufficientContext), stderrors.Is(err, core.ErrEmptyDistribution):
		return CodeInsufficientData
	case stderrors.Is(err, core.ErrInvalidPercentile), stderrors.Is(err, core.ErrInvalidTimeRange):
		return CodeInvalidInput
	default:
		return CodeInternalError
	}
}

// HTTPStatus maps an error code to the response status used by the ingest API
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case CodeInvalidInput, CodeValidationError:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInsufficientData:
		return http.StatusUnprocessableEntity
	case CodeDatabaseError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string, cause error) *AppError {
	return &AppError{Code: CodeDatabaseError, Message: message, Cause: cause}
}

func ValidationError(message string) *AppError {
	return New(CodeValidationError, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}
