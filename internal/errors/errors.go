package errors

import (
	stderrors "errors"
	"fmt"

	"goregime/domain/core"
)

// AppError represents a structured application error
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
	CodeInputError         = "INPUT_ERROR"
	CodeConvergenceFailure = "CONVERGENCE_FAILURE"
	CodeDiagnosticError    = "DIAGNOSTIC_ERROR"
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeNotFound           = "NOT_FOUND"
	CodeCacheError         = "CACHE_ERROR"
	CodeDatabaseError      = "DATABASE_ERROR"
	CodeInternalError      = "INTERNAL_ERROR"
)

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an error with additional context, keeping the code of a wrapped AppError
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{Code: appErr.Code, Message: message, Cause: err}
	}
	return &AppError{Code: Classify(err), Message: message, Cause: err}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Classify maps domain sentinels to error codes
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case core.IsInputError(err):
		return CodeInputError
	case core.IsConvergenceError(err):
		return CodeConvergenceFailure
	case stderrors.Is(err, core.ErrDiagnosticFailed):
		return CodeDiagnosticError
	case core.IsNotFoundError(err):
		return CodeNotFound
	default:
		return CodeInternalError
	}
}

// GetCode returns the error code of the outermost AppError, or classifies err
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return Classify(err)
}

// InputError marks a fatal input problem
func InputError(cause error) *AppError {
	return &AppError{Code: CodeInputError, Message: "invalid input", Cause: cause}
}

// ConvergenceFailure marks a model that could not be fitted
func ConvergenceFailure(cause error) *AppError {
	return &AppError{Code: CodeConvergenceFailure, Message: "regime model did not converge", Cause: cause}
}

func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func NotFound(resource string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s not found", resource), Cause: core.ErrNotFound}
}

func CacheError(cause error) *AppError {
	return &AppError{Code: CodeCacheError, Message: "result cache error", Cause: cause}
}

func DatabaseError(cause error) *AppError {
	return &AppError{Code: CodeDatabaseError, Message: "database error", Cause: cause}
}
