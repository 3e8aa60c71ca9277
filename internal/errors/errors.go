package errors

import (
	stderrors "errors"
	"fmt"
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

// Is reports whether target is an AppError carrying the same code.
// This lets callers match an error kind through any amount of wrapping:
//
//	errors.Is(err, errors.ErrInsufficientData)
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message
func Newf(code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an error with additional context, keeping the code of the
// innermost AppError so the error kind survives propagation.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
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

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error is (or wraps) an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode reports whether any AppError in the chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// Predefined error codes
const (
	CodeConfiguration    = "CONFIGURATION_ERROR"
	CodeInsufficientData = "INSUFFICIENT_DATA"
	CodeBackboneLoad     = "BACKBONE_LOAD_ERROR"
	CodeTrainingDiverged = "TRAINING_DIVERGED"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeInternalError    = "INTERNAL_ERROR"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrConfiguration    = New(CodeConfiguration, "configuration error")
	ErrInsufficientData = New(CodeInsufficientData, "insufficient data")
	ErrBackboneLoad     = New(CodeBackboneLoad, "backbone load error")
	ErrTrainingDiverged = New(CodeTrainingDiverged, "training diverged")
	ErrInvalidInput     = New(CodeInvalidInput, "invalid input")
	ErrNotFound         = New(CodeNotFound, "not found")
)

// Common error constructors
func Configuration(format string, args ...interface{}) *AppError {
	return Newf(CodeConfiguration, format, args...)
}

func InsufficientData(format string, args ...interface{}) *AppError {
	return Newf(CodeInsufficientData, format, args...)
}

func BackboneLoad(cause error, format string, args ...interface{}) *AppError {
	e := Newf(CodeBackboneLoad, format, args...)
	e.Cause = cause
	return e
}

func TrainingDiverged(format string, args ...interface{}) *AppError {
	return Newf(CodeTrainingDiverged, format, args...)
}

func InvalidInput(format string, args ...interface{}) *AppError {
	return Newf(CodeInvalidInput, format, args...)
}

func DatabaseError(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeDatabaseError,
		Message: message,
		Cause:   cause,
	}
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}
