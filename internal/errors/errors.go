// Package errors defines the structured error types shared across the data
// pipeline: validation errors raised before any network call, transformation
// errors raised when a pipeline stage cannot compute a required quantity, and
// extraction errors raised when a vendor response yields no usable data.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an error for programmatic handling.
type Code string

const (
	// Validation codes: bad request parameters, unmapped vendor config.
	CodeInvalidRequest       Code = "INVALID_REQUEST"
	CodeUnsupportedFrequency Code = "UNSUPPORTED_FREQUENCY"
	CodeUnsupportedCategory  Code = "UNSUPPORTED_CATEGORY"
	CodeUnmappedFields       Code = "UNMAPPED_FIELDS"

	// Extraction codes: vendor response problems.
	CodeEmptyResponse Code = "EMPTY_RESPONSE"
	CodeBadResponse   Code = "BAD_RESPONSE"

	// Transformation codes: a cleaning stage cannot proceed.
	CodeMissingColumn   Code = "MISSING_COLUMN"
	CodeTransformFailed Code = "TRANSFORM_FAILED"
)

// Error is a structured pipeline error.
type Error struct {
	Code    Code
	Message string
	Details any
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// WithDetails returns a copy of the error carrying extra context, e.g. the
// list of fields that failed to map.
func (e *Error) WithDetails(details any) *Error {
	out := *e
	out.Details = details
	return &out
}

// ValidationError represents a single invalid request field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (ve ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
}

// Validation creates an invalid-request error for one field.
func Validation(field, message string) *Error {
	return &Error{
		Code:    CodeInvalidRequest,
		Message: fmt.Sprintf("invalid %s: %s", field, message),
		Details: ValidationError{Field: field, Message: message},
	}
}

// Transform wraps a failure inside a pipeline transformation stage.
func Transform(err error, message string) *Error {
	return Wrap(err, CodeTransformFailed, message)
}

// IsCode reports whether err (or anything it wraps) carries the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or the empty string.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}
