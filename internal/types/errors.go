package types

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a typed string for categorizing pipeline errors.
type ErrorCode string

const (
	ErrCodeParse               ErrorCode = "parse_error"
	ErrCodeInvalidArgument     ErrorCode = "invalid_argument"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected"
)

// HTTPStatus maps an ErrorCode to the status the HTTP service answers with.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case ErrCodeParse:
		return http.StatusUnprocessableEntity
	case ErrCodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError carries a code alongside a human readable message and an
// optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// NewAppError builds an AppError.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewInvalidArgument builds an AppError with ErrCodeInvalidArgument.
func NewInvalidArgument(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidArgument, Message: message}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another *AppError by code, so errors.Is(err, &AppError{Code: c})
// works through wrapping.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// ParseError is returned when a feed or reference table field cannot be
// converted to its expected type. Row is 1-based and counts data rows,
// except for records the CSV reader rejects, where it is the input line.
type ParseError struct {
	Source string
	Row    int
	Field  string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s row %d: invalid %s %q", e.Source, e.Row, e.Field, e.Value)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// RecordError converts a *csv.ParseError (wrong field count, stray quote)
// into a ParseError on the whole record. It returns nil for other errors.
func RecordError(source string, err error) *ParseError {
	var ce *csv.ParseError
	if !errors.As(err, &ce) {
		return nil
	}
	return &ParseError{Source: source, Row: ce.Line, Field: "record", Err: ce.Err}
}

// CodeOf resolves the ErrorCode of err through any wrapping. Unknown errors
// map to ErrCodeInternalUnexpected and nil maps to "".
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return ErrCodeParse
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrCodeInternalUnexpected
}

// IsInvalidArgument reports whether err carries ErrCodeInvalidArgument.
func IsInvalidArgument(err error) bool {
	return CodeOf(err) == ErrCodeInvalidArgument
}

// IsUpstreamUnavailable reports whether err carries ErrCodeUpstreamUnavailable.
func IsUpstreamUnavailable(err error) bool {
	return CodeOf(err) == ErrCodeUpstreamUnavailable
}
