package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the taxonomy of failures the relay can surface
type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeTransientUpstream ErrorType = "transient_upstream"
	ErrorTypePermanentUpstream ErrorType = "permanent_upstream"
	ErrorTypeDecode            ErrorType = "decode"
	ErrorTypeInternal          ErrorType = "internal"
)

// Wire codes written into the "error" field of JSON error bodies
const (
	CodeMissingImageOrLabels      = "missing_image_or_labels"
	CodeInvalidPatientContext     = "invalid_patient_context"
	CodeInvalidPatientContextJSON = "invalid_patient_context_json"
	CodeInvalidImage              = "invalid_image"
	CodeImageTooLarge             = "image_too_large"
	CodeEmptyOrInvalidResponse    = "empty_or_invalid_response"
	CodeUpstreamError             = "upstream_error"
	CodeServerError               = "server_error"
)

// AppError represents a structured application error
type AppError struct {
	Type           ErrorType `json:"type"`
	Code           string    `json:"error"`
	Message        string    `json:"message"`
	Details        []string  `json:"details,omitempty"`
	Raw            string    `json:"raw,omitempty"`
	StatusCode     int       `json:"status_code"`
	UpstreamStatus int       `json:"upstream_status,omitempty"`
	Cause          error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails attaches field-level or schema-level messages
func (e *AppError) WithDetails(details ...string) *AppError {
	e.Details = append(e.Details, details...)
	return e
}

// WithStatus overrides the HTTP status code
func (e *AppError) WithStatus(code int) *AppError {
	e.StatusCode = code
	return e
}

// NewValidationError creates a client input error; never retried.
func NewValidationError(code, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewTransientUpstreamError wraps a rate-limit or 5xx failure that survived every retry
func NewTransientUpstreamError(upstreamStatus int, cause error) *AppError {
	return &AppError{
		Type:           ErrorTypeTransientUpstream,
		Code:           CodeUpstreamError,
		Message:        "upstream model unavailable after retries",
		StatusCode:     http.StatusBadGateway,
		UpstreamStatus: upstreamStatus,
		Cause:          cause,
	}
}

// NewPermanentUpstreamError wraps any other upstream failure
func NewPermanentUpstreamError(upstreamStatus int, cause error) *AppError {
	return &AppError{
		Type:           ErrorTypePermanentUpstream,
		Code:           CodeUpstreamError,
		Message:        "upstream model rejected the request",
		StatusCode:     http.StatusBadGateway,
		UpstreamStatus: upstreamStatus,
		Cause:          cause,
	}
}

// NewDecodeError carries the model's raw text for diagnostics
func NewDecodeError(message, raw string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeDecode,
		Code:       CodeEmptyOrInvalidResponse,
		Message:    message,
		Raw:        raw,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       CodeServerError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// AsAppError finds an AppError anywhere in the chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Type == errorType
	}
	return false
}

// IsCode checks the wire code of an AppError
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
