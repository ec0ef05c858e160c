package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced in API responses.
const (
	CodeValidation          = "VALIDATION_FAILED"
	CodeUnknownPriority     = "UNKNOWN_PRIORITY"
	CodeNotFound            = "NOT_FOUND"
	CodeCaseNotFound        = "CASE_NOT_FOUND"
	CodeEventNotFound       = "EVENT_NOT_FOUND"
	CodeExternalUnavailable = "EXTERNAL_UNAVAILABLE"
	CodeJobRunning          = "JOB_RUNNING"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeInternal            = "INTERNAL_ERROR"
)

// Sentinels for errors.Is comparisons. Matching is by code only.
var (
	ErrInvalidInput        = &DomainError{Code: CodeValidation}
	ErrUnknownPriority     = &DomainError{Code: CodeUnknownPriority}
	ErrNotFound            = &DomainError{Code: CodeNotFound}
	ErrCaseNotFound        = &DomainError{Code: CodeCaseNotFound}
	ErrEventNotFound       = &DomainError{Code: CodeEventNotFound}
	ErrExternalUnavailable = &DomainError{Code: CodeExternalUnavailable}
	ErrJobRunning          = &DomainError{Code: CodeJobRunning}
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewUnknownPriority(priority string) error {
	return NewDomainError(CodeUnknownPriority, fmt.Sprintf("unknown priority %q", priority), http.StatusBadRequest,
		map[string]any{"priority": priority})
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewCaseNotFound(caseRef string) error {
	return NewDomainError(CodeCaseNotFound, "support case not found", http.StatusNotFound,
		map[string]any{"case_ref": caseRef})
}

func NewEventNotFound(eventRef string) error {
	return NewDomainError(CodeEventNotFound, "health event not found", http.StatusNotFound,
		map[string]any{"event_ref": eventRef})
}

// NewExternalUnavailable marks a transient failure of an external system.
func NewExternalUnavailable(system string, err error) error {
	return &DomainError{
		Code:       CodeExternalUnavailable,
		Message:    system + " unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"system": system},
		Err:        err,
	}
}

func NewJobRunning(job string) error {
	return NewDomainError(CodeJobRunning, "job already running", http.StatusConflict, map[string]any{"job": job})
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsTransient reports whether err should be retried on the next scheduled tick.
func IsTransient(err error) bool {
	return errors.Is(err, ErrExternalUnavailable)
}
