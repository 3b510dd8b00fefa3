package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an engine failure.
type ErrorClass string

const (
	// ErrorClassValidation marks a request rejected before any orchestrator call.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassMissingResource marks a request whose package or catalog
	// entry is absent on disk.
	ErrorClassMissingResource ErrorClass = "missing_resource"

	// ErrorClassDelete marks a teardown step that failed. These are logged
	// and never returned to the caller of Release.
	ErrorClassDelete ErrorClass = "delete"

	// ErrorClassTransient indicates a temporary failure that may succeed in a
	// later reconciliation cycle or on a new request.
	// Examples: network timeouts, orchestrator unavailable.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates the orchestrator refused the operation.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the resource or record id that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	switch {
	case e.Resource != "" && e.Operation != "":
		msg += fmt.Sprintf(" (resource=%s, operation=%s)", e.Resource, e.Operation)
	case e.Resource != "":
		msg += fmt.Sprintf(" (resource=%s)", e.Resource)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

func newError(class ErrorClass, message string, err error) *EngineError {
	return &EngineError{
		Class:   class,
		Message: message,
		Err:     err,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *EngineError {
	return newError(ErrorClassValidation, message, err).WithCode(ErrCodeValidation)
}

// NewMissingResourceError creates a new missing-resource error.
func NewMissingResourceError(message string, err error) *EngineError {
	return newError(ErrorClassMissingResource, message, err)
}

// NewDeleteError creates a new delete error.
func NewDeleteError(message string, err error) *EngineError {
	return newError(ErrorClassDelete, message, err)
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return newError(ErrorClassTransient, message, err)
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return newError(ErrorClassPermanent, message, err)
}

// WithResource adds resource context to an error.
func (e *EngineError) WithResource(resourceID string) *EngineError {
	e.Resource = resourceID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func hasClass(err error, class ErrorClass) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// IsValidation returns true if the error is classified as a validation failure.
func IsValidation(err error) bool {
	return hasClass(err, ErrorClassValidation)
}

// IsMissingResource returns true if the error is classified as a missing resource.
func IsMissingResource(err error) bool {
	return hasClass(err, ErrorClassMissingResource)
}

// IsDelete returns true if the error is classified as a delete failure.
func IsDelete(err error) bool {
	return hasClass(err, ErrorClassDelete)
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	return hasClass(err, ErrorClassTransient)
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	return hasClass(err, ErrorClassPermanent)
}

// ClassOf returns the class of err, or "unclassified".
func ClassOf(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return string(e.Class)
	}
	return "unclassified"
}

// Common error codes.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeUnknownResource = "UNKNOWN_RESOURCE"
	ErrCodeUnknownTestbed  = "UNKNOWN_TESTBED"
	ErrCodeInvalidKey      = "INVALID_PUBLIC_KEY"
	ErrCodePolicyDenied    = "POLICY_DENIED"
	ErrCodeMissingFile     = "MISSING_FILE"
	ErrCodeNoProject       = "NO_PROJECT"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeOrchestrator    = "ORCHESTRATOR_FAILED"
)
