package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/workshop-crew/repositories"
	"github.com/upb/workshop-crew/services/redact"
	"github.com/upb/workshop-crew/services/routing"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeUnavailable  ErrorType = "unavailable"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail returns a copy of the error with the detail added
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value

	cp := *e
	cp.Details = details
	return &cp
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	ErrRunNotFound = NewDomainError(ErrorTypeNotFound, "pipeline run not found", nil)

	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidRunID = NewDomainError(ErrorTypeValidation, "invalid run id", nil)

	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)

	ErrPersistenceDisabled = NewDomainError(ErrorTypeUnavailable, "run history is not configured", nil)

	ErrRunTimeout = NewDomainError(ErrorTypeTimeout, "pipeline run timed out", nil)

	ErrInternal = NewDomainError(ErrorTypeInternal, "internal server error", nil)

	ErrAllAttemptsFailed = NewDomainError(ErrorTypeExternal, "all attempts failed", nil)
)

// Error type checking helper functions

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool { return hasType(err, ErrorTypeUnauthorized) }

// IsUnavailableError checks if an error is a service unavailable error
func IsUnavailableError(err error) bool { return hasType(err, ErrorTypeUnavailable) }

// IsTimeoutError checks if an error is a timeout error
func IsTimeoutError(err error) bool { return hasType(err, ErrorTypeTimeout) }

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool { return hasType(err, ErrorTypeInternal) }

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool { return hasType(err, ErrorTypeExternal) }

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// FromRunError classifies an error returned by a pipeline run or the run
// store. Provider messages are scrubbed before they reach Details.
func FromRunError(err error) error {
	if err == nil {
		return nil
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	// A run that hits its deadline fails every remaining attempt, so the
	// deadline shows up as the last error of an exhausted cascade.
	var exhausted *routing.ExhaustedError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		if errors.As(err, &exhausted) {
			return ErrRunTimeout.WithDetail("attempts", exhausted.Attempts)
		}
		return ErrRunTimeout
	case errors.As(err, &exhausted):
		return ErrAllAttemptsFailed.
			WithDetail("attempts", exhausted.Attempts).
			WithDetail("last_error", redact.Error(exhausted.Last))
	case errors.Is(err, repositories.ErrNotFound):
		return ErrRunNotFound
	case errors.Is(err, routing.ErrEmptyPlan), errors.Is(err, routing.ErrNoExecutor):
		return NewDomainError(ErrorTypeInternal, "pipeline is misconfigured", err)
	default:
		return NewDomainError(ErrorTypeInternal, "pipeline run failed", err)
	}
}
