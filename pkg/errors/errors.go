// Package errors provides structured error handling for memchat
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/memtensor/memchat/pkg/types"
)

// ErrorCode represents specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField  ErrorCode = "MISSING_FIELD"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Authentication/Authorization errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
	ErrCodeRateLimited  ErrorCode = "RATE_LIMITED"

	// Resource errors
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// System errors
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeDatabaseError      ErrorCode = "DATABASE_ERROR"
	ErrCodeExternal           ErrorCode = "EXTERNAL_ERROR"

	// Configuration errors
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"
)

// MemchatError represents a structured error in memchat
type MemchatError struct {
	Type      types.ErrorType        `json:"type"`
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	RequestID string                 `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *MemchatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Code, e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *MemchatError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *MemchatError) WithDetail(key string, value interface{}) *MemchatError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithRequestID adds a request ID to the error
func (e *MemchatError) WithRequestID(requestID string) *MemchatError {
	e.RequestID = requestID
	return e
}

// HTTPStatus returns the HTTP status code for the error type
func (e *MemchatError) HTTPStatus() int {
	switch e.Type {
	case types.ErrorTypeValidation:
		return http.StatusBadRequest
	case types.ErrorTypeNotFound:
		return http.StatusNotFound
	case types.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case types.ErrorTypeForbidden:
		return http.StatusForbidden
	case types.ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	case types.ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewMemchatError creates a new memchat error
func NewMemchatError(errType types.ErrorType, code ErrorCode, message string) *MemchatError {
	return &MemchatError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// NewMemchatErrorWithCause creates a new memchat error with a cause
func NewMemchatErrorWithCause(errType types.ErrorType, code ErrorCode, message string, cause error) *MemchatError {
	return &MemchatError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Validation error constructors
func NewValidationError(message string) *MemchatError {
	return NewMemchatError(types.ErrorTypeValidation, ErrCodeValidation, message)
}

func NewInvalidInputError(message string) *MemchatError {
	return NewMemchatError(types.ErrorTypeValidation, ErrCodeInvalidInput, message)
}

func NewMissingFieldError(field string) *MemchatError {
	return NewMemchatError(types.ErrorTypeValidation, ErrCodeMissingField,
		fmt.Sprintf("missing required field: %s", field)).WithDetail("field", field)
}

// NewAlreadyExistsError keeps the caller's message since it is shown verbatim to clients
func NewAlreadyExistsError(message string) *MemchatError {
	return NewMemchatError(types.ErrorTypeValidation, ErrCodeAlreadyExists, message)
}

// Authentication/Authorization error constructors
func NewUnauthorizedError(message string) *MemchatError {
	return NewMemchatError(types.ErrorTypeUnauthorized, ErrCodeUnauthorized, message)
}

func NewInvalidTokenError(message string) *MemchatError {
	return NewMemchatError(types.ErrorTypeUnauthorized, ErrCodeInvalidToken, message)
}

func NewForbiddenError(message string) *MemchatError {
	return NewMemchatError(types.ErrorTypeForbidden, ErrCodeForbidden, message)
}

func NewRateLimitedError(message string) *MemchatError {
	return NewMemchatError(types.ErrorTypeRateLimited, ErrCodeRateLimited, message)
}

// Resource error constructors
func NewNotFoundError(resource string) *MemchatError {
	return NewMemchatError(types.ErrorTypeNotFound, ErrCodeNotFound,
		fmt.Sprintf("%s not found", resource)).WithDetail("resource", resource)
}

// NewNotFoundMessage creates a not-found error with a verbatim message
func NewNotFoundMessage(message string) *MemchatError {
	return NewMemchatError(types.ErrorTypeNotFound, ErrCodeNotFound, message)
}

// System error constructors
func NewInternalError(message string) *MemchatError {
	return NewMemchatError(types.ErrorTypeInternal, ErrCodeInternal, message)
}

func NewInternalErrorWithCause(message string, cause error) *MemchatError {
	return NewMemchatErrorWithCause(types.ErrorTypeInternal, ErrCodeInternal, message, cause)
}

func NewServiceUnavailableError(service string) *MemchatError {
	return NewMemchatError(types.ErrorTypeInternal, ErrCodeServiceUnavailable,
		fmt.Sprintf("%s service is unavailable", service)).WithDetail("service", service)
}

func NewDatabaseErrorWithCause(message string, cause error) *MemchatError {
	return NewMemchatErrorWithCause(types.ErrorTypeInternal, ErrCodeDatabaseError, message, cause)
}

func NewExternalErrorWithCause(message string, cause error) *MemchatError {
	return NewMemchatErrorWithCause(types.ErrorTypeExternal, ErrCodeExternal, message, cause)
}

func NewConfigInvalidError(message string) *MemchatError {
	return NewMemchatError(types.ErrorTypeValidation, ErrCodeConfigInvalid, message)
}

// IsMemchatError checks if an error chain contains a MemchatError
func IsMemchatError(err error) bool {
	return GetMemchatError(err) != nil
}

// GetMemchatError extracts a MemchatError from an error chain
func GetMemchatError(err error) *MemchatError {
	var memchatErr *MemchatError
	if stderrors.As(err, &memchatErr) {
		return memchatErr
	}
	return nil
}

// IsType reports whether err carries a MemchatError of the given type
func IsType(err error, errType types.ErrorType) bool {
	if memchatErr := GetMemchatError(err); memchatErr != nil {
		return memchatErr.Type == errType
	}
	return false
}

// HTTPStatus maps any error to an HTTP status; unknown errors are internal
func HTTPStatus(err error) int {
	if memchatErr := GetMemchatError(err); memchatErr != nil {
		return memchatErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// WrapError wraps an error as a MemchatError
func WrapError(err error, errType types.ErrorType, code ErrorCode, message string) *MemchatError {
	return NewMemchatErrorWithCause(errType, code, message, err)
}

// ErrorList represents a list of errors
type ErrorList struct {
	Errors []*MemchatError `json:"errors"`
}

// Error implements the error interface
func (el *ErrorList) Error() string {
	var messages []string
	for _, err := range el.Errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Add adds an error to the list
func (el *ErrorList) Add(err *MemchatError) {
	el.Errors = append(el.Errors, err)
}

// HasErrors returns true if there are errors
func (el *ErrorList) HasErrors() bool {
	return len(el.Errors) > 0
}

// ToError returns the ErrorList as an error if it has errors, otherwise nil
func (el *ErrorList) ToError() error {
	if el.HasErrors() {
		return el
	}
	return nil
}

// NewErrorList creates a new error list
func NewErrorList() *ErrorList {
	return &ErrorList{
		Errors: make([]*MemchatError, 0),
	}
}
