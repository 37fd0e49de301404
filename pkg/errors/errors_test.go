package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memtensor/memchat/pkg/types"
)

func TestMemchatError(t *testing.T) {
	t.Run("NewMemchatError", func(t *testing.T) {
		err := NewMemchatError(types.ErrorTypeValidation, ErrCodeValidation, "test error")

		assert.Equal(t, types.ErrorTypeValidation, err.Type)
		assert.Equal(t, ErrCodeValidation, err.Code)
		assert.Equal(t, "test error", err.Message)
		assert.Nil(t, err.Cause)
		assert.Empty(t, err.Details)
		assert.Empty(t, err.RequestID)
	})

	t.Run("Error", func(t *testing.T) {
		err := NewMemchatError(types.ErrorTypeValidation, ErrCodeValidation, "test error")
		assert.Equal(t, "[VALIDATION_ERROR] validation: test error", err.Error())

		cause := errors.New("underlying error")
		errWithCause := NewMemchatErrorWithCause(types.ErrorTypeInternal, ErrCodeInternal, "wrapped error", cause)
		assert.Equal(t, "[INTERNAL_ERROR] internal: wrapped error (caused by: underlying error)", errWithCause.Error())
	})

	t.Run("Unwrap", func(t *testing.T) {
		cause := errors.New("underlying error")
		err := NewInternalErrorWithCause("wrapped error", cause)
		assert.Equal(t, cause, err.Unwrap())
		assert.True(t, errors.Is(err, cause))

		assert.Nil(t, NewValidationError("x").Unwrap())
	})

	t.Run("WithDetail And RequestID", func(t *testing.T) {
		err := NewValidationError("bad").WithDetail("field", "email").WithRequestID("req-1")
		assert.Equal(t, "email", err.Details["field"])
		assert.Equal(t, "req-1", err.RequestID)
	})
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", NewValidationError("bad"), http.StatusBadRequest},
		{"already exists", NewAlreadyExistsError("User already exists"), http.StatusBadRequest},
		{"not found", NewNotFoundError("user"), http.StatusNotFound},
		{"not found message", NewNotFoundMessage("Conversation not found"), http.StatusNotFound},
		{"unauthorized", NewUnauthorizedError("no"), http.StatusUnauthorized},
		{"invalid token", NewInvalidTokenError("bad token"), http.StatusUnauthorized},
		{"forbidden", NewForbiddenError("no"), http.StatusForbidden},
		{"rate limited", NewRateLimitedError("slow down"), http.StatusTooManyRequests},
		{"external", NewExternalErrorWithCause("upload failed", errors.New("x")), http.StatusBadGateway},
		{"internal", NewInternalError("boom"), http.StatusInternalServerError},
		{"database", NewDatabaseErrorWithCause("boom", errors.New("x")), http.StatusInternalServerError},
		{"plain error", errors.New("plain"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("outer: %w", NewForbiddenError("no")), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestGetMemchatError(t *testing.T) {
	t.Run("Direct", func(t *testing.T) {
		original := NewNotFoundError("message")
		got := GetMemchatError(original)
		require.NotNil(t, got)
		assert.Equal(t, "message not found", got.Message)
		assert.Equal(t, "message", got.Details["resource"])
	})

	t.Run("Wrapped", func(t *testing.T) {
		wrapped := fmt.Errorf("context: %w", NewForbiddenError("denied"))
		assert.True(t, IsMemchatError(wrapped))
		assert.True(t, IsType(wrapped, types.ErrorTypeForbidden))
		assert.False(t, IsType(wrapped, types.ErrorTypeNotFound))
	})

	t.Run("Plain", func(t *testing.T) {
		assert.Nil(t, GetMemchatError(errors.New("plain")))
		assert.False(t, IsMemchatError(nil))
	})
}

func TestConstructors(t *testing.T) {
	t.Run("MissingField", func(t *testing.T) {
		err := NewMissingFieldError("email")
		assert.Equal(t, ErrCodeMissingField, err.Code)
		assert.Equal(t, "missing required field: email", err.Message)
		assert.Equal(t, "email", err.Details["field"])
	})

	t.Run("ServiceUnavailable", func(t *testing.T) {
		err := NewServiceUnavailableError("redis")
		assert.Equal(t, "redis service is unavailable", err.Message)
		assert.Equal(t, types.ErrorTypeInternal, err.Type)
	})

	t.Run("WrapError", func(t *testing.T) {
		cause := errors.New("io")
		err := WrapError(cause, types.ErrorTypeExternal, ErrCodeExternal, "upload failed")
		assert.Equal(t, cause, err.Cause)
		assert.Equal(t, http.StatusBadGateway, err.HTTPStatus())
	})
}

func TestErrorList(t *testing.T) {
	el := NewErrorList()
	assert.False(t, el.HasErrors())
	assert.Nil(t, el.ToError())

	el.Add(NewValidationError("first"))
	el.Add(NewValidationError("second"))

	assert.True(t, el.HasErrors())
	require.Error(t, el.ToError())
	assert.Equal(t, "[VALIDATION_ERROR] validation: first; [VALIDATION_ERROR] validation: second", el.Error())
}
