// Package types defines the shared enums and request context helpers for memchat
package types

import (
	"context"
)

// ErrorType classifies errors by how they surface to callers
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeRateLimited  ErrorType = "rate_limited"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// Context keys for request context
type ContextKey string

const (
	ContextKeyUserID    ContextKey = "user_id"
	ContextKeyUserRole  ContextKey = "user_role"
	ContextKeyRequestID ContextKey = "request_id"
)

// RequestContext holds request-specific context information
type RequestContext struct {
	UserID    string
	UserRole  string
	RequestID string
}

// WithRequestContext returns a child context carrying the request values
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	if rc.UserID != "" {
		ctx = context.WithValue(ctx, ContextKeyUserID, rc.UserID)
	}
	if rc.UserRole != "" {
		ctx = context.WithValue(ctx, ContextKeyUserRole, rc.UserRole)
	}
	if rc.RequestID != "" {
		ctx = context.WithValue(ctx, ContextKeyRequestID, rc.RequestID)
	}
	return ctx
}

// GetRequestContext extracts request context from Go context
func GetRequestContext(ctx context.Context) *RequestContext {
	return &RequestContext{
		UserID:    getStringFromContext(ctx, ContextKeyUserID),
		UserRole:  getStringFromContext(ctx, ContextKeyUserRole),
		RequestID: getStringFromContext(ctx, ContextKeyRequestID),
	}
}

func getStringFromContext(ctx context.Context, key ContextKey) string {
	if value := ctx.Value(key); value != nil {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return ""
}
