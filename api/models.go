package api

import (
	"github.com/memtensor/memchat/pkg/metrics"
	"github.com/memtensor/memchat/pkg/users"
)

// MessageResponse acknowledges an operation that returns no resource
type MessageResponse struct {
	Message string `json:"message"`
}

// AddUserResponse is returned when a superadmin creates an account
type AddUserResponse struct {
	Message string      `json:"message"`
	User    *users.User `json:"user"`
}

// EditMessageRequest is the body of a message edit
type EditMessageRequest struct {
	Content string `json:"content"`
}

// AddParticipantRequest is the body of an add participant request
type AddParticipantRequest struct {
	ParticipantID string `json:"participantId"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Code      int                    `json:"code"`
	Message   string                 `json:"message"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"requestId,omitempty"`
}

// MetricsResponse represents metrics response
type MetricsResponse struct {
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Metrics   metrics.Snapshot `json:"metrics"`
}
