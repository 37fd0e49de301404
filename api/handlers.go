package api

import (
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/memtensor/memchat/pkg/errors"
	"github.com/memtensor/memchat/pkg/users"
)

// healthCheck reports the status of every registered component
func (s *Server) healthCheck(c *gin.Context) {
	checks := make(map[string]string, len(s.checks))
	healthy := true
	for name, checker := range s.checks {
		if err := checker.HealthCheck(c.Request.Context()); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		Checks:    checks,
	}

	if !healthy {
		resp.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// getMetrics returns a snapshot of the in-process metrics
func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, MetricsResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		Metrics:   s.metrics.Snapshot(),
	})
}

// handleError provides consistent error handling
func (s *Server) handleError(c *gin.Context, err error) {
	requestID := c.GetString(requestIDKey)
	fields := map[string]interface{}{
		"request_id": requestID,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
	}

	memchatErr := errors.GetMemchatError(err)
	status := errors.HTTPStatus(err)

	if memchatErr == nil || status == http.StatusInternalServerError {
		s.logger.Error("Request failed", err, fields)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:      http.StatusInternalServerError,
			Message:   "Server error",
			Error:     string(errors.ErrCodeInternal),
			RequestID: requestID,
		})
		return
	}
	memchatErr = memchatErr.WithRequestID(requestID)

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", err, fields)
	} else {
		fields["error"] = err.Error()
		s.logger.Debug("Request rejected", fields)
	}

	c.JSON(status, ErrorResponse{
		Code:      status,
		Message:   memchatErr.Message,
		Error:     string(memchatErr.Code),
		Details:   memchatErr.Details,
		RequestID: memchatErr.RequestID,
	})
}

// invalidRequest wraps a binding failure
func invalidRequest(err error) error {
	return errors.NewValidationError("Invalid request format").WithDetail("reason", err.Error())
}

// parseIntQuery returns the integer query value, or 0 when absent or malformed
func parseIntQuery(c *gin.Context, param string) int {
	value, err := strconv.Atoi(c.Query(param))
	if err != nil {
		return 0
	}
	return value
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), gin.MIMEMultipartPOSTForm)
}

// readImage opens the optional profileImage file of a multipart request.
// The returned closer is never nil.
func readImage(c *gin.Context) (*users.ImageUpload, func(), error) {
	noop := func() {}
	if !isMultipart(c) {
		return nil, noop, nil
	}

	header, err := c.FormFile("profileImage")
	if err != nil {
		if stderrors.Is(err, http.ErrMissingFile) {
			return nil, noop, nil
		}
		return nil, noop, invalidRequest(err)
	}

	file, err := header.Open()
	if err != nil {
		return nil, noop, invalidRequest(err)
	}
	return &users.ImageUpload{Filename: header.Filename, Reader: file}, func() { file.Close() }, nil
}

// bindUpdateInput decodes a user patch from a JSON body or multipart form
func bindUpdateInput(c *gin.Context) (*users.UpdateInput, error) {
	values := make(map[string]interface{})

	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return nil, invalidRequest(err)
		}
		for key, v := range form.Value {
			if len(v) > 0 {
				values[key] = v[0]
			}
		}
	} else if err := c.ShouldBindJSON(&values); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, invalidRequest(err)
	}

	return users.NewUpdateInput(values)
}
