package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/memtensor/memchat/pkg/errors"
	"github.com/memtensor/memchat/pkg/types"
	"github.com/memtensor/memchat/pkg/users"
)

// Context keys set by the middleware
const (
	requestIDKey = "request_id"
	userKey      = "user"
)

// loggingMiddleware provides request logging
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		fields := map[string]interface{}{
			"method":      param.Method,
			"path":        param.Path,
			"status_code": param.StatusCode,
			"latency":     param.Latency,
			"client_ip":   param.ClientIP,
			"user_agent":  param.Request.UserAgent(),
			"request_id":  param.Keys[requestIDKey],
		}
		if user, ok := param.Keys[userKey].(*users.User); ok {
			fields["user_id"] = user.ID
		}
		s.logger.Info("HTTP Request", fields)
		return ""
	})
}

// requestIDMiddleware adds a unique request ID to each request
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(requestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(types.WithRequestContext(c.Request.Context(), types.RequestContext{
			RequestID: requestID,
		}))
		c.Next()
	}
}

// metricsMiddleware collects request metrics
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		labels := map[string]string{
			"method": c.Request.Method,
			"route":  route,
			"status": strconv.Itoa(c.Writer.Status()),
		}
		s.metrics.Counter("http_requests_total", 1, labels)
		s.metrics.Histogram("http_request_duration_ms", float64(time.Since(start).Milliseconds()), map[string]string{
			"method": c.Request.Method,
			"route":  route,
		})
	}
}

// authMiddleware resolves the bearer token to an active user
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractTokenFromHeader(c.GetHeader("Authorization"))

		user, err := s.users.ValidateToken(c.Request.Context(), token)
		if err != nil {
			s.handleError(c, err)
			c.Abort()
			return
		}

		c.Set(userKey, user)
		c.Request = c.Request.WithContext(types.WithRequestContext(c.Request.Context(), types.RequestContext{
			UserID:   user.ID,
			UserRole: string(user.Role),
		}))
		c.Next()
	}
}

// requireAction rejects callers whose role does not grant action
func (s *Server) requireAction(action users.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			s.handleError(c, errors.NewUnauthorizedError("Not authorized"))
			c.Abort()
			return
		}

		if !user.Identity().Can(action) {
			s.handleError(c, errors.NewForbiddenError("Forbidden: Access denied"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// currentUser returns the user set by authMiddleware
func currentUser(c *gin.Context) *users.User {
	value, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := value.(*users.User)
	return user
}

func extractTokenFromHeader(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
