// Package api provides the HTTP REST API server for memchat
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/memtensor/memchat/pkg/chat"
	"github.com/memtensor/memchat/pkg/config"
	"github.com/memtensor/memchat/pkg/interfaces"
	"github.com/memtensor/memchat/pkg/metrics"
	"github.com/memtensor/memchat/pkg/users"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// UserService is the user management surface used by the handlers. *users.Manager implements it.
type UserService interface {
	Login(ctx context.Context, in users.LoginInput) (*users.AuthResponse, error)
	ValidateToken(ctx context.Context, token string) (*users.User, error)
	Register(ctx context.Context, in users.RegisterInput, image *users.ImageUpload) (*users.AuthResponse, error)
	AddUser(ctx context.Context, actor users.Identity, in users.RegisterInput, image *users.ImageUpload) (*users.User, error)
	GetUser(ctx context.Context, userID string) (*users.User, error)
	ListUsers(ctx context.Context) ([]users.User, error)
	UpdateUser(ctx context.Context, actor users.Identity, userID string, in *users.UpdateInput, image *users.ImageUpload) (*users.User, error)
	DeleteUser(ctx context.Context, actor users.Identity, userID string) error
	AuditLogs(ctx context.Context, resourceID string, limit int) ([]users.AuditLog, error)
}

// ChatService is the messaging surface used by the handlers. *chat.Service implements it.
type ChatService interface {
	CreateConversation(ctx context.Context, actor users.Identity, in chat.CreateConversationInput) (*chat.ConversationView, bool, error)
	ListUserConversations(ctx context.Context, actor users.Identity) ([]chat.ConversationView, error)
	ListAllConversations(ctx context.Context, actor users.Identity) ([]chat.ConversationView, error)
	SendMessage(ctx context.Context, actor users.Identity, in chat.SendMessageInput) (*chat.MessageView, error)
	ListMessages(ctx context.Context, actor users.Identity, conversationID string, page, limit int) (*chat.MessagePage, error)
	EditMessage(ctx context.Context, actor users.Identity, messageID, content string) (*chat.MessageView, error)
	DeleteMessage(ctx context.Context, actor users.Identity, messageID string) (*chat.DeleteResult, error)
	AddParticipant(ctx context.Context, actor users.Identity, conversationID, participantID string) (*chat.ConversationView, error)
	RemoveParticipant(ctx context.Context, actor users.Identity, conversationID, participantID string) (*chat.ConversationView, error)
}

// HealthCheckFunc adapts a plain function to interfaces.HealthChecker
type HealthCheckFunc func(ctx context.Context) error

// HealthCheck calls f(ctx)
func (f HealthCheckFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

// Options carries the collaborators of the API server
type Options struct {
	Users   UserService
	Chat    ChatService
	Metrics *metrics.InMemoryMetrics
	Logger  interfaces.Logger

	// Checks are reported by /health, keyed by component name
	Checks map[string]interfaces.HealthChecker
}

// Server represents the API server instance
type Server struct {
	config    config.ServerConfig
	users     UserService
	chat      ChatService
	metrics   *metrics.InMemoryMetrics
	checks    map[string]interfaces.HealthChecker
	logger    interfaces.Logger
	router    *gin.Engine
	server    *http.Server
	startedAt time.Time
}

// NewServer creates a new API server instance
func NewServer(cfg config.ServerConfig, opts Options) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewInMemoryMetrics()
	}

	s := &Server{
		config:    cfg,
		users:     opts.Users,
		chat:      opts.Chat,
		metrics:   opts.Metrics,
		checks:    opts.Checks,
		logger:    opts.Logger,
		router:    gin.New(),
		startedAt: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.metricsMiddleware())

	corsConfig := cors.DefaultConfig()
	if len(s.config.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = s.config.CORSOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	s.router.Use(cors.New(corsConfig))
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	api := s.router.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/login", s.login)
		auth.POST("/register", s.register)
		auth.GET("/me", s.authMiddleware(), s.me)
		auth.PUT("/update/:id", s.authMiddleware(), s.updateUser)
	}

	usersGroup := api.Group("/users", s.authMiddleware())
	{
		usersGroup.GET("", s.requireAction(users.ActionUsersRead), s.listUsers)
		usersGroup.GET("/:id", s.requireAction(users.ActionUsersRead), s.getUser)
		usersGroup.PUT("/:id", s.updateUser)
		usersGroup.DELETE("/:id", s.requireAction(users.ActionUsersDelete), s.deleteUser)
		usersGroup.GET("/:id/audit", s.requireAction(users.ActionUsersUpdate), s.listAuditLogs)
	}

	superadmin := api.Group("/superadmin", s.authMiddleware())
	{
		superadmin.POST("/addUser", s.requireAction(users.ActionUsersCreate), s.addUser)
	}

	chatGroup := api.Group("/chat", s.authMiddleware(), s.requireAction(users.ActionChatUse))
	{
		chatGroup.POST("/conversations", s.createConversation)
		chatGroup.GET("/conversations", s.listConversations)
		chatGroup.GET("/conversations/all", s.requireAction(users.ActionConversationsReadAll), s.listAllConversations)
		chatGroup.POST("/conversations/:conversationId/participants", s.addParticipant)
		chatGroup.DELETE("/conversations/:conversationId/participants/:participantId", s.removeParticipant)

		chatGroup.POST("/messages", s.sendMessage)
		chatGroup.GET("/messages/:conversationId", s.listMessages)
		chatGroup.PUT("/messages/:messageId", s.editMessage)
		chatGroup.DELETE("/messages/:messageId", s.deleteMessage)
	}

	api.GET("/metrics", s.authMiddleware(), s.requireAction(users.ActionMetricsRead), s.getMetrics)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	port := s.config.Port
	if port == 0 {
		port = 5000
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting API server", map[string]interface{}{
		"addr": s.server.Addr,
		"mode": gin.Mode(),
	})

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down API server...")
	return s.Stop()
}

// Stop gracefully stops the API server
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
