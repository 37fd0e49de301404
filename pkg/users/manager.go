package users

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/memtensor/memchat/pkg/errors"
	"github.com/memtensor/memchat/pkg/events"
	"github.com/memtensor/memchat/pkg/interfaces"
	"github.com/memtensor/memchat/pkg/logger"
	"github.com/memtensor/memchat/pkg/metrics"
	"github.com/memtensor/memchat/pkg/types"
	"github.com/memtensor/memchat/pkg/uploads"
)

// Dependencies are the collaborators of the user manager. Nil members get no-op defaults.
type Dependencies struct {
	Limiter LoginLimiter
	Images  uploads.ImageStore
	Events  events.Publisher
	Metrics interfaces.Metrics
	Logger  interfaces.Logger
}

// Manager is the main user management service that coordinates all user operations
type Manager struct {
	config       *Config
	repository   *Repository
	authService  *AuthService
	validate     *validator.Validate
	images       uploads.ImageStore
	events       events.Publisher
	metrics      interfaces.Metrics
	logger       interfaces.Logger
	auditEnabled bool
}

// NewManager migrates the user tables, seeds the superadmin, and returns a ready manager
func NewManager(ctx context.Context, config *Config, db *gorm.DB, deps Dependencies) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if deps.Logger == nil {
		deps.Logger = logger.NewLogger()
	}
	if deps.Limiter == nil {
		deps.Limiter = NewMemoryLimiter(config.MaxLoginAttempts, config.LockoutDuration)
	}
	if deps.Images == nil {
		deps.Images = uploads.NoopStore{}
	}
	if deps.Events == nil {
		deps.Events = events.NoopPublisher{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoOpMetrics()
	}

	repository := NewRepository(db)
	if err := repository.Migrate(ctx); err != nil {
		return nil, err
	}

	manager := &Manager{
		config:       config,
		repository:   repository,
		authService:  NewAuthService(config, repository, deps.Limiter, deps.Logger),
		validate:     newValidator(),
		images:       deps.Images,
		events:       deps.Events,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		auditEnabled: config.EnableAuditLogging,
	}

	if err := manager.seedSuperadmin(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize default data: %w", err)
	}

	return manager, nil
}

// seedSuperadmin creates or refreshes the configured superadmin account
func (m *Manager) seedSuperadmin(ctx context.Context) error {
	if m.config.SuperadminEmail == "" {
		return nil
	}

	byEmail, err := m.repository.GetUserByEmail(ctx, m.config.SuperadminEmail)
	if err != nil {
		return err
	}
	if byEmail != nil && byEmail.ID != SuperadminID {
		return fmt.Errorf("superadmin email %s is already used by user %s", m.config.SuperadminEmail, byEmail.ID)
	}

	existing, err := m.repository.FindUser(ctx, SuperadminID)
	if err != nil {
		return err
	}

	if existing == nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(m.config.SuperadminPassword), m.config.BcryptCost)
		if err != nil {
			return fmt.Errorf("failed to hash superadmin password: %w", err)
		}

		_, err = m.repository.CreateUser(ctx, &User{
			ID:       SuperadminID,
			Name:     "Super Admin",
			Email:    m.config.SuperadminEmail,
			Password: string(hash),
			Role:     RoleSuperadmin,
			IsActive: true,
		})
		if err != nil {
			return err
		}

		m.logger.Info("Superadmin account created", map[string]interface{}{"email": m.config.SuperadminEmail})
		return nil
	}

	existing.Email = m.config.SuperadminEmail
	existing.Role = RoleSuperadmin
	existing.IsActive = true
	if !m.authService.VerifyPassword(m.config.SuperadminPassword, existing.Password) {
		hash, err := bcrypt.GenerateFromPassword([]byte(m.config.SuperadminPassword), m.config.BcryptCost)
		if err != nil {
			return fmt.Errorf("failed to hash superadmin password: %w", err)
		}
		existing.Password = string(hash)
	}

	return m.repository.UpdateUser(ctx, existing)
}

// Authentication Operations

// Login authenticates a user and returns a signed token
func (m *Manager) Login(ctx context.Context, in LoginInput) (*AuthResponse, error) {
	if err := validateStruct(m.validate, &in); err != nil {
		return nil, err
	}

	resp, err := m.authService.Login(ctx, in.Email, in.Password)
	if err != nil {
		m.metrics.Counter("auth_login_failures_total", 1, nil)
		m.logAuditEvent(ctx, "", "user_login", "users", "", map[string]interface{}{"email": in.Email}, false)
		return nil, err
	}

	m.logAuditEvent(ctx, resp.User.ID, "user_login", "users", resp.User.ID, nil, true)
	return resp, nil
}

// ValidateToken resolves a bearer token to its active user
func (m *Manager) ValidateToken(ctx context.Context, token string) (*User, error) {
	return m.authService.ValidateToken(ctx, token)
}

// Register creates a user with the default role and logs them in
func (m *Manager) Register(ctx context.Context, in RegisterInput, image *ImageUpload) (*AuthResponse, error) {
	user, err := m.createUser(ctx, "", in, m.config.DefaultRole, image)
	if err != nil {
		return nil, err
	}

	token, err := m.authService.GenerateToken(user)
	if err != nil {
		return nil, errors.NewInternalErrorWithCause("failed to generate token", err)
	}

	m.metrics.Counter("users_registered_total", 1, map[string]string{"source": "register"})
	return &AuthResponse{Token: token, User: user}, nil
}

// AddUser lets a superadmin create a user or admin account
func (m *Manager) AddUser(ctx context.Context, actor Identity, in RegisterInput, image *ImageUpload) (*User, error) {
	if !actor.Can(ActionUsersCreate) {
		return nil, errors.NewForbiddenError("Forbidden: Access denied")
	}

	role := RoleUser
	if in.Role != "" {
		parsed, err := ParseRole(in.Role)
		if err != nil {
			return nil, errors.NewValidationError(`"role" must be one of [user, admin, superadmin]`)
		}
		role = parsed
	}
	if role == RoleSuperadmin {
		return nil, errors.NewForbiddenError("Superadmin cannot create another superadmin")
	}

	user, err := m.createUser(ctx, actor.ID, in, role, image)
	if err != nil {
		return nil, err
	}

	m.metrics.Counter("users_registered_total", 1, map[string]string{"source": "superadmin"})
	return user, nil
}

func (m *Manager) createUser(ctx context.Context, actorID string, in RegisterInput, role Role, image *ImageUpload) (*User, error) {
	if err := validateStruct(m.validate, &in); err != nil {
		return nil, err
	}

	email := strings.TrimSpace(in.Email)
	existing, err := m.repository.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, errors.NewDatabaseErrorWithCause("failed to check existing email", err)
	}
	if existing != nil {
		return nil, errors.NewAlreadyExistsError("User already exists")
	}

	hash, err := m.authService.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	profileImage, err := m.uploadImage(ctx, image)
	if err != nil {
		return nil, err
	}

	user := &User{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		Password:     hash,
		Role:         role,
		Age:          in.Age,
		Phone:        in.Phone,
		Address:      in.Address,
		City:         in.City,
		Country:      in.Country,
		ZipCode:      in.ZipCode,
		ProfileImage: profileImage,
		IsActive:     true,
	}

	created, err := m.repository.CreateUser(ctx, user)
	if err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errors.NewAlreadyExistsError("User already exists")
		}
		return nil, errors.NewDatabaseErrorWithCause("failed to create user", err)
	}

	m.logAuditEvent(ctx, actorID, "user_create", "users", created.ID,
		map[string]interface{}{"email": created.Email, "role": string(created.Role)}, true)
	m.publish(ctx, events.UserCreated, created.ID, actorID, map[string]interface{}{
		"email": created.Email,
		"role":  string(created.Role),
	})

	return created, nil
}

func (m *Manager) uploadImage(ctx context.Context, image *ImageUpload) (string, error) {
	if image == nil || image.Reader == nil {
		return "", nil
	}

	url, err := m.images.Upload(ctx, image.Filename, image.Reader)
	if err != nil {
		if errors.IsMemchatError(err) {
			return "", err
		}
		return "", errors.NewExternalErrorWithCause("Image upload failed", err)
	}
	return url, nil
}

// User Management Operations

// GetUser returns an active user by ID
func (m *Manager) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := m.repository.GetUser(ctx, userID)
	if err != nil {
		return nil, errors.NewDatabaseErrorWithCause("failed to get user", err)
	}
	if user == nil {
		return nil, errors.NewNotFoundError("User")
	}
	return user, nil
}

// ListUsers returns all active users, newest first
func (m *Manager) ListUsers(ctx context.Context) ([]User, error) {
	users, err := m.repository.ListUsers(ctx)
	if err != nil {
		return nil, errors.NewDatabaseErrorWithCause("failed to list users", err)
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// UpdateUser applies a patch after checking it against the caller's allow-list
func (m *Manager) UpdateUser(ctx context.Context, actor Identity, userID string, in *UpdateInput, image *ImageUpload) (*User, error) {
	if in == nil {
		in = &UpdateInput{}
	}

	user, err := m.repository.GetUser(ctx, userID)
	if err != nil {
		return nil, errors.NewDatabaseErrorWithCause("failed to get user", err)
	}
	if user == nil {
		return nil, errors.NewNotFoundError("User")
	}

	fields := in.Fields()
	if image != nil && in.ProfileImage == nil {
		fields = append(fields, FieldProfileImage)
	}
	if err := AuthorizeUpdate(actor, user, fields); err != nil {
		return nil, err
	}

	if err := validateStruct(m.validate, in); err != nil {
		return nil, err
	}

	if in.Role != nil {
		role, err := ParseRole(*in.Role)
		if err != nil {
			return nil, errors.NewValidationError(`"role" must be one of [user, admin, superadmin]`)
		}
		if role == RoleSuperadmin {
			return nil, errors.NewForbiddenError("Superadmin cannot create another superadmin")
		}
		user.Role = role
	}

	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email != user.Email {
			existing, err := m.repository.GetUserByEmail(ctx, email)
			if err != nil {
				return nil, errors.NewDatabaseErrorWithCause("failed to check existing email", err)
			}
			if existing != nil {
				return nil, errors.NewAlreadyExistsError("User already exists")
			}
			user.Email = email
		}
	}

	if in.Password != nil {
		hash, err := m.authService.HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		user.Password = hash
	}

	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.Age != nil {
		age := *in.Age
		user.Age = &age
	}
	if in.Phone != nil {
		user.Phone = *in.Phone
	}
	if in.Address != nil {
		user.Address = *in.Address
	}
	if in.City != nil {
		user.City = *in.City
	}
	if in.Country != nil {
		user.Country = *in.Country
	}
	if in.ZipCode != nil {
		user.ZipCode = *in.ZipCode
	}
	if in.ProfileImage != nil {
		user.ProfileImage = *in.ProfileImage
	}

	if image != nil {
		url, err := m.uploadImage(ctx, image)
		if err != nil {
			return nil, err
		}
		user.ProfileImage = url
	}

	if err := m.repository.UpdateUser(ctx, user); err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errors.NewAlreadyExistsError("User already exists")
		}
		return nil, errors.NewDatabaseErrorWithCause("failed to update user", err)
	}

	m.logAuditEvent(ctx, actor.ID, "user_update", "users", user.ID,
		map[string]interface{}{"fields": fields}, true)
	m.publish(ctx, events.UserUpdated, user.ID, actor.ID, map[string]interface{}{"fields": fields})

	return user, nil
}

// DeleteUser deactivates a user. Nobody can delete the superadmin or themselves.
func (m *Manager) DeleteUser(ctx context.Context, actor Identity, userID string) error {
	if !actor.Can(ActionUsersDelete) {
		return errors.NewForbiddenError("Forbidden: Access denied")
	}

	user, err := m.repository.GetUser(ctx, userID)
	if err != nil {
		return errors.NewDatabaseErrorWithCause("failed to get user", err)
	}
	if user == nil {
		return errors.NewNotFoundError("User")
	}

	if err := AuthorizeDelete(actor, user); err != nil {
		m.logAuditEvent(ctx, actor.ID, "user_delete", "users", userID, nil, false)
		return err
	}

	deleted, err := m.repository.DeactivateUser(ctx, userID)
	if err != nil {
		return errors.NewDatabaseErrorWithCause("failed to delete user", err)
	}
	if !deleted {
		return errors.NewNotFoundError("User")
	}

	m.logAuditEvent(ctx, actor.ID, "user_delete", "users", userID, nil, true)
	m.publish(ctx, events.UserDeleted, userID, actor.ID, nil)

	return nil
}

// Directory Operations

// Summaries returns public profiles keyed by user id. Deactivated users are
// included so conversation history keeps its names.
func (m *Manager) Summaries(ctx context.Context, ids []string) (map[string]UserSummary, error) {
	users, err := m.repository.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, errors.NewDatabaseErrorWithCause("failed to load users", err)
	}

	summaries := make(map[string]UserSummary, len(users))
	for i := range users {
		summaries[users[i].ID] = users[i].Summary()
	}
	return summaries, nil
}

// AllActive reports whether every id belongs to an active user
func (m *Manager) AllActive(ctx context.Context, ids []string) (bool, error) {
	unique := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}

	count, err := m.repository.CountActiveUsers(ctx, ids)
	if err != nil {
		return false, errors.NewDatabaseErrorWithCause("failed to check users", err)
	}
	return count == int64(len(unique)), nil
}

// AuditLogs returns recent audit entries, optionally for one user
func (m *Manager) AuditLogs(ctx context.Context, resourceID string, limit int) ([]AuditLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	logs, err := m.repository.ListAuditLogs(ctx, resourceID, limit)
	if err != nil {
		return nil, errors.NewDatabaseErrorWithCause("failed to list audit logs", err)
	}
	return logs, nil
}

// HealthCheck implements interfaces.HealthChecker
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.repository.HealthCheck(ctx)
}

// Helper methods

// logAuditEvent records an audit event; failures are logged and swallowed
func (m *Manager) logAuditEvent(ctx context.Context, userID, action, resource, resourceID string, details map[string]interface{}, success bool) {
	if !m.auditEnabled {
		return
	}

	auditLog := &AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    datatypes.JSONMap(details),
		RequestID:  types.GetRequestContext(ctx).RequestID,
		Success:    success,
	}

	if err := m.repository.CreateAuditLog(ctx, auditLog); err != nil {
		m.logger.Warn("Failed to create audit log", map[string]interface{}{
			"action": action,
			"error":  err.Error(),
		})
	}
}

func (m *Manager) publish(ctx context.Context, eventType events.EventType, subject, actorID string, data map[string]interface{}) {
	if err := m.events.Publish(ctx, events.NewEvent(eventType, subject, actorID, data)); err != nil {
		m.logger.Warn("Failed to publish event", map[string]interface{}{
			"type":       string(eventType),
			"request_id": types.GetRequestContext(ctx).RequestID,
			"error":      err.Error(),
		})
	}
}
