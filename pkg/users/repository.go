package users

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"
)

// Repository provides data access for user management
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new user repository on an open database
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates or updates the user management tables
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&User{}, &AuditLog{}); err != nil {
		return fmt.Errorf("failed to migrate user tables: %w", err)
	}
	return nil
}

// User operations

// CreateUser creates a new user
func (r *Repository) CreateUser(ctx context.Context, user *User) (*User, error) {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUser retrieves an active user by ID
func (r *Repository) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", userID, true).First(&user).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// FindUser retrieves a user by ID whether or not it is active
func (r *Repository) FindUser(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email whether or not it is active,
// since emails stay reserved after a soft delete
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

// UpdateUser saves every column of the user
func (r *Repository) UpdateUser(ctx context.Context, user *User) error {
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// DeactivateUser soft deletes a user. It reports false when no active user matched.
func (r *Repository) DeactivateUser(ctx context.Context, userID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&User{}).
		Where("id = ? AND role <> ? AND is_active = ?", userID, RoleSuperadmin, true).
		Update("is_active", false)
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete user: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListUsers returns all active users, newest first
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).
		Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// GetUsersByIDs returns the users with the given ids, active or not
func (r *Repository) GetUsersByIDs(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var users []User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to get users by ids: %w", err)
	}
	return users, nil
}

// CountActiveUsers counts how many of the given ids belong to active users
func (r *Repository) CountActiveUsers(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&User{}).
		Where("id IN ? AND is_active = ?", ids, true).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// Audit log operations

// CreateAuditLog creates an audit log entry
func (r *Repository) CreateAuditLog(ctx context.Context, auditLog *AuditLog) error {
	if err := r.db.WithContext(ctx).Create(auditLog).Error; err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns the most recent audit entries, optionally filtered by resource id
func (r *Repository) ListAuditLogs(ctx context.Context, resourceID string, limit int) ([]AuditLog, error) {
	var logs []AuditLog
	query := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if resourceID != "" {
		query = query.Where("resource_id = ?", resourceID)
	}
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}

// HealthCheck verifies the users table answers queries
func (r *Repository) HealthCheck(ctx context.Context) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&User{}).Limit(1).Count(&count).Error; err != nil {
		return fmt.Errorf("user store health check failed: %w", err)
	}
	return nil
}
