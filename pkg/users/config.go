package users

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/memtensor/memchat/pkg/config"
	"github.com/memtensor/memchat/pkg/errors"
)

// Config holds the configuration for the user management system
type Config struct {
	// Authentication configuration
	JWTSecret             string        `json:"-" yaml:"jwt_secret"`
	TokenExpiry           time.Duration `json:"token_expiry" yaml:"token_expiry"`
	SuperadminTokenExpiry time.Duration `json:"superadmin_token_expiry" yaml:"superadmin_token_expiry"`
	BcryptCost            int           `json:"bcrypt_cost" yaml:"bcrypt_cost"`

	// Seeded superadmin; empty email disables seeding
	SuperadminEmail    string `json:"superadmin_email" yaml:"superadmin_email"`
	SuperadminPassword string `json:"-" yaml:"superadmin_password"`

	// Security configuration
	MaxLoginAttempts   int           `json:"max_login_attempts" yaml:"max_login_attempts"`
	LockoutDuration    time.Duration `json:"lockout_duration" yaml:"lockout_duration"`
	EnableAuditLogging bool          `json:"enable_audit_logging" yaml:"enable_audit_logging"`

	// Role given to self-registered users
	DefaultRole Role `json:"default_role" yaml:"default_role"`
}

// DefaultConfig returns a default configuration for the user management system
func DefaultConfig() *Config {
	return &Config{
		TokenExpiry:           7 * 24 * time.Hour,
		SuperadminTokenExpiry: 24 * time.Hour,
		BcryptCost:            bcrypt.DefaultCost,
		MaxLoginAttempts:      5,
		LockoutDuration:       15 * time.Minute,
		EnableAuditLogging:    true,
		DefaultRole:           RoleUser,
	}
}

// ConfigFromAuth builds the user management configuration from the application auth section
func ConfigFromAuth(auth config.AuthConfig) *Config {
	cfg := DefaultConfig()
	cfg.JWTSecret = auth.JWTSecret
	cfg.TokenExpiry = auth.TokenExpiry
	cfg.SuperadminTokenExpiry = auth.SuperadminTokenExpiry
	cfg.SuperadminEmail = auth.SuperadminEmail
	cfg.SuperadminPassword = auth.SuperadminPassword
	cfg.MaxLoginAttempts = auth.MaxLoginAttempts
	cfg.LockoutDuration = auth.LockoutDuration
	cfg.EnableAuditLogging = auth.EnableAuditLogging
	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.NewConfigInvalidError("jwt_secret is required")
	}

	if c.TokenExpiry <= 0 || c.SuperadminTokenExpiry <= 0 {
		return errors.NewConfigInvalidError("token expiry must be positive")
	}

	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return errors.NewConfigInvalidError("bcrypt_cost is out of range")
	}

	if c.SuperadminEmail != "" && c.SuperadminPassword == "" {
		return errors.NewConfigInvalidError("superadmin_password is required when superadmin_email is set")
	}

	if !c.DefaultRole.IsValid() || c.DefaultRole == RoleSuperadmin {
		return errors.NewConfigInvalidError("invalid default_role")
	}

	if c.MaxLoginAttempts < 1 {
		return errors.NewConfigInvalidError("max_login_attempts must be at least 1")
	}

	if c.LockoutDuration < time.Minute {
		return errors.NewConfigInvalidError("lockout_duration must be at least 1 minute")
	}

	return nil
}

// TokenExpiryFor returns how long a token issued to role stays valid
func (c *Config) TokenExpiryFor(role Role) time.Duration {
	if role == RoleSuperadmin {
		return c.SuperadminTokenExpiry
	}
	return c.TokenExpiry
}
