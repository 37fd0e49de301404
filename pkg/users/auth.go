package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/memtensor/memchat/pkg/errors"
	"github.com/memtensor/memchat/pkg/interfaces"
)

// TokenIssuer is the issuer claim of every memchat token
const TokenIssuer = "memchat"

// AuthService provides authentication functionality
type AuthService struct {
	config     *Config
	repository *Repository
	limiter    LoginLimiter
	logger     interfaces.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(config *Config, repository *Repository, limiter LoginLimiter, logger interfaces.Logger) *AuthService {
	return &AuthService{
		config:     config,
		repository: repository,
		limiter:    limiter,
		logger:     logger,
	}
}

// TokenClaims represents JWT token claims
type TokenClaims struct {
	UserID string `json:"id"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// Login authenticates a user by email and password
func (as *AuthService) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	key := strings.ToLower(strings.TrimSpace(email))

	allowed, err := as.limiter.Allowed(ctx, key)
	if err != nil {
		// fail open when the limiter store is down
		as.logger.Warn("Login limiter unavailable", map[string]interface{}{"error": err.Error()})
		allowed = true
	}
	if !allowed {
		return nil, errors.NewRateLimitedError("Too many login attempts, please try again later")
	}

	user, err := as.repository.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, errors.NewDatabaseErrorWithCause("failed to get user by email", err)
	}

	if user == nil || !user.IsActive {
		as.recordFailure(ctx, key)
		return nil, errors.NewValidationError("User not found")
	}

	if !as.VerifyPassword(password, user.Password) {
		as.recordFailure(ctx, key)
		return nil, errors.NewValidationError("Invalid password")
	}

	if err := as.limiter.Reset(ctx, key); err != nil {
		as.logger.Warn("Failed to reset login attempts", map[string]interface{}{"error": err.Error()})
	}

	token, err := as.GenerateToken(user)
	if err != nil {
		return nil, errors.NewInternalErrorWithCause("failed to generate token", err)
	}

	return &AuthResponse{Token: token, User: user}, nil
}

func (as *AuthService) recordFailure(ctx context.Context, key string) {
	if err := as.limiter.Fail(ctx, key); err != nil {
		as.logger.Warn("Failed to record login attempt", map[string]interface{}{"error": err.Error()})
	}
}

// ValidateToken validates a JWT access token and returns its active user
func (as *AuthService) ValidateToken(ctx context.Context, tokenString string) (*User, error) {
	if tokenString == "" {
		return nil, errors.NewUnauthorizedError("Not authorized, token missing")
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(as.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(TokenIssuer))
	if err != nil {
		return nil, errors.NewInvalidTokenError("Not authorized, token invalid")
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errors.NewInvalidTokenError("Not authorized, token invalid")
	}

	user, err := as.repository.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, errors.NewDatabaseErrorWithCause("failed to get user", err)
	}
	if user == nil {
		return nil, errors.NewUnauthorizedError("User not found")
	}

	return user, nil
}

// GenerateToken signs a JWT for the user. Superadmin tokens are short lived.
func (as *AuthService) GenerateToken(user *User) (string, error) {
	now := time.Now()
	claims := &TokenClaims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(as.config.TokenExpiryFor(user.Role))),
			Subject:   user.ID,
			Issuer:    TokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(as.config.JWTSecret))
}

// HashPassword checks the password against the policy and hashes it with bcrypt
func (as *AuthService) HashPassword(password string) (string, error) {
	if !IsStrongPassword(password) {
		return "", errors.NewValidationError(PasswordPolicyMessage)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), as.config.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword verifies a password against its hash
func (as *AuthService) VerifyPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
