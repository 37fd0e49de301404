package users

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/memtensor/memchat/pkg/errors"
	"github.com/memtensor/memchat/pkg/logger"
	"github.com/memtensor/memchat/pkg/types"
)

func TestAuthService_HashPassword(t *testing.T) {
	authService, _ := setupTestAuthService(t)

	password := "TestPass123!"
	hash, err := authService.HashPassword(password)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, password, hash)

	assert.True(t, authService.VerifyPassword(password, hash))
	assert.False(t, authService.VerifyPassword("WrongPass123!", hash))

	_, err = authService.HashPassword("weakpass")
	require.Error(t, err)
	assert.Equal(t, PasswordPolicyMessage, errors.GetMemchatError(err).Message)
}

func TestAuthService_Login(t *testing.T) {
	authService, repo := setupTestAuthService(t)
	ctx := context.Background()
	createTestUser(t, authService, repo, "alice@example.com", RoleUser)

	resp, err := authService.Login(ctx, "alice@example.com", "TestPass123!")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "alice@example.com", resp.User.Email)

	t.Run("Unknown Email", func(t *testing.T) {
		_, err := authService.Login(ctx, "nobody@example.com", "TestPass123!")
		require.Error(t, err)
		assert.Equal(t, "User not found", errors.GetMemchatError(err).Message)
		assert.True(t, errors.IsType(err, types.ErrorTypeValidation))
	})

	t.Run("Wrong Password", func(t *testing.T) {
		_, err := authService.Login(ctx, "alice@example.com", "WrongPass123!")
		require.Error(t, err)
		assert.Equal(t, "Invalid password", errors.GetMemchatError(err).Message)
	})

	t.Run("Inactive User", func(t *testing.T) {
		user := createTestUser(t, authService, repo, "gone@example.com", RoleUser)
		_, err := repo.DeactivateUser(ctx, user.ID)
		require.NoError(t, err)

		_, err = authService.Login(ctx, "gone@example.com", "TestPass123!")
		require.Error(t, err)
		assert.Equal(t, "User not found", errors.GetMemchatError(err).Message)
	})
}

func TestAuthService_LoginLockout(t *testing.T) {
	authService, repo := setupTestAuthService(t)
	ctx := context.Background()
	createTestUser(t, authService, repo, "bob@example.com", RoleUser)

	for i := 0; i < authService.config.MaxLoginAttempts; i++ {
		_, err := authService.Login(ctx, "bob@example.com", "WrongPass123!")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, types.ErrorTypeValidation))
	}

	// Locked even with the right password
	_, err := authService.Login(ctx, "bob@example.com", "TestPass123!")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, types.ErrorTypeRateLimited))
	assert.Equal(t, "Too many login attempts, please try again later", errors.GetMemchatError(err).Message)

	// Other accounts are unaffected
	createTestUser(t, authService, repo, "carol@example.com", RoleUser)
	_, err = authService.Login(ctx, "carol@example.com", "TestPass123!")
	assert.NoError(t, err)
}

func TestAuthService_LoginResetsFailures(t *testing.T) {
	authService, repo := setupTestAuthService(t)
	ctx := context.Background()
	createTestUser(t, authService, repo, "dave@example.com", RoleUser)

	for i := 0; i < authService.config.MaxLoginAttempts-1; i++ {
		_, _ = authService.Login(ctx, "dave@example.com", "WrongPass123!")
	}
	_, err := authService.Login(ctx, "dave@example.com", "TestPass123!")
	require.NoError(t, err)

	_, _ = authService.Login(ctx, "dave@example.com", "WrongPass123!")
	_, err = authService.Login(ctx, "dave@example.com", "TestPass123!")
	assert.NoError(t, err)
}

func TestAuthService_ValidateToken(t *testing.T) {
	authService, repo := setupTestAuthService(t)
	ctx := context.Background()
	user := createTestUser(t, authService, repo, "erin@example.com", RoleAdmin)

	token, err := authService.GenerateToken(user)
	require.NoError(t, err)

	validated, err := authService.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, validated.ID)
	assert.Equal(t, RoleAdmin, validated.Role)

	t.Run("Missing", func(t *testing.T) {
		_, err := authService.ValidateToken(ctx, "")
		assert.Equal(t, "Not authorized, token missing", errors.GetMemchatError(err).Message)
		assert.True(t, errors.IsType(err, types.ErrorTypeUnauthorized))
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := authService.ValidateToken(ctx, "invalid-token")
		assert.Equal(t, "Not authorized, token invalid", errors.GetMemchatError(err).Message)
	})

	t.Run("Wrong Secret", func(t *testing.T) {
		claims := &TokenClaims{UserID: user.ID, Role: user.Role, RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
		require.NoError(t, err)

		_, err = authService.ValidateToken(ctx, signed)
		assert.Equal(t, "Not authorized, token invalid", errors.GetMemchatError(err).Message)
	})

	t.Run("Wrong Algorithm", func(t *testing.T) {
		claims := &TokenClaims{UserID: user.ID, Role: user.Role, RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(authService.config.JWTSecret))
		require.NoError(t, err)

		_, err = authService.ValidateToken(ctx, signed)
		assert.Equal(t, "Not authorized, token invalid", errors.GetMemchatError(err).Message)
	})

	t.Run("Expired", func(t *testing.T) {
		claims := &TokenClaims{UserID: user.ID, Role: user.Role, RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(authService.config.JWTSecret))
		require.NoError(t, err)

		_, err = authService.ValidateToken(ctx, signed)
		assert.Equal(t, "Not authorized, token invalid", errors.GetMemchatError(err).Message)
	})

	t.Run("Deleted User", func(t *testing.T) {
		gone := createTestUser(t, authService, repo, "frank@example.com", RoleUser)
		goneToken, err := authService.GenerateToken(gone)
		require.NoError(t, err)
		_, err = repo.DeactivateUser(ctx, gone.ID)
		require.NoError(t, err)

		_, err = authService.ValidateToken(ctx, goneToken)
		assert.Equal(t, "User not found", errors.GetMemchatError(err).Message)
		assert.True(t, errors.IsType(err, types.ErrorTypeUnauthorized))
	})
}

func TestAuthService_TokenExpiry(t *testing.T) {
	authService, _ := setupTestAuthService(t)

	parse := func(token string) *TokenClaims {
		claims := &TokenClaims{}
		_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
			return []byte(authService.config.JWTSecret), nil
		})
		require.NoError(t, err)
		return claims
	}

	userToken, err := authService.GenerateToken(&User{ID: "u1", Role: RoleUser})
	require.NoError(t, err)
	claims := parse(userToken)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, RoleUser, claims.Role)
	assert.Equal(t, TokenIssuer, claims.Issuer)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), claims.ExpiresAt.Time, time.Minute)

	rootToken, err := authService.GenerateToken(&User{ID: SuperadminID, Role: RoleSuperadmin})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), parse(rootToken).ExpiresAt.Time, time.Minute)
}

// Test helper functions

func setupTestRepository(t *testing.T) *Repository {
	repo := NewRepository(setupTestDB(t))
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.JWTSecret = "test-secret-key-for-testing-only"
	cfg.BcryptCost = bcrypt.MinCost
	cfg.MaxLoginAttempts = 3
	return cfg
}

func setupTestAuthService(t *testing.T) (*AuthService, *Repository) {
	repo := setupTestRepository(t)
	cfg := testConfig()
	limiter := NewMemoryLimiter(cfg.MaxLoginAttempts, cfg.LockoutDuration)
	return NewAuthService(cfg, repo, limiter, logger.NewTestLogger()), repo
}

func createTestUser(t *testing.T, as *AuthService, repo *Repository, email string, role Role) *User {
	hash, err := as.HashPassword("TestPass123!")
	require.NoError(t, err)

	user, err := repo.CreateUser(context.Background(), &User{
		Name:     "Test User",
		Email:    email,
		Password: hash,
		Role:     role,
		IsActive: true,
	})
	require.NoError(t, err)
	return user
}
