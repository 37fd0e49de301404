package users

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/memtensor/memchat/pkg/config"
	"github.com/memtensor/memchat/pkg/database"
	"github.com/memtensor/memchat/pkg/errors"
	"github.com/memtensor/memchat/pkg/events"
	"github.com/memtensor/memchat/pkg/logger"
	"github.com/memtensor/memchat/pkg/metrics"
	"github.com/memtensor/memchat/pkg/types"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event events.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockPublisher) Close() error {
	return nil
}

type mockImageStore struct {
	mock.Mock
}

func (m *mockImageStore) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	data, _ := io.ReadAll(r)
	args := m.Called(ctx, filename, string(data))
	return args.String(0), args.Error(1)
}

func TestManager_Register(t *testing.T) {
	manager, deps := setupTestManager(t)
	ctx := context.Background()

	in := validRegisterInput()
	in.Role = "admin" // ignored
	age := 30
	in.Age = &age

	resp, err := manager.Register(ctx, in, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.NotEmpty(t, resp.User.ID)
	assert.Equal(t, RoleUser, resp.User.Role)
	assert.Equal(t, 30, *resp.User.Age)
	assert.True(t, resp.User.IsActive)
	assert.Empty(t, resp.User.ProfileImage)

	validated, err := manager.ValidateToken(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, validated.ID)

	assert.Equal(t, float64(1), deps.metrics.Snapshot().Counters[`users_registered_total{source="register"}`])
	deps.events.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(e events.Event) bool {
		return e.Type == events.UserCreated && e.Subject == resp.User.ID
	}))

	logs, err := manager.AuditLogs(ctx, resp.User.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "user_create", logs[0].Action)
	assert.Equal(t, "user", logs[0].Details["role"])
}

func TestManager_Register_Duplicate(t *testing.T) {
	manager, _ := setupTestManager(t)
	ctx := context.Background()

	_, err := manager.Register(ctx, validRegisterInput(), nil)
	require.NoError(t, err)

	_, err = manager.Register(ctx, validRegisterInput(), nil)
	require.Error(t, err)
	assert.Equal(t, "User already exists", errors.GetMemchatError(err).Message)
	assert.Equal(t, 400, errors.HTTPStatus(err))
}

func TestManager_Register_Validation(t *testing.T) {
	manager, _ := setupTestManager(t)

	in := validRegisterInput()
	in.Password = "short"
	_, err := manager.Register(context.Background(), in, nil)
	require.Error(t, err)
	assert.Equal(t, PasswordPolicyMessage, errors.GetMemchatError(err).Message)
}

func TestManager_Register_WithImage(t *testing.T) {
	manager, deps := setupTestManager(t)

	deps.images.On("Upload", mock.Anything, "me.png", "png-bytes").
		Return("https://cdn.example.com/me.png", nil).Once()

	resp, err := manager.Register(context.Background(), validRegisterInput(), &ImageUpload{
		Filename: "me.png",
		Reader:   strings.NewReader("png-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/me.png", resp.User.ProfileImage)
	deps.images.AssertExpectations(t)
}

func TestManager_Login(t *testing.T) {
	manager, deps := setupTestManager(t)
	ctx := context.Background()

	_, err := manager.Register(ctx, validRegisterInput(), nil)
	require.NoError(t, err)

	resp, err := manager.Login(ctx, LoginInput{Email: "alice@example.com", Password: "TestPass123!"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	_, err = manager.Login(ctx, LoginInput{Email: "alice@example.com", Password: "WrongPass123!"})
	require.Error(t, err)
	assert.Equal(t, float64(1), deps.metrics.Snapshot().Counters["auth_login_failures_total"])

	_, err = manager.Login(ctx, LoginInput{Email: "not-an-email", Password: "x"})
	assert.True(t, errors.IsType(err, types.ErrorTypeValidation))
}

func TestManager_SuperadminSeed(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	cfg := testConfig()
	cfg.SuperadminEmail = "root@example.com"
	cfg.SuperadminPassword = "Sup3r@dmin"

	manager, err := NewManager(ctx, cfg, db, Dependencies{Logger: logger.NewTestLogger()})
	require.NoError(t, err)

	resp, err := manager.Login(ctx, LoginInput{Email: "root@example.com", Password: "Sup3r@dmin"})
	require.NoError(t, err)
	assert.Equal(t, SuperadminID, resp.User.ID)
	assert.Equal(t, "Super Admin", resp.User.Name)
	assert.Equal(t, RoleSuperadmin, resp.User.Role)

	// Restarting with a new password refreshes the stored hash
	cfg.SuperadminPassword = "N3w@dminPass"
	manager, err = NewManager(ctx, cfg, db, Dependencies{Logger: logger.NewTestLogger()})
	require.NoError(t, err)

	_, err = manager.Login(ctx, LoginInput{Email: "root@example.com", Password: "Sup3r@dmin"})
	assert.Error(t, err)
	_, err = manager.Login(ctx, LoginInput{Email: "root@example.com", Password: "N3w@dminPass"})
	assert.NoError(t, err)
}

func TestManager_AddUser(t *testing.T) {
	manager, _ := setupTestManager(t)
	ctx := context.Background()
	root := Identity{ID: SuperadminID, Role: RoleSuperadmin}

	in := validRegisterInput()
	in.Role = "admin"
	user, err := manager.AddUser(ctx, root, in, nil)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, user.Role)

	in = validRegisterInput()
	in.Email = "plain@example.com"
	user, err = manager.AddUser(ctx, root, in, nil)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, user.Role)

	in = validRegisterInput()
	in.Email = "root2@example.com"
	in.Role = "superadmin"
	_, err = manager.AddUser(ctx, root, in, nil)
	require.Error(t, err)
	assert.Equal(t, "Superadmin cannot create another superadmin", errors.GetMemchatError(err).Message)
	assert.Equal(t, 403, errors.HTTPStatus(err))

	in.Role = ""
	_, err = manager.AddUser(ctx, Identity{ID: "a1", Role: RoleAdmin}, in, nil)
	assert.Equal(t, "Forbidden: Access denied", errors.GetMemchatError(err).Message)
}

func TestManager_GetAndListUsers(t *testing.T) {
	manager, _ := setupTestManager(t)
	ctx := context.Background()

	first := registerUser(t, manager, "first@example.com")
	time.Sleep(10 * time.Millisecond)
	second := registerUser(t, manager, "second@example.com")

	user, err := manager.GetUser(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first@example.com", user.Email)

	_, err = manager.GetUser(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, "User not found", errors.GetMemchatError(err).Message)
	assert.Equal(t, 404, errors.HTTPStatus(err))

	list, err := manager.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestManager_UpdateUser(t *testing.T) {
	manager, _ := setupTestManager(t)
	ctx := context.Background()

	user := registerUser(t, manager, "user@example.com")
	other := registerUser(t, manager, "other@example.com")
	admin := addUser(t, manager, "admin@example.com", "admin")
	root := Identity{ID: SuperadminID, Role: RoleSuperadmin}

	patch := func(values map[string]interface{}) *UpdateInput {
		in, err := NewUpdateInput(values)
		require.NoError(t, err)
		return in
	}

	t.Run("Self Update", func(t *testing.T) {
		updated, err := manager.UpdateUser(ctx, user.Identity(), user.ID, patch(map[string]interface{}{
			"name": "Renamed", "city": "Paris", "password": "NewPass123!",
		}), nil)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Name)
		assert.Equal(t, "Paris", updated.City)

		_, err = manager.Login(ctx, LoginInput{Email: "user@example.com", Password: "NewPass123!"})
		assert.NoError(t, err)
	})

	t.Run("Clear Phone", func(t *testing.T) {
		updated, err := manager.UpdateUser(ctx, user.Identity(), user.ID, patch(map[string]interface{}{"phone": "5551234567"}), nil)
		require.NoError(t, err)
		assert.Equal(t, "5551234567", updated.Phone)

		updated, err = manager.UpdateUser(ctx, user.Identity(), user.ID, patch(map[string]interface{}{"phone": ""}), nil)
		require.NoError(t, err)
		assert.Empty(t, updated.Phone)

		stored, err := manager.GetUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.Phone)
	})

	t.Run("Self Email Denied", func(t *testing.T) {
		_, err := manager.UpdateUser(ctx, user.Identity(), user.ID, patch(map[string]interface{}{"email": "x@example.com"}), nil)
		assert.Equal(t, "You are not allowed to update field: email", errors.GetMemchatError(err).Message)
	})

	t.Run("Unknown Field Denied", func(t *testing.T) {
		_, err := manager.UpdateUser(ctx, user.Identity(), user.ID, patch(map[string]interface{}{"isActive": false}), nil)
		assert.Equal(t, "You are not allowed to update field: isActive", errors.GetMemchatError(err).Message)
	})

	t.Run("Other User Denied", func(t *testing.T) {
		_, err := manager.UpdateUser(ctx, user.Identity(), other.ID, patch(map[string]interface{}{"name": "Hacked"}), nil)
		assert.Equal(t, "Forbidden: Access denied", errors.GetMemchatError(err).Message)
	})

	t.Run("Admin Changes Email", func(t *testing.T) {
		updated, err := manager.UpdateUser(ctx, admin.Identity(), other.ID, patch(map[string]interface{}{"email": "moved@example.com"}), nil)
		require.NoError(t, err)
		assert.Equal(t, "moved@example.com", updated.Email)
	})

	t.Run("Admin Email Conflict", func(t *testing.T) {
		_, err := manager.UpdateUser(ctx, admin.Identity(), other.ID, patch(map[string]interface{}{"email": "admin@example.com"}), nil)
		assert.Equal(t, "User already exists", errors.GetMemchatError(err).Message)
	})

	t.Run("Admin Role Denied", func(t *testing.T) {
		_, err := manager.UpdateUser(ctx, admin.Identity(), other.ID, patch(map[string]interface{}{"role": "admin"}), nil)
		assert.Equal(t, "You are not allowed to update field: role", errors.GetMemchatError(err).Message)
	})

	t.Run("Superadmin Promotes", func(t *testing.T) {
		updated, err := manager.UpdateUser(ctx, root, other.ID, patch(map[string]interface{}{"role": "admin"}), nil)
		require.NoError(t, err)
		assert.Equal(t, RoleAdmin, updated.Role)

		_, err = manager.UpdateUser(ctx, root, other.ID, patch(map[string]interface{}{"role": "superadmin"}), nil)
		assert.Equal(t, 403, errors.HTTPStatus(err))
	})

	t.Run("Invalid Value", func(t *testing.T) {
		_, err := manager.UpdateUser(ctx, user.Identity(), user.ID, patch(map[string]interface{}{"age": float64(200)}), nil)
		assert.Equal(t, 400, errors.HTTPStatus(err))
	})

	t.Run("Missing User", func(t *testing.T) {
		_, err := manager.UpdateUser(ctx, root, "missing", patch(map[string]interface{}{"name": "Nobody"}), nil)
		assert.Equal(t, "User not found", errors.GetMemchatError(err).Message)
	})
}

func TestManager_UpdateUser_Image(t *testing.T) {
	manager, deps := setupTestManager(t)
	user := registerUser(t, manager, "pic@example.com")

	deps.images.On("Upload", mock.Anything, "new.png", "bytes").Return("https://cdn.example.com/new.png", nil).Once()

	updated, err := manager.UpdateUser(context.Background(), user.Identity(), user.ID, &UpdateInput{}, &ImageUpload{
		Filename: "new.png",
		Reader:   strings.NewReader("bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/new.png", updated.ProfileImage)
}

func TestManager_DeleteUser(t *testing.T) {
	manager, deps := setupTestManager(t)
	ctx := context.Background()

	user := registerUser(t, manager, "user@example.com")
	other := registerUser(t, manager, "other@example.com")
	admin := addUser(t, manager, "admin@example.com", "admin")
	root := Identity{ID: SuperadminID, Role: RoleSuperadmin}

	err := manager.DeleteUser(ctx, user.Identity(), other.ID)
	assert.Equal(t, "Forbidden: Access denied", errors.GetMemchatError(err).Message)

	err = manager.DeleteUser(ctx, admin.Identity(), admin.ID)
	assert.Equal(t, "Access denied", errors.GetMemchatError(err).Message)

	err = manager.DeleteUser(ctx, admin.Identity(), "missing")
	assert.Equal(t, "User not found", errors.GetMemchatError(err).Message)

	require.NoError(t, manager.DeleteUser(ctx, admin.Identity(), other.ID))
	deps.events.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(e events.Event) bool {
		return e.Type == events.UserDeleted && e.Subject == other.ID
	}))

	// Deleted users disappear from listings and cannot log in
	_, err = manager.GetUser(ctx, other.ID)
	assert.Equal(t, 404, errors.HTTPStatus(err))
	_, err = manager.Login(ctx, LoginInput{Email: "other@example.com", Password: "TestPass123!"})
	assert.Equal(t, "User not found", errors.GetMemchatError(err).Message)

	// Their email stays reserved
	in := validRegisterInput()
	in.Email = "other@example.com"
	_, err = manager.Register(ctx, in, nil)
	assert.Equal(t, "User already exists", errors.GetMemchatError(err).Message)

	require.NoError(t, manager.DeleteUser(ctx, root, admin.ID))
}

func TestManager_Directory(t *testing.T) {
	manager, _ := setupTestManager(t)
	ctx := context.Background()
	root := Identity{ID: SuperadminID, Role: RoleSuperadmin}

	a := registerUser(t, manager, "a@example.com")
	b := registerUser(t, manager, "b@example.com")

	ok, err := manager.AllActive(ctx, []string{a.ID, b.ID, a.ID})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = manager.AllActive(ctx, []string{a.ID, "ghost"})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, manager.DeleteUser(ctx, root, b.ID))
	ok, _ = manager.AllActive(ctx, []string{a.ID, b.ID})
	assert.False(t, ok)

	summaries, err := manager.Summaries(ctx, []string{a.ID, b.ID, "ghost"})
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
	assert.Equal(t, "a@example.com", summaries[a.ID].Email)
	assert.Equal(t, "b@example.com", summaries[b.ID].Email)
}

func TestManager_EventFailureIgnored(t *testing.T) {
	db := setupTestDB(t)
	publisher := &mockPublisher{}
	publisher.On("Publish", mock.Anything, mock.Anything).Return(assert.AnError)

	manager, err := NewManager(context.Background(), testConfig(), db, Dependencies{
		Events: publisher,
		Logger: logger.NewTestLogger(),
	})
	require.NoError(t, err)

	_, err = manager.Register(context.Background(), validRegisterInput(), nil)
	assert.NoError(t, err)
	publisher.AssertNumberOfCalls(t, "Publish", 1)
}

// Test helper functions

type testDeps struct {
	events  *mockPublisher
	images  *mockImageStore
	metrics *metrics.InMemoryMetrics
}

func setupTestDB(t *testing.T) *gorm.DB {
	cfg := config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "test_users.db"),
	}

	db, err := database.Open(context.Background(), cfg, time.Second, logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, database.Close(db))
	})
	return db
}

func setupTestManager(t *testing.T) (*Manager, *testDeps) {
	deps := &testDeps{
		events:  &mockPublisher{},
		images:  &mockImageStore{},
		metrics: metrics.NewTestMetrics(),
	}
	deps.events.On("Publish", mock.Anything, mock.Anything).Return(nil)

	manager, err := NewManager(context.Background(), testConfig(), setupTestDB(t), Dependencies{
		Images:  deps.images,
		Events:  deps.events,
		Metrics: deps.metrics,
		Logger:  logger.NewTestLogger(),
	})
	require.NoError(t, err)

	return manager, deps
}

func registerUser(t *testing.T, manager *Manager, email string) *User {
	in := validRegisterInput()
	in.Email = email
	resp, err := manager.Register(context.Background(), in, nil)
	require.NoError(t, err)
	return resp.User
}

func addUser(t *testing.T, manager *Manager, email, role string) *User {
	in := validRegisterInput()
	in.Email = email
	in.Role = role
	user, err := manager.AddUser(context.Background(), Identity{ID: SuperadminID, Role: RoleSuperadmin}, in, nil)
	require.NoError(t, err)
	return user
}
