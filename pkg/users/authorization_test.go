package users

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/memtensor/memchat/pkg/errors"
)

func TestParseRole(t *testing.T) {
	for _, s := range []string{"user", "admin", "superadmin"} {
		role, err := ParseRole(s)
		assert.NoError(t, err)
		assert.Equal(t, s, role.String())
	}

	_, err := ParseRole("root")
	assert.Error(t, err)
	_, err = ParseRole("")
	assert.Error(t, err)
}

func TestActions(t *testing.T) {
	tests := []struct {
		role    Role
		granted []Action
		denied  []Action
	}{
		{
			role:    RoleUser,
			granted: []Action{ActionChatUse, ActionUsersRead},
			denied:  []Action{ActionUsersUpdate, ActionUsersDelete, ActionUsersCreate, ActionConversationsReadAll, ActionMetricsRead},
		},
		{
			role:    RoleAdmin,
			granted: []Action{ActionChatUse, ActionUsersRead, ActionUsersUpdate, ActionUsersDelete, ActionConversationsReadAll, ActionMetricsRead},
			denied:  []Action{ActionUsersCreate},
		},
		{
			role:    RoleSuperadmin,
			granted: []Action{ActionChatUse, ActionUsersRead, ActionUsersUpdate, ActionUsersDelete, ActionConversationsReadAll, ActionMetricsRead, ActionUsersCreate},
		},
		{
			role:   Role("guest"),
			denied: []Action{ActionChatUse, ActionUsersRead},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			set := Actions(tt.role)
			for _, a := range tt.granted {
				assert.True(t, set.Has(a), "expected %s to have %s", tt.role, a)
			}
			for _, a := range tt.denied {
				assert.False(t, set.Has(a), "expected %s not to have %s", tt.role, a)
			}
		})
	}
}

func TestAuthorizeUpdate(t *testing.T) {
	user := &User{ID: "u1", Role: RoleUser}
	other := &User{ID: "u2", Role: RoleUser}
	admin := &User{ID: "a1", Role: RoleAdmin}
	root := &User{ID: SuperadminID, Role: RoleSuperadmin}

	tests := []struct {
		name    string
		actor   *User
		target  *User
		fields  []string
		message string
	}{
		{"self profile fields", user, user, []string{FieldName, FieldAge, FieldPhone, FieldCity, FieldPassword, FieldProfileImage}, ""},
		{"self email", user, user, []string{FieldEmail}, "You are not allowed to update field: email"},
		{"self role", user, user, []string{FieldRole}, "You are not allowed to update field: role"},
		{"self unknown field", user, user, []string{"isActive"}, "You are not allowed to update field: isActive"},
		{"user on other", user, other, []string{FieldName}, "Forbidden: Access denied"},
		{"admin on user email", admin, other, []string{FieldName, FieldEmail}, ""},
		{"admin on user role", admin, other, []string{FieldRole}, "You are not allowed to update field: role"},
		{"admin on superadmin", admin, root, []string{FieldName}, "Forbidden: Access denied"},
		{"admin self email", admin, admin, []string{FieldEmail}, "You are not allowed to update field: email"},
		{"superadmin on admin role", root, admin, []string{FieldRole, FieldEmail}, ""},
		{"superadmin on user unknown", root, other, []string{"createdAt"}, "You are not allowed to update field: createdAt"},
		{"superadmin self role", root, root, []string{FieldRole}, "You are not allowed to update field: role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AuthorizeUpdate(tt.actor.Identity(), tt.target, tt.fields)
			if tt.message == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Equal(t, tt.message, errors.GetMemchatError(err).Message)
				assert.Equal(t, 403, errors.HTTPStatus(err))
			}
		})
	}
}

func TestAuthorizeDelete(t *testing.T) {
	user := &User{ID: "u1", Role: RoleUser}
	other := &User{ID: "u2", Role: RoleUser}
	admin := &User{ID: "a1", Role: RoleAdmin}
	root := &User{ID: SuperadminID, Role: RoleSuperadmin}

	assert.NoError(t, AuthorizeDelete(admin.Identity(), other))
	assert.NoError(t, AuthorizeDelete(root.Identity(), admin))

	err := AuthorizeDelete(user.Identity(), other)
	assert.Equal(t, "Forbidden: Access denied", errors.GetMemchatError(err).Message)

	err = AuthorizeDelete(admin.Identity(), root)
	assert.Equal(t, "Access denied", errors.GetMemchatError(err).Message)

	err = AuthorizeDelete(admin.Identity(), admin)
	assert.Equal(t, "Access denied", errors.GetMemchatError(err).Message)

	err = AuthorizeDelete(root.Identity(), root)
	assert.Equal(t, "Access denied", errors.GetMemchatError(err).Message)
}
