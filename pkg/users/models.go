// Package users provides user management, authentication, and authorization for memchat.
package users

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Role represents the different roles a user can have in the system
type Role string

const (
	RoleUser       Role = "user"       // Regular user
	RoleAdmin      Role = "admin"      // Manages other users and reads all conversations
	RoleSuperadmin Role = "superadmin" // Seeded from configuration, creates users
)

// SuperadminID is the fixed id of the seeded superadmin account
const SuperadminID = "superadmin"

// ParseRole converts a string into a Role, rejecting unknown values
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid role: %q", s)
	}
	return r, nil
}

// String returns the string representation of Role
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the Role is a valid role
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperadmin:
		return true
	default:
		return false
	}
}

// Action is a capability checked by route gates and services
type Action string

const (
	ActionUsersRead            Action = "users:read"
	ActionUsersUpdate          Action = "users:update"
	ActionUsersDelete          Action = "users:delete"
	ActionUsersCreate          Action = "users:create"
	ActionConversationsReadAll Action = "conversations:read_all"
	ActionChatUse              Action = "chat:use"
	ActionMetricsRead          Action = "metrics:read"
)

// ActionSet is an immutable set of actions
type ActionSet map[Action]struct{}

// Has reports whether the set contains the action
func (s ActionSet) Has(a Action) bool {
	_, ok := s[a]
	return ok
}

func newActionSet(actions ...Action) ActionSet {
	set := make(ActionSet, len(actions))
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return set
}

// Actions returns the actions granted to a role. Unknown roles get nothing.
func Actions(role Role) ActionSet {
	switch role {
	case RoleUser:
		return newActionSet(ActionChatUse, ActionUsersRead)
	case RoleAdmin:
		return newActionSet(ActionChatUse, ActionUsersRead,
			ActionUsersUpdate, ActionUsersDelete, ActionConversationsReadAll, ActionMetricsRead)
	case RoleSuperadmin:
		return newActionSet(ActionChatUse, ActionUsersRead,
			ActionUsersUpdate, ActionUsersDelete, ActionConversationsReadAll, ActionMetricsRead,
			ActionUsersCreate)
	default:
		return ActionSet{}
	}
}

// User represents a user in the system
type User struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name         string    `gorm:"type:varchar(50);not null" json:"name"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password     string    `gorm:"not null" json:"-"` // bcrypt hash, never returned in JSON
	Role         Role      `gorm:"type:varchar(20);not null;default:'user'" json:"role"`
	Age          *int      `json:"age,omitempty"`
	Phone        string    `gorm:"type:varchar(15)" json:"phone,omitempty"`
	Address      string    `gorm:"type:varchar(100)" json:"address,omitempty"`
	City         string    `gorm:"type:varchar(50)" json:"city,omitempty"`
	Country      string    `gorm:"type:varchar(50)" json:"country,omitempty"`
	ZipCode      string    `gorm:"type:varchar(20)" json:"zipCode,omitempty"`
	ProfileImage string    `gorm:"not null;default:''" json:"profileImage"`
	IsActive     bool      `gorm:"not null;default:true;index" json:"isActive"`
	CreatedAt    time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"not null" json:"updatedAt"`
}

// BeforeCreate hook for User model
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate hook for User model
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// Identity returns the caller identity carried by tokens
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Role: u.Role}
}

// Summary returns the public subset of the user embedded in chat views
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		ProfileImage: u.ProfileImage,
	}
}

// UserSummary is the public profile subset shown next to conversations and messages
type UserSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	ProfileImage string `json:"profileImage"`
}

// AuditLog records user administration events
type AuditLog struct {
	ID         string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID     string            `gorm:"type:varchar(36);index" json:"userId,omitempty"`
	Action     string            `gorm:"type:varchar(50);not null" json:"action"`
	Resource   string            `gorm:"type:varchar(50);not null" json:"resource"`
	ResourceID string            `gorm:"type:varchar(36)" json:"resourceId,omitempty"`
	Details    datatypes.JSONMap `json:"details,omitempty"`
	RequestID  string            `gorm:"type:varchar(100)" json:"requestId,omitempty"`
	Success    bool              `gorm:"not null" json:"success"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"createdAt"`
}

// BeforeCreate hook for AuditLog model
func (al *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if al.ID == "" {
		al.ID = uuid.New().String()
	}
	if al.CreatedAt.IsZero() {
		al.CreatedAt = time.Now().UTC()
	}
	return nil
}

// AuthResponse is returned by login and registration
type AuthResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// ImageUpload carries an optional profile image from a multipart request
type ImageUpload struct {
	Filename string
	Reader   io.Reader
}
