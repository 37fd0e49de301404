// Package chat implements direct and group conversations and their messages
package chat

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationType distinguishes one-to-one conversations from named groups
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// ParseConversationType converts a request value into a ConversationType
func ParseConversationType(s string) (ConversationType, error) {
	t := ConversationType(s)
	switch t {
	case ConversationDirect, ConversationGroup:
		return t, nil
	}
	return "", fmt.Errorf("invalid conversation type: %q", s)
}

// DeletedMessageContent replaces the content of a deleted message
const DeletedMessageContent = "This message has been deleted"

// Conversation is a direct or group conversation. The last message columns are
// a read cache written on every send.
type Conversation struct {
	ID                  string           `gorm:"primaryKey;type:varchar(36)"`
	Type                ConversationType `gorm:"type:varchar(10);not null;index"`
	Name                string           `gorm:"type:varchar(100)"`
	CreatedBy           string           `gorm:"type:varchar(36);not null;index"`
	DirectKey           *string          `gorm:"type:varchar(80);uniqueIndex"`
	LastMessageContent  string           `gorm:"type:text"`
	LastMessageSenderID string           `gorm:"type:varchar(36)"`
	LastMessageAt       *time.Time
	CreatedAt           time.Time `gorm:"not null"`
	UpdatedAt           time.Time `gorm:"not null;index"`

	Participants []Participant `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

// BeforeCreate hook for Conversation model
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// ParticipantIDs returns the member ids in insertion order
func (c *Conversation) ParticipantIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// HasParticipant reports whether userID is a member
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// Participant links a user to a conversation
type Participant struct {
	ConversationID string    `gorm:"primaryKey;type:varchar(36)"`
	UserID         string    `gorm:"primaryKey;type:varchar(36);index"`
	Position       int       `gorm:"not null"`
	JoinedAt       time.Time `gorm:"not null"`
}

// TableName overrides the default participants table name
func (Participant) TableName() string {
	return "conversation_participants"
}

// Message is a single chat message
type Message struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)"`
	ConversationID string     `gorm:"type:varchar(36);not null;index:idx_messages_conversation_created,priority:1"`
	SenderID       string     `gorm:"type:varchar(36);not null;index"`
	Content        string     `gorm:"type:text;not null"`
	IsDeleted      bool       `gorm:"not null;default:false"`
	IsEdited       bool       `gorm:"not null;default:false"`
	EditedAt       *time.Time
	CreatedAt      time.Time `gorm:"not null;index:idx_messages_conversation_created,priority:2"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// BeforeCreate hook for Message model
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// DirectKey is the order independent key of a direct conversation between a and b
func DirectKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

// CreateConversationInput is the body of a create conversation request
type CreateConversationInput struct {
	Type         string   `json:"type" form:"type"`
	Participants []string `json:"participants" form:"participants"`
	Name         string   `json:"name" form:"name"`
}

// SendMessageInput is the body of a send message request
type SendMessageInput struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}
