package chat

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Repository provides data access for conversations and messages
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new chat repository on an open database
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates or updates the chat tables
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&Conversation{}, &Participant{}, &Message{}); err != nil {
		return fmt.Errorf("failed to migrate chat tables: %w", err)
	}
	return nil
}

func orderedParticipants(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// Conversation operations

// CreateConversation stores a conversation and its participants in one transaction
func (r *Repository) CreateConversation(ctx context.Context, conversation *Conversation, participantIDs []string) (*Conversation, error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := tx.Omit("Participants").Create(conversation).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	participants := make([]Participant, 0, len(participantIDs))
	for i, id := range participantIDs {
		participants = append(participants, Participant{
			ConversationID: conversation.ID,
			UserID:         id,
			Position:       i,
			JoinedAt:       conversation.CreatedAt,
		})
	}
	if err := tx.Create(&participants).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create participants: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	conversation.Participants = participants
	return conversation, nil
}

// GetConversation retrieves a conversation with its participants
func (r *Repository) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var conversation Conversation
	err := r.db.WithContext(ctx).Preload("Participants", orderedParticipants).
		Where("id = ?", conversationID).First(&conversation).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conversation, nil
}

// GetDirectConversation retrieves the direct conversation stored under key
func (r *Repository) GetDirectConversation(ctx context.Context, key string) (*Conversation, error) {
	var conversation Conversation
	err := r.db.WithContext(ctx).Preload("Participants", orderedParticipants).
		Where("direct_key = ?", key).First(&conversation).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get direct conversation: %w", err)
	}
	return &conversation, nil
}

// ListUserConversations returns the conversations userID belongs to, most recently updated first
func (r *Repository) ListUserConversations(ctx context.Context, userID string) ([]Conversation, error) {
	db := r.db.WithContext(ctx)
	member := db.Model(&Participant{}).Select("conversation_id").Where("user_id = ?", userID)

	var conversations []Conversation
	if err := db.Preload("Participants", orderedParticipants).
		Where("id IN (?)", member).
		Order("updated_at DESC").Find(&conversations).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

// ListConversations returns every conversation, most recently updated first
func (r *Repository) ListConversations(ctx context.Context) ([]Conversation, error) {
	var conversations []Conversation
	if err := r.db.WithContext(ctx).Preload("Participants", orderedParticipants).
		Order("updated_at DESC").Find(&conversations).Error; err != nil {
		return nil, fmt.Errorf("failed to list all conversations: %w", err)
	}
	return conversations, nil
}

// AddParticipant appends userID at the next position and touches the conversation
func (r *Repository) AddParticipant(ctx context.Context, conversationID, userID string, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var next int
		if err := tx.Model(&Participant{}).Select("COALESCE(MAX(position), -1) + 1").
			Where("conversation_id = ?", conversationID).Scan(&next).Error; err != nil {
			return fmt.Errorf("failed to read participant position: %w", err)
		}

		participant := Participant{ConversationID: conversationID, UserID: userID, Position: next, JoinedAt: at}
		if err := tx.Create(&participant).Error; err != nil {
			return fmt.Errorf("failed to add participant: %w", err)
		}

		return touchConversation(tx, conversationID, at)
	})
}

// RemoveParticipant deletes the membership. It reports false when userID was not a member.
func (r *Repository) RemoveParticipant(ctx context.Context, conversationID, userID string, at time.Time) (bool, error) {
	removed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("conversation_id = ? AND user_id = ?", conversationID, userID).Delete(&Participant{})
		if result.Error != nil {
			return fmt.Errorf("failed to remove participant: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		removed = true
		return touchConversation(tx, conversationID, at)
	})
	return removed, err
}

func touchConversation(tx *gorm.DB, conversationID string, at time.Time) error {
	if err := tx.Model(&Conversation{}).Where("id = ?", conversationID).
		UpdateColumn("updated_at", at).Error; err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

// Message operations

// CreateMessage stores a message and refreshes the conversation's last message cache
func (r *Repository) CreateMessage(ctx context.Context, message *Message) (*Message, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}

		if err := tx.Model(&Conversation{}).Where("id = ?", message.ConversationID).
			UpdateColumns(map[string]interface{}{
				"last_message_content":   message.Content,
				"last_message_sender_id": message.SenderID,
				"last_message_at":        message.CreatedAt,
				"updated_at":             message.CreatedAt,
			}).Error; err != nil {
			return fmt.Errorf("failed to update last message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

// GetMessage retrieves a message by ID, deleted or not
func (r *Repository) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	var message Message
	if err := r.db.WithContext(ctx).Where("id = ?", messageID).First(&message).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &message, nil
}

// UpdateMessage saves every column of the message
func (r *Repository) UpdateMessage(ctx context.Context, message *Message) error {
	if err := r.db.WithContext(ctx).Save(message).Error; err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

func liveMessages(db *gorm.DB, conversationID string) *gorm.DB {
	return db.Model(&Message{}).Where("conversation_id = ? AND is_deleted = ?", conversationID, false)
}

// CountMessages returns the number of non-deleted messages in a conversation
func (r *Repository) CountMessages(ctx context.Context, conversationID string) (int64, error) {
	var total int64
	if err := liveMessages(r.db.WithContext(ctx), conversationID).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return total, nil
}

// ListMessages returns one page of non-deleted messages, newest first
func (r *Repository) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]Message, error) {
	var messages []Message
	if err := liveMessages(r.db.WithContext(ctx), conversationID).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// HealthCheck verifies the chat tables answer queries
func (r *Repository) HealthCheck(ctx context.Context) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Conversation{}).Limit(1).Count(&count).Error; err != nil {
		return fmt.Errorf("chat store health check failed: %w", err)
	}
	return nil
}
