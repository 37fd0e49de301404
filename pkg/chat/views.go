package chat

import (
	"time"

	"github.com/memtensor/memchat/pkg/users"
)

// SenderSummary is the profile subset shown next to a conversation's last message
type SenderSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ProfileImage string `json:"profileImage"`
}

// CreatorSummary is the profile subset of a conversation's creator shown to admins
type CreatorSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// LastMessageView is the cached preview of the latest message
type LastMessageView struct {
	Content   string         `json:"content"`
	Sender    *SenderSummary `json:"sender"`
	Timestamp time.Time      `json:"timestamp"`
}

// ConversationView is a conversation as returned to clients
type ConversationView struct {
	ID           string              `json:"id"`
	Type         ConversationType    `json:"type"`
	Name         string              `json:"name,omitempty"`
	Participants []users.UserSummary `json:"participants"`
	CreatedBy    string              `json:"createdBy"`
	Creator      *CreatorSummary     `json:"creator,omitempty"`
	LastMessage  *LastMessageView    `json:"lastMessage,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

// MessageView is a message with its sender's profile
type MessageView struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversationId"`
	Sender         users.UserSummary `json:"sender"`
	Content        string            `json:"content"`
	IsDeleted      bool              `json:"isDeleted"`
	IsEdited       bool              `json:"isEdited"`
	EditedAt       *time.Time        `json:"editedAt,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// MessagePage is one page of a conversation's history, oldest first
type MessagePage struct {
	Messages   []MessageView `json:"messages"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	TotalPages int           `json:"totalPages"`
}

// DeleteResult acknowledges a deleted message
type DeleteResult struct {
	Message string `json:"message"`
}

// summaryFor returns the known profile of id, or a bare one when the user row is gone
func summaryFor(profiles map[string]users.UserSummary, id string) users.UserSummary {
	if s, ok := profiles[id]; ok {
		return s
	}
	return users.UserSummary{ID: id}
}

func newConversationView(c *Conversation, profiles map[string]users.UserSummary, withCreator bool) ConversationView {
	view := ConversationView{
		ID:           c.ID,
		Type:         c.Type,
		Name:         c.Name,
		Participants: make([]users.UserSummary, 0, len(c.Participants)),
		CreatedBy:    c.CreatedBy,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}

	for _, p := range c.Participants {
		view.Participants = append(view.Participants, summaryFor(profiles, p.UserID))
	}

	if withCreator {
		creator := summaryFor(profiles, c.CreatedBy)
		view.Creator = &CreatorSummary{ID: creator.ID, Name: creator.Name, Email: creator.Email}
	}

	if c.LastMessageAt != nil {
		last := &LastMessageView{Content: c.LastMessageContent, Timestamp: *c.LastMessageAt}
		if c.LastMessageSenderID != "" {
			sender := summaryFor(profiles, c.LastMessageSenderID)
			last.Sender = &SenderSummary{ID: sender.ID, Name: sender.Name, ProfileImage: sender.ProfileImage}
		}
		view.LastMessage = last
	}

	return view
}

func newMessageView(m *Message, sender users.UserSummary) MessageView {
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         sender,
		Content:        m.Content,
		IsDeleted:      m.IsDeleted,
		IsEdited:       m.IsEdited,
		EditedAt:       m.EditedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
