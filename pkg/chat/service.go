package chat

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/memtensor/memchat/pkg/errors"
	"github.com/memtensor/memchat/pkg/events"
	"github.com/memtensor/memchat/pkg/interfaces"
	"github.com/memtensor/memchat/pkg/logger"
	"github.com/memtensor/memchat/pkg/metrics"
	"github.com/memtensor/memchat/pkg/types"
	"github.com/memtensor/memchat/pkg/users"
)

// Paging defaults for message history
const (
	DefaultPage     = 1
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Directory resolves user profiles for chat views. *users.Manager implements it.
type Directory interface {
	Summaries(ctx context.Context, ids []string) (map[string]users.UserSummary, error)
	AllActive(ctx context.Context, ids []string) (bool, error)
}

// Dependencies are the collaborators of the chat service. Nil members get no-op defaults.
type Dependencies struct {
	Events  events.Publisher
	Metrics interfaces.Metrics
	Logger  interfaces.Logger
}

// Service implements conversations and messaging on top of the chat repository
type Service struct {
	repository *Repository
	directory  Directory
	events     events.Publisher
	metrics    interfaces.Metrics
	logger     interfaces.Logger
	now        func() time.Time
}

// NewService migrates the chat tables and returns a ready service
func NewService(ctx context.Context, db *gorm.DB, directory Directory, deps Dependencies) (*Service, error) {
	if directory == nil {
		return nil, fmt.Errorf("chat service requires a user directory")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewLogger()
	}
	if deps.Events == nil {
		deps.Events = events.NoopPublisher{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoOpMetrics()
	}

	repository := NewRepository(db)
	if err := repository.Migrate(ctx); err != nil {
		return nil, err
	}

	return &Service{
		repository: repository,
		directory:  directory,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        time.Now,
	}, nil
}

// Conversation operations

// CreateConversation creates a direct or group conversation with the caller as
// first participant. For a direct pair that already exists the stored
// conversation is returned and created is false.
func (s *Service) CreateConversation(ctx context.Context, actor users.Identity, in CreateConversationInput) (*ConversationView, bool, error) {
	if len(in.Participants) == 0 {
		return nil, false, errors.NewValidationError("Participants are required")
	}

	convType, err := ParseConversationType(in.Type)
	if err != nil {
		return nil, false, errors.NewValidationError("Invalid conversation type")
	}

	participants := uniqueParticipants(actor.ID, in.Participants)

	name := strings.TrimSpace(in.Name)
	var directKey *string
	switch convType {
	case ConversationDirect:
		if len(participants) != 2 {
			return nil, false, errors.NewValidationError("Direct conversation must have exactly 2 participants")
		}
		key := DirectKey(participants[0], participants[1])
		directKey = &key
		name = ""
	case ConversationGroup:
		if name == "" {
			return nil, false, errors.NewValidationError("Group name is required")
		}
	}

	ok, err := s.directory.AllActive(ctx, participants)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, errors.NewValidationError("Participant not found")
	}

	if directKey != nil {
		existing, err := s.repository.GetDirectConversation(ctx, *directKey)
		if err != nil {
			return nil, false, errors.NewDatabaseErrorWithCause("failed to look up conversation", err)
		}
		if existing != nil {
			view, err := s.conversationView(ctx, existing, false)
			return view, false, err
		}
	}

	now := s.timestamp()
	conversation := &Conversation{
		Type:      convType,
		Name:      name,
		CreatedBy: actor.ID,
		DirectKey: directKey,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.repository.CreateConversation(ctx, conversation, participants)
	if err != nil {
		if directKey != nil && stderrors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the race against a concurrent create of the same pair
			winner, lookupErr := s.repository.GetDirectConversation(ctx, *directKey)
			if lookupErr == nil && winner != nil {
				view, err := s.conversationView(ctx, winner, false)
				return view, false, err
			}
		}
		return nil, false, errors.NewDatabaseErrorWithCause("failed to create conversation", err)
	}

	s.metrics.Counter("chat_conversations_created_total", 1, map[string]string{"type": string(convType)})
	s.publish(ctx, events.ConversationCreated, created.ID, actor.ID, map[string]interface{}{
		"type":         string(convType),
		"participants": participants,
	})
	s.logger.Info("Conversation created", map[string]interface{}{
		"conversation_id": created.ID,
		"type":            string(convType),
		"participants":    len(participants),
	})

	view, err := s.conversationView(ctx, created, false)
	return view, true, err
}

// ListUserConversations returns the caller's conversations, most recently active first
func (s *Service) ListUserConversations(ctx context.Context, actor users.Identity) ([]ConversationView, error) {
	conversations, err := s.repository.ListUserConversations(ctx, actor.ID)
	if err != nil {
		return nil, errors.NewDatabaseErrorWithCause("failed to list conversations", err)
	}
	return s.conversationViews(ctx, conversations, false)
}

// ListAllConversations returns every conversation with its creator. Admins only.
func (s *Service) ListAllConversations(ctx context.Context, actor users.Identity) ([]ConversationView, error) {
	if !actor.Can(users.ActionConversationsReadAll) {
		return nil, errors.NewForbiddenError("Forbidden: Access denied")
	}

	conversations, err := s.repository.ListConversations(ctx)
	if err != nil {
		return nil, errors.NewDatabaseErrorWithCause("failed to list conversations", err)
	}
	return s.conversationViews(ctx, conversations, true)
}

// AddParticipant adds a user to a group conversation. Only the creator may do so.
func (s *Service) AddParticipant(ctx context.Context, actor users.Identity, conversationID, participantID string) (*ConversationView, error) {
	conversation, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if conversation.Type != ConversationGroup {
		return nil, errors.NewValidationError("Can only add participants to group conversations")
	}
	if conversation.CreatedBy != actor.ID {
		return nil, errors.NewForbiddenError("Only the creator can add participants")
	}
	if conversation.HasParticipant(participantID) {
		return nil, errors.NewValidationError("User is already a participant")
	}

	ok, err := s.directory.AllActive(ctx, []string{participantID})
	if err != nil {
		return nil, err
	}
	if participantID == "" || !ok {
		return nil, errors.NewValidationError("Participant not found")
	}

	if err := s.repository.AddParticipant(ctx, conversation.ID, participantID, s.timestamp()); err != nil {
		return nil, errors.NewDatabaseErrorWithCause("failed to add participant", err)
	}

	s.publish(ctx, events.ParticipantAdded, conversation.ID, actor.ID, map[string]interface{}{
		"participantId": participantID,
	})

	return s.reloadConversation(ctx, conversation.ID)
}

// RemoveParticipant removes a user from a group conversation. Removing a
// non-member succeeds without changes.
func (s *Service) RemoveParticipant(ctx context.Context, actor users.Identity, conversationID, participantID string) (*ConversationView, error) {
	conversation, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if conversation.Type != ConversationGroup {
		return nil, errors.NewValidationError("Can only remove participants from group conversations")
	}
	if conversation.CreatedBy != actor.ID {
		return nil, errors.NewForbiddenError("Only the creator can remove participants")
	}

	removed, err := s.repository.RemoveParticipant(ctx, conversation.ID, participantID, s.timestamp())
	if err != nil {
		return nil, errors.NewDatabaseErrorWithCause("failed to remove participant", err)
	}
	if !removed {
		return s.conversationView(ctx, conversation, false)
	}

	s.publish(ctx, events.ParticipantRemoved, conversation.ID, actor.ID, map[string]interface{}{
		"participantId": participantID,
	})

	return s.reloadConversation(ctx, conversation.ID)
}

// Message operations

// SendMessage appends a message to a conversation the caller belongs to
func (s *Service) SendMessage(ctx context.Context, actor users.Identity, in SendMessageInput) (*MessageView, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, errors.NewValidationError("Message content is required")
	}

	conversation, err := s.loadMemberConversation(ctx, actor, in.ConversationID)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	message, err := s.repository.CreateMessage(ctx, &Message{
		ConversationID: conversation.ID,
		SenderID:       actor.ID,
		Content:        content,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, errors.NewDatabaseErrorWithCause("failed to send message", err)
	}

	s.metrics.Counter("chat_messages_sent_total", 1, map[string]string{"type": string(conversation.Type)})
	s.publish(ctx, events.MessageSent, message.ID, actor.ID, map[string]interface{}{
		"conversationId": conversation.ID,
		"participants":   conversation.ParticipantIDs(),
	})

	return s.messageView(ctx, message)
}

// ListMessages returns one page of a conversation's non-deleted messages in
// chronological order. Non-positive page or limit values fall back to the defaults.
func (s *Service) ListMessages(ctx context.Context, actor users.Identity, conversationID string, page, limit int) (*MessagePage, error) {
	page, limit = NormalizePage(page, limit)

	conversation, err := s.loadMemberConversation(ctx, actor, conversationID)
	if err != nil {
		return nil, err
	}

	total, err := s.repository.CountMessages(ctx, conversation.ID)
	if err != nil {
		return nil, errors.NewDatabaseErrorWithCause("failed to count messages", err)
	}
	totalPages := (total + int64(limit) - 1) / int64(limit)

	result := &MessagePage{
		Messages:   []MessageView{},
		Total:      total,
		Page:       page,
		TotalPages: int(totalPages),
	}
	// pages past the end are empty; this also keeps the offset below total
	if int64(page) > totalPages {
		return result, nil
	}

	messages, err := s.repository.ListMessages(ctx, conversation.ID, (page-1)*limit, limit)
	if err != nil {
		return nil, errors.NewDatabaseErrorWithCause("failed to list messages", err)
	}

	senders := make([]string, 0, len(messages))
	for _, m := range messages {
		senders = append(senders, m.SenderID)
	}
	profiles, err := s.directory.Summaries(ctx, senders)
	if err != nil {
		return nil, err
	}

	views := make([]MessageView, len(messages))
	for i := range messages {
		// newest first from the store, oldest first on the page
		views[len(messages)-1-i] = newMessageView(&messages[i], summaryFor(profiles, messages[i].SenderID))
	}
	result.Messages = views
	return result, nil
}

// EditMessage replaces the content of the caller's own message
func (s *Service) EditMessage(ctx context.Context, actor users.Identity, messageID, content string) (*MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.NewValidationError("Message content is required")
	}

	message, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.SenderID != actor.ID {
		return nil, errors.NewForbiddenError("You can only edit your own messages")
	}
	if message.IsDeleted {
		return nil, errors.NewValidationError("Cannot edit deleted message")
	}

	now := s.timestamp()
	message.Content = content
	message.IsEdited = true
	message.EditedAt = &now
	if err := s.repository.UpdateMessage(ctx, message); err != nil {
		return nil, errors.NewDatabaseErrorWithCause("failed to edit message", err)
	}

	s.publish(ctx, events.MessageEdited, message.ID, actor.ID, map[string]interface{}{
		"conversationId": message.ConversationID,
	})

	return s.messageView(ctx, message)
}

// DeleteMessage tombstones the caller's own message. Deleting twice succeeds.
func (s *Service) DeleteMessage(ctx context.Context, actor users.Identity, messageID string) (*DeleteResult, error) {
	message, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.SenderID != actor.ID {
		return nil, errors.NewForbiddenError("You can only delete your own messages")
	}

	message.IsDeleted = true
	message.Content = DeletedMessageContent
	if err := s.repository.UpdateMessage(ctx, message); err != nil {
		return nil, errors.NewDatabaseErrorWithCause("failed to delete message", err)
	}

	s.publish(ctx, events.MessageDeleted, message.ID, actor.ID, map[string]interface{}{
		"conversationId": message.ConversationID,
	})

	return &DeleteResult{Message: "Message deleted successfully"}, nil
}

// HealthCheck implements interfaces.HealthChecker
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.repository.HealthCheck(ctx)
}

// NormalizePage applies the paging defaults and caps the page size
func NormalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = DefaultPage
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

// Helper methods

// uniqueParticipants returns the creator followed by the requested ids, without duplicates
func uniqueParticipants(creatorID string, requested []string) []string {
	seen := make(map[string]struct{}, len(requested)+1)
	ids := make([]string, 0, len(requested)+1)
	for _, id := range append([]string{creatorID}, requested...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) loadConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	conversation, err := s.repository.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, errors.NewDatabaseErrorWithCause("failed to get conversation", err)
	}
	if conversation == nil {
		return nil, errors.NewNotFoundError("Conversation")
	}
	return conversation, nil
}

func (s *Service) loadMemberConversation(ctx context.Context, actor users.Identity, conversationID string) (*Conversation, error) {
	conversation, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(actor.ID) {
		return nil, errors.NewForbiddenError("You are not a participant in this conversation")
	}
	return conversation, nil
}

func (s *Service) loadMessage(ctx context.Context, messageID string) (*Message, error) {
	message, err := s.repository.GetMessage(ctx, messageID)
	if err != nil {
		return nil, errors.NewDatabaseErrorWithCause("failed to get message", err)
	}
	if message == nil {
		return nil, errors.NewNotFoundError("Message")
	}
	return message, nil
}

func (s *Service) reloadConversation(ctx context.Context, conversationID string) (*ConversationView, error) {
	conversation, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return s.conversationView(ctx, conversation, false)
}

func (s *Service) conversationView(ctx context.Context, c *Conversation, withCreator bool) (*ConversationView, error) {
	views, err := s.conversationViews(ctx, []Conversation{*c}, withCreator)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// conversationViews resolves every referenced profile with a single directory lookup
func (s *Service) conversationViews(ctx context.Context, conversations []Conversation, withCreator bool) ([]ConversationView, error) {
	var ids []string
	for i := range conversations {
		c := &conversations[i]
		ids = append(ids, c.ParticipantIDs()...)
		if c.LastMessageSenderID != "" {
			ids = append(ids, c.LastMessageSenderID)
		}
		if withCreator {
			ids = append(ids, c.CreatedBy)
		}
	}

	profiles, err := s.directory.Summaries(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]ConversationView, 0, len(conversations))
	for i := range conversations {
		views = append(views, newConversationView(&conversations[i], profiles, withCreator))
	}
	return views, nil
}

func (s *Service) messageView(ctx context.Context, m *Message) (*MessageView, error) {
	profiles, err := s.directory.Summaries(ctx, []string{m.SenderID})
	if err != nil {
		return nil, err
	}
	view := newMessageView(m, summaryFor(profiles, m.SenderID))
	return &view, nil
}

// timestamp returns the service clock in UTC
func (s *Service) timestamp() time.Time {
	return s.now().UTC()
}

func (s *Service) publish(ctx context.Context, eventType events.EventType, subject, actorID string, data map[string]interface{}) {
	if err := s.events.Publish(ctx, events.NewEvent(eventType, subject, actorID, data)); err != nil {
		s.logger.Warn("Failed to publish event", map[string]interface{}{
			"type":       string(eventType),
			"request_id": types.GetRequestContext(ctx).RequestID,
			"error":      err.Error(),
		})
	}
}
