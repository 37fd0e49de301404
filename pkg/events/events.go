// Package events publishes memchat domain events to other services
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/memtensor/memchat/pkg/config"
	"github.com/memtensor/memchat/pkg/interfaces"
)

// EventType names a domain event; it doubles as the subject suffix
type EventType string

const (
	ConversationCreated EventType = "chat.conversation.created"
	MessageSent         EventType = "chat.message.sent"
	MessageEdited       EventType = "chat.message.edited"
	MessageDeleted      EventType = "chat.message.deleted"
	ParticipantAdded    EventType = "chat.participant.added"
	ParticipantRemoved  EventType = "chat.participant.removed"
	UserCreated         EventType = "users.created"
	UserUpdated         EventType = "users.updated"
	UserDeleted         EventType = "users.deleted"
)

// Event is the envelope published for every domain change
type Event struct {
	ID         string                 `json:"id"`
	Type       EventType              `json:"type"`
	Subject    string                 `json:"subject"`
	ActorID    string                 `json:"actorId"`
	OccurredAt time.Time              `json:"occurredAt"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// NewEvent builds an event with a fresh id and timestamp
func NewEvent(eventType EventType, subject, actorID string, data map[string]interface{}) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Subject:    subject,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher sends domain events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher drops every event
type NoopPublisher struct{}

// Publish does nothing
func (NoopPublisher) Publish(ctx context.Context, event Event) error { return nil }

// Close does nothing
func (NoopPublisher) Close() error { return nil }

// conn is the subset of *nats.Conn the publisher needs
type conn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATSPublisher publishes JSON events on core NATS subjects
type NATSPublisher struct {
	conn   conn
	prefix string
	logger interfaces.Logger
	mu     sync.Mutex
	closed bool
}

// NewNATSPublisher connects to NATS, retrying until maxElapsed passes
func NewNATSPublisher(ctx context.Context, cfg config.NATSConfig, maxElapsed time.Duration, logger interfaces.Logger) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("memchat"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", map[string]interface{}{"error": err.Error()})
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", map[string]interface{}{"url": nc.ConnectedUrl()})
		}),
	}

	var nc *nats.Conn
	operation := func() error {
		c, err := nats.Connect(cfg.URL, opts...)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		nc = c
		return nil
	}

	retryConfig := backoff.NewExponentialBackOff()
	retryConfig.MaxElapsedTime = maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(retryConfig, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after retries: %w", err)
	}

	logger.Info("NATS connection established", map[string]interface{}{
		"url":       nc.ConnectedUrl(),
		"server_id": nc.ConnectedServerId(),
	})

	return newNATSPublisher(nc, cfg.SubjectPrefix, logger), nil
}

func newNATSPublisher(c conn, prefix string, logger interfaces.Logger) *NATSPublisher {
	return &NATSPublisher{
		conn:   c,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logger,
	}
}

// SubjectFor returns the NATS subject an event type is published on
func (p *NATSPublisher) SubjectFor(eventType EventType) string {
	if p.prefix == "" {
		return string(eventType)
	}
	return p.prefix + "." + string(eventType)
}

// Publish encodes the event as JSON and publishes it
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("NATS publisher is closed")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	subject := p.SubjectFor(event.Type)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Event published", map[string]interface{}{
		"subject":  subject,
		"event_id": event.ID,
	})
	return nil
}

// Close drains pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.conn.Drain()
}

var _ Publisher = NoopPublisher{}
var _ Publisher = (*NATSPublisher)(nil)
