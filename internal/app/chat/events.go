package chat

import (
	"context"
	"time"

	domainchat "shopme/internal/domain/chat"
)

// Event kinds published to the broker for downstream consumers
// (unread badges, analytics).
const (
	EventMessageSent      = "chat.message.sent"
	EventMessageDelivered = "chat.message.delivered"
	EventMessageRead      = "chat.message.read"
	EventMessagesRead     = "chat.messages.read"
	EventPresenceChanged  = "chat.presence.changed"
)

// Event is a chat lifecycle record. Publishing is best-effort; the
// delivery engine logs failures and moves on.
type Event struct {
	Kind           string            `json:"kind"`
	MessageID      string            `json:"message_id,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	SenderID       string            `json:"sender_id,omitempty"`
	ReceiverID     string            `json:"receiver_id,omitempty"`
	Status         domainchat.Status `json:"status,omitempty"`
	Count          int64             `json:"count,omitempty"`
	Online         []string          `json:"online,omitempty"`
	At             time.Time         `json:"at"`
}

// EventPublisher delivers chat events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

func messageEvent(kind string, msg *domainchat.Message) Event {
	return Event{
		Kind:           kind,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		ReceiverID:     msg.ReceiverID,
		Status:         msg.Status,
		At:             time.Now().UTC(),
	}
}
