package chat

import (
	"context"

	domainchat "shopme/internal/domain/chat"
)

// Store is the conversation persistence contract. Any store observing
// these semantics is substitutable; mongo and memory adapters live under
// internal/infra.
type Store interface {
	// FindByParticipants resolves the unordered pair's conversation or
	// returns domain chat.ErrNotFound.
	FindByParticipants(ctx context.Context, a, b string) (*domainchat.Conversation, error)

	// CreateConversation creates the pair's conversation. Stores must keep
	// at most one conversation per pair; a concurrent create returns the
	// surviving record.
	CreateConversation(ctx context.Context, a, b string) (*domainchat.Conversation, error)

	// AppendMessage durably appends msg to the conversation's history.
	AppendMessage(ctx context.Context, conversationID string, msg *domainchat.Message) error

	// ListMessages returns the history in insertion order.
	ListMessages(ctx context.Context, conversationID string) ([]domainchat.Message, error)

	// UpdateStatus advances one message, observing the monotonic
	// sent -> delivered -> read order. It reports false without error when
	// the message already sits at or past the requested stage.
	UpdateStatus(ctx context.Context, messageID string, status domainchat.Status) (bool, error)

	// MarkConversationRead advances every delivered message addressed to
	// receiverID inside the conversation to read, returning the count.
	MarkConversationRead(ctx context.Context, conversationID, receiverID string) (int64, error)
}
