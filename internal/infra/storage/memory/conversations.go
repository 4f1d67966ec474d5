package memory

import (
	"context"
	"sync"

	appchat "shopme/internal/app/chat"
	domainchat "shopme/internal/domain/chat"
)

var _ appchat.Store = (*ConversationStore)(nil)

// ConversationStore keeps conversations and messages in memory. Used for
// local runs and tests; not suitable for production.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*domainchat.Conversation
	byPair        map[string]string
	messages      map[string]*domainchat.Message
	order         map[string][]string
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[string]*domainchat.Conversation),
		byPair:        make(map[string]string),
		messages:      make(map[string]*domainchat.Message),
		order:         make(map[string][]string),
	}
}

func (s *ConversationStore) FindByParticipants(ctx context.Context, a, b string) (*domainchat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[domainchat.PairKey(a, b)]
	if !ok {
		return nil, domainchat.ErrNotFound
	}
	return cloneConversation(s.conversations[id]), nil
}

func (s *ConversationStore) CreateConversation(ctx context.Context, a, b string) (*domainchat.Conversation, error) {
	conv, err := domainchat.NewConversation(a, b)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byPair[conv.PairKey]; ok {
		return cloneConversation(s.conversations[existing]), nil
	}
	s.conversations[conv.ID] = conv
	s.byPair[conv.PairKey] = conv.ID
	return cloneConversation(conv), nil
}

func (s *ConversationStore) AppendMessage(ctx context.Context, conversationID string, msg *domainchat.Message) error {
	if msg == nil {
		return domainchat.ErrBodyRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return domainchat.ErrNotFound
	}
	stored := *msg
	stored.ConversationID = conversationID
	s.messages[stored.ID] = &stored
	s.order[conversationID] = append(s.order[conversationID], stored.ID)
	conv.LastMessageAt = stored.CreatedAt
	return nil
}

func (s *ConversationStore) ListMessages(ctx context.Context, conversationID string) ([]domainchat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, domainchat.ErrNotFound
	}
	ids := s.order[conversationID]
	out := make([]domainchat.Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := s.messages[id]; ok {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (s *ConversationStore) UpdateStatus(ctx context.Context, messageID string, status domainchat.Status) (bool, error) {
	if !status.Valid() {
		return false, domainchat.ErrStatusRegression
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return false, domainchat.ErrNotFound
	}
	if !msg.Status.CanAdvance(status) {
		return false, nil
	}
	msg.Status = status
	return true, nil
}

func (s *ConversationStore) MarkConversationRead(ctx context.Context, conversationID, receiverID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return 0, domainchat.ErrNotFound
	}
	var count int64
	for _, id := range s.order[conversationID] {
		msg, ok := s.messages[id]
		if !ok || msg.ReceiverID != receiverID {
			continue
		}
		if msg.Status == domainchat.StatusDelivered {
			msg.Status = domainchat.StatusRead
			count++
		}
	}
	return count, nil
}

func cloneConversation(conv *domainchat.Conversation) *domainchat.Conversation {
	if conv == nil {
		return nil
	}
	clone := *conv
	return &clone
}
