package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Conversation is the durable pairing of two participants. At most one
// conversation exists per unordered pair; PairKey is the lookup key.
type Conversation struct {
	ID            string
	PairKey       string
	Participants  [2]string
	CreatedAt     time.Time
	LastMessageAt time.Time
}

// NewConversation creates a conversation between two participants.
func NewConversation(a, b string) (*Conversation, error) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return nil, ErrParticipantsRequired
	}
	if a == b {
		return nil, ErrSelfConversation
	}
	if a > b {
		a, b = b, a
	}
	return &Conversation{
		ID:           uuid.NewString(),
		PairKey:      PairKey(a, b),
		Participants: [2]string{a, b},
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// PairKey returns the stable key for an unordered participant pair.
func PairKey(a, b string) string {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// Has reports whether userID participates in the conversation.
func (c *Conversation) Has(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// Peer returns the other participant for userID, or "" when userID is
// not a participant.
func (c *Conversation) Peer(userID string) string {
	switch userID {
	case c.Participants[0]:
		return c.Participants[1]
	case c.Participants[1]:
		return c.Participants[0]
	}
	return ""
}
