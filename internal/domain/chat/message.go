package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBodyRequired         = errors.New("chat: message body is required")
	ErrParticipantsRequired = errors.New("chat: sender and receiver are required")
	ErrSelfConversation     = errors.New("chat: cannot message yourself")
	ErrNotFound             = errors.New("chat: not found")
	ErrStatusRegression     = errors.New("chat: status cannot move backwards")
)

// Status is the per-message delivery lifecycle stage.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

var statusRank = map[Status]int{
	StatusSent:      0,
	StatusDelivered: 1,
	StatusRead:      2,
}

// Valid reports whether s is a known lifecycle stage.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanAdvance reports whether moving from s to next respects the
// sent -> delivered -> read order. Equal stages are not an advance.
func (s Status) CanAdvance(next Status) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Message is a single chat message between two users.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Body           string
	Status         Status
	CreatedAt      time.Time
}

// NewMessage builds a message in the initial "sent" stage.
func NewMessage(senderID, receiverID, body string) (*Message, error) {
	senderID = strings.TrimSpace(senderID)
	receiverID = strings.TrimSpace(receiverID)
	if senderID == "" || receiverID == "" {
		return nil, ErrParticipantsRequired
	}
	if senderID == receiverID {
		return nil, ErrSelfConversation
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrBodyRequired
	}
	return &Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		Status:     StatusSent,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Advance moves the message to next, rejecting regressions and repeats.
func (m *Message) Advance(next Status) error {
	if !m.Status.CanAdvance(next) {
		return ErrStatusRegression
	}
	m.Status = next
	return nil
}
