package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"shopme/internal/app/presence"
	domainchat "shopme/internal/domain/chat"
	domainuser "shopme/internal/domain/user"
)

const (
	defaultPushTimeout = 3 * time.Second
	previewRuneLimit   = 120
)

// Engine accepts outbound messages, persists them, delivers them in-band
// or over push, and advances delivery status. Persistence failures fail
// the call; everything past the durable write is best-effort.
type Engine struct {
	Store    Store
	Users    domainuser.Store
	Presence *presence.Registry
	Push     Dispatcher
	Avatars  AvatarResolver
	Events   EventPublisher
	Logger   *slog.Logger

	// PushTimeout bounds a single dispatch attempt so delivery never
	// holds the send response open indefinitely.
	PushTimeout time.Duration
}

// MessagePayload is the new-message frame pushed over the realtime
// channel and echoed in HTTP responses.
type MessagePayload struct {
	ID             string            `json:"messageId"`
	ConversationID string            `json:"conversationId"`
	SenderID       string            `json:"senderId"`
	ReceiverID     string            `json:"receiverId"`
	Body           string            `json:"body"`
	Status         domainchat.Status `json:"status"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// NewMessagePayload maps a domain message onto its wire shape.
func NewMessagePayload(msg *domainchat.Message) MessagePayload {
	return MessagePayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		ReceiverID:     msg.ReceiverID,
		Body:           msg.Body,
		Status:         msg.Status,
		CreatedAt:      msg.CreatedAt,
	}
}

// Send persists an outbound message and attempts delivery.
//
// The conversation for the unordered {sender, receiver} pair is resolved
// or created, the message is appended at "sent", and only then is
// delivery attempted: in-band when the receiver holds a live connection,
// otherwise a push dispatch against the receiver's latest token. Either
// success advances the message to "delivered" before the call returns,
// so an online receiver is reflected in the response status. Delivery
// failures never fail the call.
func (e *Engine) Send(ctx context.Context, senderID, receiverID, body string) (*domainchat.Message, *domainchat.Conversation, error) {
	msg, err := domainchat.NewMessage(senderID, receiverID, body)
	if err != nil {
		return nil, nil, err
	}

	conv, err := e.Store.FindByParticipants(ctx, senderID, receiverID)
	if errors.Is(err, domainchat.ErrNotFound) {
		conv, err = e.Store.CreateConversation(ctx, senderID, receiverID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolve conversation: %w", err)
	}

	msg.ConversationID = conv.ID
	if err := e.Store.AppendMessage(ctx, conv.ID, msg); err != nil {
		return nil, nil, fmt.Errorf("append message: %w", err)
	}
	conv.LastMessageAt = msg.CreatedAt
	e.publish(ctx, messageEvent(EventMessageSent, msg))

	e.deliver(ctx, msg)
	return msg, conv, nil
}

// deliver pushes the message to the receiver and advances it to
// "delivered" when some channel accepted it. A realtime send failure is
// treated like an unreachable peer and falls through to push.
func (e *Engine) deliver(ctx context.Context, msg *domainchat.Message) {
	delivered := false
	if conn, ok := e.connFor(msg.ReceiverID); ok {
		err := conn.Send(presence.Event{Name: presence.EventNewMessage, Data: NewMessagePayload(msg)})
		if err == nil {
			delivered = true
		} else {
			e.logWarn("realtime delivery failed, trying push", "message_id", msg.ID, "receiver_id", msg.ReceiverID, "error", err)
		}
	}
	if !delivered {
		delivered = e.dispatchPush(ctx, msg)
	}
	if !delivered {
		return
	}

	changed, err := e.Store.UpdateStatus(ctx, msg.ID, domainchat.StatusDelivered)
	if err != nil {
		e.logWarn("status advance failed", "message_id", msg.ID, "status", domainchat.StatusDelivered, "error", err)
		return
	}
	if changed {
		msg.Status = domainchat.StatusDelivered
		e.publish(ctx, messageEvent(EventMessageDelivered, msg))
	}
}

// dispatchPush sends the offline fallback notification. It reports
// whether the dispatcher accepted the notification; a user without a
// push target simply stays at "sent".
func (e *Engine) dispatchPush(ctx context.Context, msg *domainchat.Message) bool {
	if e.Push == nil {
		return false
	}
	sender, err := e.lookupUser(ctx, msg.SenderID)
	if err != nil {
		e.logWarn("sender lookup for push preview failed", "sender_id", msg.SenderID, "error", err)
	}
	receiver, err := e.lookupUser(ctx, msg.ReceiverID)
	if err != nil {
		e.logWarn("receiver lookup for push failed", "receiver_id", msg.ReceiverID, "error", err)
		return false
	}
	token, ok := receiver.LatestPushToken()
	if !ok {
		return false
	}

	n := Notification{
		Title: "New message",
		Body:  truncatePreview(msg.Body),
		Data: map[string]string{
			"messageId":      msg.ID,
			"conversationId": msg.ConversationID,
		},
	}
	if sender != nil && sender.DisplayName != "" {
		n.Title = sender.DisplayName
	}
	if sender != nil && e.Avatars != nil {
		if url, ok := e.Avatars.AvatarURL(ctx, sender.AvatarKey); ok {
			n.Image = url
		}
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, e.pushTimeout())
	defer cancel()
	receipt, err := e.Push.Send(dispatchCtx, token, n)
	if err != nil {
		e.logWarn("push dispatch failed", "message_id", msg.ID, "receiver_id", msg.ReceiverID, "error", err)
		return false
	}
	e.logDebug("push dispatched", "message_id", msg.ID, "receiver_id", msg.ReceiverID, "status_code", receipt.StatusCode)
	return true
}

// FetchHistory returns the pair's messages in insertion order, first
// advancing the requester's delivered messages to read. The advancement
// is scoped to this conversation only. A pair without history yields an
// empty slice.
func (e *Engine) FetchHistory(ctx context.Context, requesterID, peerID string) ([]domainchat.Message, error) {
	conv, err := e.Store.FindByParticipants(ctx, requesterID, peerID)
	if errors.Is(err, domainchat.ErrNotFound) {
		return []domainchat.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve conversation: %w", err)
	}

	count, err := e.Store.MarkConversationRead(ctx, conv.ID, requesterID)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if count > 0 {
		e.publish(ctx, Event{
			Kind:           EventMessagesRead,
			ConversationID: conv.ID,
			ReceiverID:     requesterID,
			Count:          count,
			At:             time.Now().UTC(),
		})
	}

	msgs, err := e.Store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// MarkRead advances one message to read on behalf of readerID, driven by
// a read-receipt frame. It reports whether the status actually moved so
// the transport knows to rebroadcast.
func (e *Engine) MarkRead(ctx context.Context, conversationID, messageID, readerID string) (bool, error) {
	changed, err := e.Store.UpdateStatus(ctx, messageID, domainchat.StatusRead)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	if changed {
		e.publish(ctx, Event{
			Kind:           EventMessageRead,
			MessageID:      messageID,
			ConversationID: conversationID,
			ReceiverID:     readerID,
			Status:         domainchat.StatusRead,
			At:             time.Now().UTC(),
		})
	}
	return changed, nil
}

func (e *Engine) connFor(userID string) (presence.Conn, bool) {
	if e.Presence == nil {
		return nil, false
	}
	return e.Presence.ConnFor(userID)
}

func (e *Engine) lookupUser(ctx context.Context, id string) (*domainuser.User, error) {
	if e.Users == nil {
		return nil, domainuser.ErrNotFound
	}
	return e.Users.ByID(ctx, id)
}

func (e *Engine) pushTimeout() time.Duration {
	if e.PushTimeout > 0 {
		return e.PushTimeout
	}
	return defaultPushTimeout
}

func (e *Engine) publish(ctx context.Context, ev Event) {
	if e.Events == nil {
		return
	}
	if err := e.Events.Publish(ctx, ev); err != nil {
		e.logWarn("event publish failed", "kind", ev.Kind, "error", err)
	}
}

func (e *Engine) logWarn(msg string, args ...any) {
	if e.Logger != nil {
		e.Logger.Warn(msg, args...)
	}
}

func (e *Engine) logDebug(msg string, args ...any) {
	if e.Logger != nil {
		e.Logger.Debug(msg, args...)
	}
}

func truncatePreview(body string) string {
	runes := []rune(body)
	if len(runes) <= previewRuneLimit {
		return body
	}
	return string(runes[:previewRuneLimit]) + "…"
}
