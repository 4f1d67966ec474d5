package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	appchat "shopme/internal/app/chat"
	domainchat "shopme/internal/domain/chat"
)

// MessageHandler exposes the send and history endpoints over the
// delivery engine.
type MessageHandler struct {
	Engine *appchat.Engine
	Logger *slog.Logger
}

type sendMessageRequest struct {
	Message  string `json:"message"`
	SenderID string `json:"senderId"`
}

// Send accepts an outbound message for the receiver in the path. The
// response is written once the message is durably stored; its status
// reflects any delivery advancement that completed in-line.
func (h MessageHandler) Send(c *gin.Context) {
	receiverID := strings.TrimSpace(c.Param("receiverId"))
	if receiverID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receiver id is required"})
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	msg, conv, err := h.Engine.Send(c.Request.Context(), req.SenderID, receiverID, req.Message)
	if err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logError("send message failed", err, "sender_id", req.SenderID, "receiver_id", receiverID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send message"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"newMessage":   appchat.NewMessagePayload(msg),
		"conversation": gin.H{"id": conv.ID},
	})
}

// History returns the requester's conversation with the peer in the
// path, oldest first. Fetching marks the requester's delivered messages
// in that conversation as read.
func (h MessageHandler) History(c *gin.Context) {
	peerID := strings.TrimSpace(c.Param("receiverId"))
	requesterID := strings.TrimSpace(c.Query("senderId"))
	if peerID == "" || requesterID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receiver id and senderId are required"})
		return
	}

	msgs, err := h.Engine.FetchHistory(c.Request.Context(), requesterID, peerID)
	if err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logError("fetch history failed", err, "requester_id", requesterID, "peer_id", peerID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load messages"})
		return
	}

	payload := make([]appchat.MessagePayload, 0, len(msgs))
	for i := range msgs {
		payload = append(payload, appchat.NewMessagePayload(&msgs[i]))
	}
	c.JSON(http.StatusOK, payload)
}

func isValidationError(err error) bool {
	return errors.Is(err, domainchat.ErrBodyRequired) ||
		errors.Is(err, domainchat.ErrParticipantsRequired) ||
		errors.Is(err, domainchat.ErrSelfConversation)
}

func (h MessageHandler) logError(msg string, err error, attrs ...any) {
	if h.Logger != nil {
		h.Logger.Error(msg, append([]any{"error", err}, attrs...)...)
	}
}

var _ MessageHTTP = (*MessageHandler)(nil)
