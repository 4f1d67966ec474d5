package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	domainuser "shopme/internal/domain/user"
)

// PushTokenHandler registers a device's push target against a user
// profile. Token issuance belongs to the client platform; this endpoint
// only records the freshest one.
type PushTokenHandler struct {
	Users  domainuser.Store
	Logger *slog.Logger
}

type registerTokenRequest struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

func (h PushTokenHandler) Register(c *gin.Context) {
	var req registerTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.Token = strings.TrimSpace(req.Token)
	if req.UserID == "" || req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and token are required"})
		return
	}

	if err := h.Users.AppendPushToken(c.Request.Context(), req.UserID, req.Token); err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		if h.Logger != nil {
			h.Logger.Error("push token registration failed", "user_id", req.UserID, "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register token"})
		return
	}
	c.Status(http.StatusNoContent)
}

var _ PushTokenHTTP = (*PushTokenHandler)(nil)
