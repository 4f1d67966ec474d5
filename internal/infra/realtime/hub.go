package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"shopme/internal/app/presence"
)

const receiptTimeout = 5 * time.Second

// ReadReceiptHandler advances a message to read on behalf of a reader.
type ReadReceiptHandler interface {
	MarkRead(ctx context.Context, conversationID, messageID, readerID string) (bool, error)
}

// Hub owns the realtime channel per connected client: it upgrades
// connections, registers identities with the presence registry, groups
// connections by conversation and routes inbound read receipts.
// Delivery over a connection is at-most-once; reconnecting clients
// catch up through message history, not replay.
type Hub struct {
	Registry *presence.Registry
	Receipts ReadReceiptHandler
	Logger   *slog.Logger

	upgrader websocket.Upgrader
	mu       sync.RWMutex
	clients  map[string]*client
	groups   map[string]map[string]*client
}

func NewHub(registry *presence.Registry, receipts ReadReceiptHandler, logger *slog.Logger) *Hub {
	return &Hub{
		Registry: registry,
		Receipts: receipts,
		Logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The storefront frontend is served from another origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
		groups:  make(map[string]map[string]*client),
	}
}

// Handle upgrades a websocket connection. The client supplies its user
// identity via the userId query parameter; without one the connection
// stays anonymous and is never tracked for presence. An optional
// conversationId joins the conversation's broadcast group.
func (h *Hub) Handle(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("userId"))
	conversationID := strings.TrimSpace(c.Query("conversationId"))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logWarn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	cl := &client{
		id:             uuid.NewString(),
		userID:         userID,
		conversationID: conversationID,
		conn:           conn,
		send:           make(chan presence.Event, sendBuffer),
		done:           make(chan struct{}),
	}
	h.add(cl)
	h.Registry.Register(userID, cl)

	go cl.writePump()
	go h.readPump(cl)
}

// BroadcastPresence pushes the current online set to every connection.
// Wired as the registry's OnChange hook.
func (h *Hub) BroadcastPresence(online []string) {
	ev := presence.Event{
		Name: presence.EventPresenceChanged,
		Data: presencePayload{OnlineUserIDs: online},
	}
	for _, cl := range h.snapshot() {
		if err := cl.Send(ev); err != nil {
			h.logDebug("presence broadcast skipped connection", "conn_id", cl.id, "error", err)
		}
	}
}

type presencePayload struct {
	OnlineUserIDs []string `json:"onlineUserIds"`
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type readReceiptFrame struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

type messageReadPayload struct {
	MessageID string `json:"messageId"`
}

// readPump consumes inbound frames until the connection dies for any
// reason; the deferred drop keeps presence cleanup on the abnormal
// paths too.
func (h *Hub) readPump(cl *client) {
	defer h.drop(cl)

	cl.conn.SetReadLimit(maxMessageSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame inboundFrame
		if err := cl.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logDebug("websocket closed unexpectedly", "conn_id", cl.id, "user_id", cl.userID, "error", err)
			}
			return
		}
		switch frame.Event {
		case presence.EventReadReceipt:
			h.handleReadReceipt(cl, frame.Data)
		default:
			h.logDebug("unknown realtime event", "event", frame.Event, "conn_id", cl.id)
		}
	}
}

func (h *Hub) handleReadReceipt(cl *client, raw json.RawMessage) {
	var receipt readReceiptFrame
	if err := json.Unmarshal(raw, &receipt); err != nil || receipt.MessageID == "" {
		h.logDebug("malformed read receipt", "conn_id", cl.id, "error", err)
		return
	}
	conversationID := receipt.ConversationID
	if conversationID == "" {
		conversationID = cl.conversationID
	}
	if h.Receipts == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), receiptTimeout)
	defer cancel()
	changed, err := h.Receipts.MarkRead(ctx, conversationID, receipt.MessageID, cl.userID)
	if err != nil {
		h.logWarn("read receipt failed", "message_id", receipt.MessageID, "reader_id", cl.userID, "error", err)
		return
	}
	if !changed {
		return
	}
	h.broadcastGroup(conversationID, cl.id, presence.Event{
		Name: presence.EventMessageRead,
		Data: messageReadPayload{MessageID: receipt.MessageID},
	})
}

func (h *Hub) add(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[cl.id] = cl
	if cl.conversationID == "" {
		return
	}
	group, ok := h.groups[cl.conversationID]
	if !ok {
		group = make(map[string]*client)
		h.groups[cl.conversationID] = group
	}
	group[cl.id] = cl
}

func (h *Hub) drop(cl *client) {
	h.Registry.Unregister(cl)

	h.mu.Lock()
	delete(h.clients, cl.id)
	if group, ok := h.groups[cl.conversationID]; ok {
		delete(group, cl.id)
		if len(group) == 0 {
			delete(h.groups, cl.conversationID)
		}
	}
	h.mu.Unlock()

	cl.Close()
}

func (h *Hub) snapshot() []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*client, 0, len(h.clients))
	for _, cl := range h.clients {
		out = append(out, cl)
	}
	return out
}

func (h *Hub) broadcastGroup(conversationID, excludeConnID string, ev presence.Event) {
	h.mu.RLock()
	members := make([]*client, 0, len(h.groups[conversationID]))
	for id, cl := range h.groups[conversationID] {
		if id != excludeConnID {
			members = append(members, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range members {
		if err := cl.Send(ev); err != nil {
			h.logDebug("group broadcast skipped connection", "conn_id", cl.id, "error", err)
		}
	}
}

func (h *Hub) logWarn(msg string, args ...any) {
	if h.Logger != nil {
		h.Logger.Warn(msg, args...)
	}
}

func (h *Hub) logDebug(msg string, args ...any) {
	if h.Logger != nil {
		h.Logger.Debug(msg, args...)
	}
}
