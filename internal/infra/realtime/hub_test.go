package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"shopme/internal/app/presence"
)

type stubReceipts struct {
	calls   []string
	changed bool
	err     error
}

func (s *stubReceipts) MarkRead(_ context.Context, conversationID, messageID, readerID string) (bool, error) {
	s.calls = append(s.calls, conversationID+"/"+messageID+"/"+readerID)
	return s.changed, s.err
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func bootstrapHub(t *testing.T, receipts ReadReceiptHandler) (*httptest.Server, *presence.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	registry := presence.NewRegistry()
	hub := NewHub(registry, receipts, nil)
	registry.OnChange = hub.BroadcastPresence

	router := gin.New()
	router.GET("/ws", hub.Handle)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, registry
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func readPresence(t *testing.T, conn *websocket.Conn) []string {
	t.Helper()
	f := readFrame(t, conn)
	require.Equal(t, presence.EventPresenceChanged, f.Event)
	var payload struct {
		OnlineUserIDs []string `json:"onlineUserIds"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	return payload.OnlineUserIDs
}

func TestConnectRegistersPresence(t *testing.T) {
	server, registry := bootstrapHub(t, &stubReceipts{})

	alice := dial(t, server, "?userId=alice")
	require.Equal(t, []string{"alice"}, readPresence(t, alice))
	require.True(t, registry.IsOnline("alice"))

	bob := dial(t, server, "?userId=bob")
	require.Equal(t, []string{"alice", "bob"}, readPresence(t, alice))
	require.Equal(t, []string{"alice", "bob"}, readPresence(t, bob))
}

func TestDisconnectBroadcastsUpdatedSet(t *testing.T) {
	server, registry := bootstrapHub(t, &stubReceipts{})

	alice := dial(t, server, "?userId=alice")
	require.Equal(t, []string{"alice"}, readPresence(t, alice))

	bob := dial(t, server, "?userId=bob")
	require.Equal(t, []string{"alice", "bob"}, readPresence(t, alice))

	require.NoError(t, bob.Close())
	require.Equal(t, []string{"alice"}, readPresence(t, alice))
	require.Eventually(t, func() bool { return !registry.IsOnline("bob") }, time.Second, 10*time.Millisecond)
}

func TestAnonymousConnectionIsNotTracked(t *testing.T) {
	server, registry := bootstrapHub(t, &stubReceipts{})

	alice := dial(t, server, "?userId=alice")
	require.Equal(t, []string{"alice"}, readPresence(t, alice))

	dial(t, server, "")
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, []string{"alice"}, registry.Online())

	// No presence change may arrive for the anonymous peer.
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var f frame
	require.Error(t, alice.ReadJSON(&f))
}

func TestReadReceiptRebroadcastsToGroup(t *testing.T) {
	receipts := &stubReceipts{changed: true}
	server, _ := bootstrapHub(t, receipts)

	alice := dial(t, server, "?userId=alice&conversationId=conv-1")
	require.Equal(t, []string{"alice"}, readPresence(t, alice))
	bob := dial(t, server, "?userId=bob&conversationId=conv-1")
	require.Equal(t, []string{"alice", "bob"}, readPresence(t, alice))
	require.Equal(t, []string{"alice", "bob"}, readPresence(t, bob))

	receipt := map[string]any{
		"event": presence.EventReadReceipt,
		"data":  map[string]string{"messageId": "m1", "conversationId": "conv-1"},
	}
	require.NoError(t, bob.WriteJSON(receipt))

	f := readFrame(t, alice)
	require.Equal(t, presence.EventMessageRead, f.Event)
	var payload struct {
		MessageID string `json:"messageId"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	require.Equal(t, "m1", payload.MessageID)

	require.Eventually(t, func() bool {
		return len(receipts.calls) == 1 && receipts.calls[0] == "conv-1/m1/bob"
	}, time.Second, 10*time.Millisecond)
}

func TestUnchangedReceiptIsNotRebroadcast(t *testing.T) {
	receipts := &stubReceipts{changed: false}
	server, _ := bootstrapHub(t, receipts)

	alice := dial(t, server, "?userId=alice&conversationId=conv-1")
	require.Equal(t, []string{"alice"}, readPresence(t, alice))
	bob := dial(t, server, "?userId=bob&conversationId=conv-1")
	require.Equal(t, []string{"alice", "bob"}, readPresence(t, alice))
	require.Equal(t, []string{"alice", "bob"}, readPresence(t, bob))

	receipt := map[string]any{
		"event": presence.EventReadReceipt,
		"data":  map[string]string{"messageId": "m1", "conversationId": "conv-1"},
	}
	require.NoError(t, bob.WriteJSON(receipt))

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var f frame
	require.Error(t, alice.ReadJSON(&f))
}
