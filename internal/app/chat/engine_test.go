package chat_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	appchat "shopme/internal/app/chat"
	"shopme/internal/app/presence"
	domainchat "shopme/internal/domain/chat"
	domainuser "shopme/internal/domain/user"
	"shopme/internal/infra/storage/memory"
)

type stubConn struct {
	id     string
	events []presence.Event
	err    error
}

func (c *stubConn) ID() string { return c.id }
func (c *stubConn) Send(ev presence.Event) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, ev)
	return nil
}
func (c *stubConn) Close() error { return nil }

type dispatchCall struct {
	token string
	note  appchat.Notification
}

type stubDispatcher struct {
	calls []dispatchCall
	err   error
}

func (d *stubDispatcher) Send(_ context.Context, token string, n appchat.Notification) (appchat.Receipt, error) {
	d.calls = append(d.calls, dispatchCall{token: token, note: n})
	if d.err != nil {
		return appchat.Receipt{}, d.err
	}
	return appchat.Receipt{StatusCode: 200}, nil
}

func newEngine(t *testing.T) (*appchat.Engine, *memory.UserStore, *presence.Registry) {
	t.Helper()
	users := memory.NewUserStore()
	registry := presence.NewRegistry()
	engine := &appchat.Engine{
		Store:    memory.NewConversationStore(),
		Users:    users,
		Presence: registry,
	}
	return engine, users, registry
}

func TestSendReusesConversationForPair(t *testing.T) {
	t.Parallel()

	engine, _, _ := newEngine(t)
	ctx := context.Background()

	_, conv1, err := engine.Send(ctx, "alice", "bob", "hello")
	require.NoError(t, err)
	_, conv2, err := engine.Send(ctx, "alice", "bob", "again")
	require.NoError(t, err)
	_, conv3, err := engine.Send(ctx, "bob", "alice", "reply")
	require.NoError(t, err)

	require.Equal(t, conv1.ID, conv2.ID)
	require.Equal(t, conv1.ID, conv3.ID)
}

func TestSendRoundTripsThroughHistory(t *testing.T) {
	t.Parallel()

	engine, _, _ := newEngine(t)
	ctx := context.Background()

	sent, _, err := engine.Send(ctx, "alice", "bob", "hello")
	require.NoError(t, err)

	history, err := engine.FetchHistory(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, sent.ID, history[0].ID)
	require.Equal(t, sent.Body, history[0].Body)
	require.Equal(t, sent.SenderID, history[0].SenderID)
	require.Equal(t, sent.ReceiverID, history[0].ReceiverID)
	require.Equal(t, sent.CreatedAt, history[0].CreatedAt)
}

func TestSendDeliversInBandToOnlineReceiver(t *testing.T) {
	t.Parallel()

	engine, _, registry := newEngine(t)
	conn := &stubConn{id: "c1"}
	registry.Register("bob", conn)

	msg, _, err := engine.Send(context.Background(), "alice", "bob", "hello")
	require.NoError(t, err)
	require.Equal(t, domainchat.StatusDelivered, msg.Status)

	require.Len(t, conn.events, 1)
	require.Equal(t, presence.EventNewMessage, conn.events[0].Name)
	payload, ok := conn.events[0].Data.(appchat.MessagePayload)
	require.True(t, ok)
	require.Equal(t, msg.ID, payload.ID)
	require.Equal(t, "hello", payload.Body)

	history, err := engine.FetchHistory(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, domainchat.StatusDelivered, history[0].Status)
}

func TestSendFallsBackToPushWhenOffline(t *testing.T) {
	t.Parallel()

	engine, users, _ := newEngine(t)
	dispatcher := &stubDispatcher{}
	engine.Push = dispatcher
	users.Seed(domainuser.User{ID: "alice", DisplayName: "Alice"})
	users.Seed(domainuser.User{ID: "carol", PushTokens: []string{"stale-token", "fresh-token"}})

	msg, conv, err := engine.Send(context.Background(), "alice", "carol", "hi")
	require.NoError(t, err)
	require.Equal(t, domainchat.StatusDelivered, msg.Status)

	require.Len(t, dispatcher.calls, 1)
	call := dispatcher.calls[0]
	require.Equal(t, "fresh-token", call.token)
	require.Equal(t, "Alice", call.note.Title)
	require.Equal(t, "hi", call.note.Body)
	require.Equal(t, msg.ID, call.note.Data["messageId"])
	require.Equal(t, conv.ID, call.note.Data["conversationId"])
}

func TestSendStaysSentWhenPushFails(t *testing.T) {
	t.Parallel()

	engine, users, _ := newEngine(t)
	engine.Push = &stubDispatcher{err: errors.New("gateway timeout")}
	users.Seed(domainuser.User{ID: "carol", PushTokens: []string{"token"}})

	msg, _, err := engine.Send(context.Background(), "alice", "carol", "hi")
	require.NoError(t, err)
	require.Equal(t, domainchat.StatusSent, msg.Status)

	history, err := engine.FetchHistory(context.Background(), "alice", "carol")
	require.NoError(t, err)
	require.Equal(t, domainchat.StatusSent, history[0].Status)
}

func TestSendStaysSentWithoutPushTarget(t *testing.T) {
	t.Parallel()

	engine, users, _ := newEngine(t)
	dispatcher := &stubDispatcher{}
	engine.Push = dispatcher
	users.Seed(domainuser.User{ID: "carol"})

	msg, _, err := engine.Send(context.Background(), "alice", "carol", "hi")
	require.NoError(t, err)
	require.Equal(t, domainchat.StatusSent, msg.Status)
	require.Empty(t, dispatcher.calls)
}

func TestSendFallsBackToPushOnTransportError(t *testing.T) {
	t.Parallel()

	engine, users, registry := newEngine(t)
	dispatcher := &stubDispatcher{}
	engine.Push = dispatcher
	users.Seed(domainuser.User{ID: "bob", PushTokens: []string{"token"}})
	registry.Register("bob", &stubConn{id: "c1", err: errors.New("send buffer full")})

	msg, _, err := engine.Send(context.Background(), "alice", "bob", "hi")
	require.NoError(t, err)
	require.Equal(t, domainchat.StatusDelivered, msg.Status)
	require.Len(t, dispatcher.calls, 1)
}

func TestPushPreviewIsTruncated(t *testing.T) {
	t.Parallel()

	engine, users, _ := newEngine(t)
	dispatcher := &stubDispatcher{}
	engine.Push = dispatcher
	users.Seed(domainuser.User{ID: "carol", PushTokens: []string{"token"}})

	long := strings.Repeat("a", 500)
	_, _, err := engine.Send(context.Background(), "alice", "carol", long)
	require.NoError(t, err)

	require.Len(t, dispatcher.calls, 1)
	preview := dispatcher.calls[0].note.Body
	require.Less(t, len([]rune(preview)), 130)
	require.True(t, strings.HasSuffix(preview, "…"))
}

func TestFetchHistoryEmptyWithoutConversation(t *testing.T) {
	t.Parallel()

	engine, _, _ := newEngine(t)
	history, err := engine.FetchHistory(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestFetchHistoryMarksDeliveredAsRead(t *testing.T) {
	t.Parallel()

	engine, _, registry := newEngine(t)
	conn := &stubConn{id: "c1"}
	registry.Register("bob", conn)
	ctx := context.Background()

	for _, body := range []string{"one", "two", "three"} {
		msg, _, err := engine.Send(ctx, "alice", "bob", body)
		require.NoError(t, err)
		require.Equal(t, domainchat.StatusDelivered, msg.Status)
	}

	history, err := engine.FetchHistory(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for _, msg := range history {
		require.Equal(t, domainchat.StatusRead, msg.Status)
	}

	// Repeat fetch is idempotent.
	history, err = engine.FetchHistory(ctx, "bob", "alice")
	require.NoError(t, err)
	for _, msg := range history {
		require.Equal(t, domainchat.StatusRead, msg.Status)
	}
}

func TestFetchHistoryDoesNotReadSendersOwnMessages(t *testing.T) {
	t.Parallel()

	engine, _, registry := newEngine(t)
	registry.Register("bob", &stubConn{id: "c1"})
	ctx := context.Background()

	_, _, err := engine.Send(ctx, "alice", "bob", "hello")
	require.NoError(t, err)

	// The sender fetching history must not mark its own outbound
	// message as read; only the receiver's fetch does that.
	history, err := engine.FetchHistory(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, domainchat.StatusDelivered, history[0].Status)

	history, err = engine.FetchHistory(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Equal(t, domainchat.StatusRead, history[0].Status)
}

func TestMarkRead(t *testing.T) {
	t.Parallel()

	engine, _, registry := newEngine(t)
	registry.Register("bob", &stubConn{id: "c1"})
	ctx := context.Background()

	msg, conv, err := engine.Send(ctx, "alice", "bob", "hello")
	require.NoError(t, err)

	changed, err := engine.MarkRead(ctx, conv.ID, msg.ID, "bob")
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = engine.MarkRead(ctx, conv.ID, msg.ID, "bob")
	require.NoError(t, err)
	require.False(t, changed)

	_, err = engine.MarkRead(ctx, conv.ID, "missing", "bob")
	require.Error(t, err)
}

func TestSendValidation(t *testing.T) {
	t.Parallel()

	engine, _, _ := newEngine(t)
	ctx := context.Background()

	_, _, err := engine.Send(ctx, "alice", "bob", "")
	require.ErrorIs(t, err, domainchat.ErrBodyRequired)

	_, _, err = engine.Send(ctx, "alice", "alice", "hi")
	require.ErrorIs(t, err, domainchat.ErrSelfConversation)

	_, _, err = engine.Send(ctx, "", "bob", "hi")
	require.ErrorIs(t, err, domainchat.ErrParticipantsRequired)
}
