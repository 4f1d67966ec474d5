package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	domainchat "shopme/internal/domain/chat"
)

func TestCreateConversationKeepsSinglePerPair(t *testing.T) {
	t.Parallel()

	store := NewConversationStore()
	ctx := context.Background()

	first, err := store.CreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	second, err := store.CreateConversation(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	found, err := store.FindByParticipants(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Equal(t, first.ID, found.ID)
}

func TestFindByParticipantsNotFound(t *testing.T) {
	t.Parallel()

	store := NewConversationStore()
	_, err := store.FindByParticipants(context.Background(), "alice", "bob")
	require.ErrorIs(t, err, domainchat.ErrNotFound)
}

func TestAppendAndListPreservesOrder(t *testing.T) {
	t.Parallel()

	store := NewConversationStore()
	ctx := context.Background()
	conv, err := store.CreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)

	bodies := []string{"one", "two", "three"}
	for _, body := range bodies {
		msg, err := domainchat.NewMessage("alice", "bob", body)
		require.NoError(t, err)
		require.NoError(t, store.AppendMessage(ctx, conv.ID, msg))
	}

	msgs, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, len(bodies))
	for i, body := range bodies {
		require.Equal(t, body, msgs[i].Body)
	}
}

func TestAppendToUnknownConversation(t *testing.T) {
	t.Parallel()

	store := NewConversationStore()
	msg, err := domainchat.NewMessage("alice", "bob", "hi")
	require.NoError(t, err)
	require.ErrorIs(t, store.AppendMessage(context.Background(), "missing", msg), domainchat.ErrNotFound)
}

func TestUpdateStatusGuardsRegression(t *testing.T) {
	t.Parallel()

	store := NewConversationStore()
	ctx := context.Background()
	conv, err := store.CreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	msg, err := domainchat.NewMessage("alice", "bob", "hi")
	require.NoError(t, err)
	require.NoError(t, store.AppendMessage(ctx, conv.ID, msg))

	changed, err := store.UpdateStatus(ctx, msg.ID, domainchat.StatusDelivered)
	require.NoError(t, err)
	require.True(t, changed)

	// Repeats and regressions report no change rather than failing.
	changed, err = store.UpdateStatus(ctx, msg.ID, domainchat.StatusDelivered)
	require.NoError(t, err)
	require.False(t, changed)
	changed, err = store.UpdateStatus(ctx, msg.ID, domainchat.StatusSent)
	require.NoError(t, err)
	require.False(t, changed)

	changed, err = store.UpdateStatus(ctx, msg.ID, domainchat.StatusRead)
	require.NoError(t, err)
	require.True(t, changed)

	_, err = store.UpdateStatus(ctx, "missing", domainchat.StatusRead)
	require.ErrorIs(t, err, domainchat.ErrNotFound)
}

func TestMarkConversationReadScopesToReceiver(t *testing.T) {
	t.Parallel()

	store := NewConversationStore()
	ctx := context.Background()
	conv, err := store.CreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)

	toBob, err := domainchat.NewMessage("alice", "bob", "for bob")
	require.NoError(t, err)
	require.NoError(t, store.AppendMessage(ctx, conv.ID, toBob))
	_, err = store.UpdateStatus(ctx, toBob.ID, domainchat.StatusDelivered)
	require.NoError(t, err)

	toAlice, err := domainchat.NewMessage("bob", "alice", "for alice")
	require.NoError(t, err)
	require.NoError(t, store.AppendMessage(ctx, conv.ID, toAlice))
	_, err = store.UpdateStatus(ctx, toAlice.ID, domainchat.StatusDelivered)
	require.NoError(t, err)

	count, err := store.MarkConversationRead(ctx, conv.ID, "bob")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	msgs, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, domainchat.StatusRead, msgs[0].Status)
	require.Equal(t, domainchat.StatusDelivered, msgs[1].Status)

	// Idempotent on repeat.
	count, err = store.MarkConversationRead(ctx, conv.ID, "bob")
	require.NoError(t, err)
	require.Zero(t, count)
}
