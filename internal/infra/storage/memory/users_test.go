package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domainuser "shopme/internal/domain/user"
)

func TestUserStoreByID(t *testing.T) {
	t.Parallel()

	store := NewUserStore()
	store.Seed(domainuser.User{ID: "alice", DisplayName: "Alice"})

	u, err := store.ByID(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", u.DisplayName)

	_, err = store.ByID(context.Background(), "ghost")
	require.ErrorIs(t, err, domainuser.ErrNotFound)
}

func TestAppendPushTokenMovesToEnd(t *testing.T) {
	t.Parallel()

	store := NewUserStore()
	store.Seed(domainuser.User{ID: "alice"})
	ctx := context.Background()

	require.NoError(t, store.AppendPushToken(ctx, "alice", "t1"))
	require.NoError(t, store.AppendPushToken(ctx, "alice", "t2"))
	require.NoError(t, store.AppendPushToken(ctx, "alice", "t1"))

	u, err := store.ByID(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"t2", "t1"}, u.PushTokens)

	token, ok := u.LatestPushToken()
	require.True(t, ok)
	require.Equal(t, "t1", token)

	require.ErrorIs(t, store.AppendPushToken(ctx, "alice", "  "), domainuser.ErrTokenRequired)
	require.ErrorIs(t, store.AppendPushToken(ctx, "ghost", "t3"), domainuser.ErrNotFound)
}

func TestSetOnlineFlag(t *testing.T) {
	t.Parallel()

	store := NewUserStore()
	store.Seed(domainuser.User{ID: "alice"})
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SetOnlineFlag(ctx, "alice", true, now))
	u, err := store.ByID(ctx, "alice")
	require.NoError(t, err)
	require.True(t, u.Online)
	require.True(t, u.LastSeenAt.IsZero())

	require.NoError(t, store.SetOnlineFlag(ctx, "alice", false, now))
	u, err = store.ByID(ctx, "alice")
	require.NoError(t, err)
	require.False(t, u.Online)
	require.Equal(t, now, u.LastSeenAt)

	require.ErrorIs(t, store.SetOnlineFlag(ctx, "ghost", true, now), domainuser.ErrNotFound)
}
