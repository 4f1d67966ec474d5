package user

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrIDRequired    = errors.New("user: id is required")
	ErrTokenRequired = errors.New("user: push token is required")
	ErrNotFound      = errors.New("user: not found")
)

// User is the profile slice the messaging core reads: display data for
// push previews, push targets for offline delivery and the advisory
// online flag mirrored by the presence registry.
type User struct {
	ID          string
	DisplayName string
	AvatarKey   string
	PushTokens  []string
	Online      bool
	LastSeenAt  time.Time
	CreatedAt   time.Time
}

// LatestPushToken returns the most recently registered push target.
// Tokens are kept oldest-first; registration moves a re-submitted token
// to the end, so the last element is always the freshest device.
func (u *User) LatestPushToken() (string, bool) {
	if u == nil || len(u.PushTokens) == 0 {
		return "", false
	}
	token := strings.TrimSpace(u.PushTokens[len(u.PushTokens)-1])
	return token, token != ""
}

// Store is the user-profile collaborator contract the core consumes.
type Store interface {
	ByID(ctx context.Context, id string) (*User, error)
	SetOnlineFlag(ctx context.Context, id string, online bool, at time.Time) error
	AppendPushToken(ctx context.Context, id, token string) error
}
