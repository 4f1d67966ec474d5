package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	domainuser "shopme/internal/domain/user"
)

// UserStore keeps user profiles in memory. Not suitable for production.
type UserStore struct {
	mu   sync.RWMutex
	byID map[string]*domainuser.User
}

func NewUserStore() *UserStore {
	return &UserStore{byID: make(map[string]*domainuser.User)}
}

// Seed inserts or replaces a profile, used by fixtures and tests.
func (s *UserStore) Seed(u domainuser.User) {
	if strings.TrimSpace(u.ID) == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := u
	stored.PushTokens = append([]string(nil), u.PushTokens...)
	s.byID[u.ID] = &stored
}

func (s *UserStore) ByID(ctx context.Context, id string) (*domainuser.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, domainuser.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *UserStore) SetOnlineFlag(ctx context.Context, id string, online bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return domainuser.ErrNotFound
	}
	u.Online = online
	if !online {
		u.LastSeenAt = at
	}
	return nil
}

// AppendPushToken records a push target as the user's freshest device.
// A token seen before is moved to the end instead of duplicated.
func (s *UserStore) AppendPushToken(ctx context.Context, id, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domainuser.ErrTokenRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return domainuser.ErrNotFound
	}
	tokens := u.PushTokens[:0]
	for _, t := range u.PushTokens {
		if t != token {
			tokens = append(tokens, t)
		}
	}
	u.PushTokens = append(tokens, token)
	return nil
}

func cloneUser(u *domainuser.User) *domainuser.User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.PushTokens = append([]string(nil), u.PushTokens...)
	return &clone
}

var _ domainuser.Store = (*UserStore)(nil)
