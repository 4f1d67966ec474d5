package presence

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Wire event names carried over a realtime connection.
const (
	EventPresenceChanged = "presence-changed"
	EventNewMessage      = "new-message"
	EventMessageRead     = "message-read"
	EventReadReceipt     = "read-receipt"
)

// Event is a single frame pushed over a realtime connection.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Conn is a live connection handle held by the registry.
type Conn interface {
	ID() string
	Send(Event) error
	Close() error
}

// FlagStore mirrors the online flag into durable user storage. The mirror
// is advisory: registry state stays authoritative for delivery decisions.
type FlagStore interface {
	SetOnlineFlag(ctx context.Context, userID string, online bool, at time.Time) error
}

const flagTimeout = 2 * time.Second

// Registry is the authoritative in-memory map of user -> live connections.
// A user is online iff it holds at least one connection. One registry is
// constructed per process and shared by the transport and the delivery
// engine; it is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]map[string]Conn
	lastSeen map[string]time.Time

	// OnChange is invoked with a sorted online snapshot after every
	// membership change. Set once during wiring, before connections
	// arrive; called outside the registry lock.
	OnChange func(online []string)

	Flags  FlagStore
	Logger *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[string]map[string]Conn),
		lastSeen: make(map[string]time.Time),
	}
}

// Register tracks conn under userID. A connection without an identity is
// never tracked; registering the same handle twice is a no-op.
func (r *Registry) Register(userID string, conn Conn) {
	userID = strings.TrimSpace(userID)
	if userID == "" || conn == nil {
		return
	}

	r.mu.Lock()
	handles, ok := r.conns[userID]
	if !ok {
		handles = make(map[string]Conn)
		r.conns[userID] = handles
	}
	if _, dup := handles[conn.ID()]; dup {
		r.mu.Unlock()
		return
	}
	handles[conn.ID()] = conn
	wasOffline := len(handles) == 1
	online := r.onlineLocked()
	r.mu.Unlock()

	if wasOffline {
		r.mirrorFlag(userID, true, time.Now().UTC())
	}
	r.notify(online)
}

// Unregister drops the handle. When it was the user's last connection the
// user goes offline: last-seen is recorded and the durable flag mirrored
// best-effort. Unknown handles are ignored.
func (r *Registry) Unregister(conn Conn) {
	if conn == nil {
		return
	}
	id := conn.ID()

	r.mu.Lock()
	var owner string
	for userID, handles := range r.conns {
		if _, ok := handles[id]; ok {
			owner = userID
			delete(handles, id)
			if len(handles) == 0 {
				delete(r.conns, userID)
			}
			break
		}
	}
	if owner == "" {
		r.mu.Unlock()
		return
	}
	_, stillOnline := r.conns[owner]
	now := time.Now().UTC()
	if !stillOnline {
		r.lastSeen[owner] = now
	}
	online := r.onlineLocked()
	r.mu.Unlock()

	if !stillOnline {
		r.mirrorFlag(owner, false, now)
	}
	r.notify(online)
}

// IsOnline reports whether userID holds at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

// ConnFor returns a live connection for userID, used to target in-band
// delivery.
func (r *Registry) ConnFor(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conn := range r.conns[userID] {
		return conn, true
	}
	return nil, false
}

// Online returns the sorted set of online user ids.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onlineLocked()
}

// LastSeen returns the recorded time the user last went offline.
func (r *Registry) LastSeen(userID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.lastSeen[userID]
	return t, ok
}

func (r *Registry) onlineLocked() []string {
	online := make([]string, 0, len(r.conns))
	for userID := range r.conns {
		online = append(online, userID)
	}
	sort.Strings(online)
	return online
}

// mirrorFlag updates the durable online flag. Failure must not prevent
// connect/disconnect bookkeeping, so errors are only logged.
func (r *Registry) mirrorFlag(userID string, online bool, at time.Time) {
	if r.Flags == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
	defer cancel()
	if err := r.Flags.SetOnlineFlag(ctx, userID, online, at); err != nil && r.Logger != nil {
		r.Logger.Warn("online flag mirror failed", "user_id", userID, "online", online, "error", err)
	}
}

func (r *Registry) notify(online []string) {
	if r.OnChange != nil {
		r.OnChange(online)
	}
}
