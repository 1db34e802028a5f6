package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/duochat/server/cache"
	"go.uber.org/zap"
)

const (
	// PresenceKey is the cache set of usernames with a live connection.
	PresenceKey = "presence:online"
	// lastSeenPrefix keys the per-user disconnect timestamp (unix millis).
	lastSeenPrefix = "presence:lastseen:"
)

// Manager maintains the registry of all connected Sessions, keyed by
// username. A second connection for the same username displaces the first:
// the old session is closed and the new one takes the binding.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cache    cache.Cache
	logger   *zap.Logger
}

// NewManager creates a Manager. The cache carries the online-presence set
// and last-seen stamps as best-effort side state.
func NewManager(c cache.Cache, logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		cache:    c,
		logger:   logger,
	}
}

// Register binds a session to its username. An existing session for the
// same username is closed first (duplicate login / reconnect).
func (m *Manager) Register(s *Session) {
	m.mu.Lock()
	if old, ok := m.sessions[s.Username]; ok {
		old.Close()
		m.logger.Info("duplicate session displaced",
			zap.String("username", s.Username))
	}
	m.sessions[s.Username] = s
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = m.cache.SAdd(ctx, PresenceKey, s.Username)
	_ = m.cache.Del(ctx, lastSeenPrefix+s.Username)
	m.logger.Info("session registered", zap.String("username", s.Username))
}

// Unregister removes the binding for the given session. It is a no-op when
// the username is absent or already bound to a newer session.
func (m *Manager) Unregister(s *Session) {
	m.mu.Lock()
	cur, ok := m.sessions[s.Username]
	if ok && cur == s {
		delete(m.sessions, s.Username)
	} else {
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = m.cache.SRem(ctx, PresenceKey, s.Username)
	_ = m.cache.Set(ctx, lastSeenPrefix+s.Username,
		strconv.FormatInt(time.Now().UnixMilli(), 10), 0)
	m.logger.Info("session unregistered", zap.String("username", s.Username))
}

// Get returns the session for a username, or nil.
func (m *Manager) Get(username string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[username]
}

// IsOnline reports whether a username has a live connection.
func (m *Manager) IsOnline(username string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[username]
	return ok
}

// LastSeen returns the user's disconnect timestamp, or the zero time if
// the user is online or has never connected.
func (m *Manager) LastSeen(ctx context.Context, username string) time.Time {
	v, err := m.cache.Get(ctx, lastSeenPrefix+username)
	if err != nil {
		return time.Time{}
	}
	millis, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(millis)
}

// Count returns the number of currently connected sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Usernames returns a snapshot of the currently connected usernames.
func (m *Manager) Usernames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		out = append(out, name)
	}
	return out
}

// BroadcastAll sends a raw pre-encoded packet to every connected session.
// The session map is snapshotted under the read lock and delivery happens
// lock-free with non-blocking sends, so a slow or dying connection only
// loses its own copy.
func (m *Manager) BroadcastAll(data []byte) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.SendRaw(data)
	}
}

// CloseAll gracefully closes every connected session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	m.logger.Info("closing all sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.Close()
	}
}

// SyncPresence reconciles the cache presence set with the live session
// map. Run periodically; guards against drift after crashes or dropped
// cache writes.
func (m *Manager) SyncPresence(ctx context.Context) {
	live := make(map[string]struct{})
	for _, name := range m.Usernames() {
		live[name] = struct{}{}
	}
	cached, err := m.cache.SMembers(ctx, PresenceKey)
	if err != nil {
		return
	}
	for _, name := range cached {
		if _, ok := live[name]; !ok {
			_ = m.cache.SRem(ctx, PresenceKey, name)
		}
		delete(live, name)
	}
	for name := range live {
		_ = m.cache.SAdd(ctx, PresenceKey, name)
	}
}
