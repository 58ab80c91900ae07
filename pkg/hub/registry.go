package hub

import (
	"sync"

	"relay/pkg/metrics"

	"github.com/google/uuid"
)

// Conn is anything a notification can be pushed to.
type Conn interface {
	Send(event string, data any) error
}

// Token identifies one registration. Unregister only removes an entry whose
// token still matches, so the teardown of a superseded connection cannot
// evict its replacement.
type Token string

type entry struct {
	token Token
	conn  Conn
}

// Registry maps a user id to that user's single current connection.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register makes c the current connection for userID, replacing any
// previous one. An empty userID is never registered and yields "".
func (r *Registry) Register(userID string, c Conn) Token {
	if userID == "" {
		return ""
	}
	t := Token(uuid.NewString())

	r.mu.Lock()
	r.entries[userID] = entry{token: t, conn: c}
	metrics.ConnectedUsers.Set(float64(len(r.entries)))
	r.mu.Unlock()

	return t
}

// Unregister removes userID's entry if it was registered with token.
// It reports whether an entry was removed.
func (r *Registry) Unregister(userID string, token Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	if !ok || e.token != token {
		return false
	}
	delete(r.entries, userID)
	metrics.ConnectedUsers.Set(float64(len(r.entries)))
	return true
}

func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[userID]
	return e.conn, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
