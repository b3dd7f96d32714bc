package dbtools

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/harun/sqlpilot/pkg/selection"
	"github.com/harun/sqlpilot/pkg/session"
)

// DefaultSessionKey is used when a tool call carries no session.
const DefaultSessionKey = "default"

// Session is the per-conversation state shared by the three operations.
type Session struct {
	Key       string
	Selection selection.Store
}

// NewSession creates a Session over store.
func NewSession(key string, store selection.Store) *Session {
	return &Session{Key: key, Selection: store}
}

// SessionResolver looks up the Session for a session key.
type SessionResolver interface {
	Session(key string) (*Session, error)
}

// SessionRegistry hands out one Session per key. File-backed registries keep each
// selection in <dir>/<key>.json; in-memory registries keep it in process.
type SessionRegistry struct {
	dir      string
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionRegistry creates a registry persisting selections under dir.
func NewSessionRegistry(dir string) *SessionRegistry {
	return &SessionRegistry{dir: dir, sessions: make(map[string]*Session)}
}

// NewMemorySessionRegistry creates a registry that keeps selections in memory.
func NewMemorySessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// Session returns the Session for key, creating it on first use.
func (r *SessionRegistry) Session(key string) (*Session, error) {
	if key == "" {
		key = DefaultSessionKey
	}
	if err := session.ValidateKey(key); err != nil {
		return nil, fmt.Errorf("invalid session key: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[key]; ok {
		return sess, nil
	}

	var store selection.Store
	if r.dir == "" {
		store = selection.NewMemoryStore()
	} else {
		store = selection.NewFileStore(filepath.Join(r.dir, key+".json"))
	}

	sess := NewSession(key, store)
	r.sessions[key] = sess
	return sess, nil
}
