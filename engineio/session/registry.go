package session

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// Registry is the process-wide session table. create()/get()/destroy() are
// all safe for concurrent use; create atomically picks a fresh sid.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create allocates a new session with a freshly generated sid and inserts it
// into the registry atomically.
func (r *Registry) Create(transport Transport, pingInterval, pingTimeout time.Duration, maxPayload int) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sid string
	for {
		sid = generateSID()
		if _, exists := r.sessions[sid]; !exists {
			break
		}
	}

	s := newSession(sid, transport, pingInterval, pingTimeout, maxPayload)
	r.sessions[sid] = s
	return s
}

func (r *Registry) Get(sid string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sid]
	return s, ok
}

// Destroy removes sid from the registry. Idempotent: destroying an absent
// or already-destroyed sid is a no-op.
func (r *Registry) Destroy(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func generateSID() string {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is
		// unavailable, which is unrecoverable; a session id collision
		// from a degraded fallback is worse than a hard failure here.
		panic("engineio/session: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
