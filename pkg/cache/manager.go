package cache

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/flowchat/pkg/artifact"
	"github.com/go-go-golems/flowchat/pkg/observe"
)

// Update is the notification payload published when a session's artifact
// changes.
type Update struct {
	SessionID string
}

// Manager keeps the most recent computed artifact per active session and
// notifies observers when one is stored. Artifact producers run inside
// collaborator code that has no session parameter, so each request hands its
// producers a Scope bound to the owning session instead of consulting shared
// mutable state.
type Manager struct {
	mu      sync.Mutex
	last    map[string]artifact.Record
	subject *observe.Subject[Update]
}

func NewManager() *Manager {
	return &Manager{
		last:    map[string]artifact.Record{},
		subject: observe.NewSubject[Update](),
	}
}

// Attach registers an observer for artifact updates and returns a detach
// function.
func (m *Manager) Attach(obs observe.Observer[Update]) func() {
	if m == nil {
		return func() {}
	}
	return m.subject.Attach(obs)
}

// Put stores rec as the most recent artifact for sessionID, overwriting any
// previous record, then notifies observers. A put without a session id is
// dropped with a warning.
func (m *Manager) Put(sessionID string, rec artifact.Record) {
	if m == nil {
		return
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		log.Warn().Str("component", "cache").Str("kind", string(rec.Kind)).Msg("artifact put without session id, dropping")
		return
	}
	m.mu.Lock()
	m.last[sessionID] = rec
	m.mu.Unlock()

	m.subject.Notify(Update{SessionID: sessionID})
}

// Last returns the most recent artifact stored for sessionID.
func (m *Manager) Last(sessionID string) (artifact.Record, bool) {
	if m == nil {
		return artifact.Record{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.last[sessionID]
	return rec, ok
}

// Evict drops the stored artifact for a session that has gone away.
func (m *Manager) Evict(sessionID string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	delete(m.last, sessionID)
	m.mu.Unlock()
}

// Scope returns a session-bound handle for artifact producers. Each request
// builds its own scope, so concurrent requests for different sessions store
// under their own ids.
func (m *Manager) Scope(sessionID string) *Scope {
	return &Scope{manager: m, sessionID: sessionID}
}

// Scope stores artifacts under one fixed session id. It satisfies the
// collaborator-side artifact sink without the producer carrying the id.
type Scope struct {
	manager   *Manager
	sessionID string
}

// SessionID reports the session the scope is bound to.
func (s *Scope) SessionID() string {
	if s == nil {
		return ""
	}
	return s.sessionID
}

// StoreArtifact stores rec for the scope's session.
func (s *Scope) StoreArtifact(rec artifact.Record) {
	if s == nil {
		return
	}
	s.manager.Put(s.sessionID, rec)
}
