package chat

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Registry tracks the live connection per session id. At most one connection
// exists per session; a second connect for the same id replaces (and closes)
// the first.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: map[string]*Conn{}}
}

// Connect registers conn as the session's live connection, last writer wins.
func (r *Registry) Connect(sessionID string, conn *Conn) {
	if r == nil || sessionID == "" || conn == nil {
		return
	}
	r.mu.Lock()
	prev := r.conns[sessionID]
	r.conns[sessionID] = conn
	r.mu.Unlock()
	if prev != nil && prev != conn {
		log.Debug().Str("component", "chat").Str("session_id", sessionID).Msg("replacing existing connection")
		prev.Close()
	}
}

// Disconnect removes and closes conn if it is still the session's registered
// connection. A conn that was already replaced is closed without touching the
// registry entry, so reconnects are not torn down by the old handler's
// cleanup.
func (r *Registry) Disconnect(sessionID string, conn *Conn) {
	if r == nil || conn == nil {
		conn.Close()
		return
	}
	r.mu.Lock()
	if r.conns[sessionID] == conn {
		delete(r.conns, sessionID)
	}
	r.mu.Unlock()
	conn.Close()
}

// IsConnected reports whether the session currently has a live connection.
func (r *Registry) IsConnected(sessionID string) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[sessionID]
	return ok
}

// Get returns the session's live connection.
func (r *Registry) Get(sessionID string) (*Conn, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[sessionID]
	return c, ok
}

// Dispatch serializes one event and sends it to the session's connection.
// A session without a connection is a benign no-op. A send failure drops the
// connection and is reported to the caller.
func (r *Registry) Dispatch(sessionID string, ev Event) error {
	if r == nil {
		return nil
	}
	conn, ok := r.Get(sessionID)
	if !ok {
		return nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	if err := conn.Send(b); err != nil {
		log.Warn().Err(err).Str("component", "chat").Str("session_id", sessionID).Msg("dispatch failed, dropping connection")
		r.Disconnect(sessionID, conn)
		return errors.Wrap(err, "send event")
	}
	return nil
}

// Count reports the number of live connections.
func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
