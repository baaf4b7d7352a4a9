package chat

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Router mounts the websocket chat endpoint on an http mux.
type Router struct {
	baseCtx  context.Context
	manager  *Manager
	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

func NewRouter(ctx context.Context, manager *Manager) (*Router, error) {
	if ctx == nil {
		return nil, errors.New("ctx is nil")
	}
	if manager == nil {
		return nil, errors.New("manager is nil")
	}
	r := &Router{
		baseCtx: ctx,
		manager: manager,
		mux:     http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	r.mux.HandleFunc("GET /ws/{session_id}", r.handleWS)
	r.mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return r, nil
}

func (r *Router) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return r.mux
}

func (r *Router) handleWS(w http.ResponseWriter, req *http.Request) {
	sessionID := strings.TrimSpace(req.PathValue("session_id"))
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "chat").Str("session_id", sessionID).Msg("websocket upgrade failed")
		return
	}
	wsLog := log.With().
		Str("component", "chat").
		Str("remote", conn.RemoteAddr().String()).
		Str("session_id", sessionID).
		Logger()
	if err := r.manager.HandleSession(r.baseCtx, sessionID, conn); err != nil {
		wsLog.Error().Err(err).Msg("session ended with error")
	}
}
