package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/flowchat/pkg/artifact"
	"github.com/go-go-golems/flowchat/pkg/cache"
	"github.com/go-go-golems/flowchat/pkg/graph"
)

var errNotInitialized = errors.New("chat manager is not initialized")

// ManagerConfig carries the collaborators a Manager needs.
type ManagerConfig struct {
	BaseCtx context.Context
	Runner  graph.Runner
	Cache   *cache.Manager
	Backend StreamBackend
	// Archive is optional; when set, appended events are copied to it and a
	// session's history rehydrates from it on first access after a restart.
	Archive Archive

	SendBuffer   int
	WriteTimeout time.Duration
	// IdleTimeout evicts a session's history and cached artifact after its
	// last connection has been gone this long. Zero disables eviction.
	IdleTimeout time.Duration
}

// Manager owns the session registry and history and drives the lifecycle of
// each inbound chat request. It reacts to artifact cache notifications by
// folding transcoded artifacts into the owning session's history.
type Manager struct {
	baseCtx   context.Context
	runner    graph.Runner
	cacheMgr  *cache.Manager
	backend   StreamBackend
	history   *History
	registry  *Registry
	forwarder *Forwarder

	sendBuffer   int
	writeTimeout time.Duration
	idleTimeout  time.Duration

	detachHistory func()
	detachCache   func()

	mu         sync.Mutex
	inFlight   map[string]*sync.Mutex
	idleTimers map[string]*time.Timer
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.BaseCtx == nil {
		return nil, errors.New("chat manager base context is nil")
	}
	if cfg.Runner == nil {
		return nil, errors.New("chat manager runner is nil")
	}
	if cfg.Cache == nil {
		return nil, errors.New("chat manager cache is nil")
	}
	if cfg.Backend == nil {
		return nil, errors.New("chat manager stream backend is nil")
	}
	history := NewHistory(cfg.Archive)
	m := &Manager{
		baseCtx:      cfg.BaseCtx,
		runner:       cfg.Runner,
		cacheMgr:     cfg.Cache,
		backend:      cfg.Backend,
		history:      history,
		registry:     NewRegistry(),
		forwarder:    NewForwarder(cfg.Backend, history),
		sendBuffer:   cfg.SendBuffer,
		writeTimeout: cfg.WriteTimeout,
		idleTimeout:  cfg.IdleTimeout,
		inFlight:     map[string]*sync.Mutex{},
		idleTimers:   map[string]*time.Timer{},
	}
	m.detachHistory = history.Attach(m.onHistoryUpdate)
	m.detachCache = cfg.Cache.Attach(m.onArtifactUpdate)
	return m, nil
}

func (m *Manager) History() *History   { return m.history }
func (m *Manager) Registry() *Registry { return m.registry }

// Close detaches the manager's observers.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	if m.detachHistory != nil {
		m.detachHistory()
	}
	if m.detachCache != nil {
		m.detachCache()
	}
}

// onHistoryUpdate dispatches the just-appended event to the owning session's
// connection. Only bot-originated events go out; the client already has its
// own message. Full history replays happen only once, at connect time.
func (m *Manager) onHistoryUpdate(u HistoryUpdate) {
	if m == nil || !u.Event.IsBot {
		return
	}
	_ = m.registry.Dispatch(u.SessionID, u.Event)
}

// onArtifactUpdate reacts to the artifact cache: when the updated session has
// a live connection, the latest record is transcoded by kind and appended to
// that session's history, which cascades into a dispatch.
func (m *Manager) onArtifactUpdate(u cache.Update) {
	if m == nil {
		return
	}
	if !m.registry.IsConnected(u.SessionID) {
		return
	}
	rec, ok := m.cacheMgr.Last(u.SessionID)
	if !ok {
		return
	}
	data, err := artifact.Transcode(rec)
	if err != nil {
		log.Warn().Err(err).Str("component", "chat").Str("session_id", u.SessionID).Str("kind", string(rec.Kind)).Msg("artifact transcode failed")
		return
	}
	m.history.Append(u.SessionID, NewFileEvent(data, rec.Kind))
}

// sessionLock serializes requests per session: a single in-flight request per
// session id, so first-message detection and graph reuse stay race-free.
func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	mu, ok := m.inFlight[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		m.inFlight[sessionID] = mu
	}
	return mu
}

// ProcessMessage drives one request through its lifecycle: append the user
// message, open the bot turn, run the graph with session-bound sinks attached,
// and finalize. The error return means the caller must tear the session down;
// an error terminal event has already been appended by then.
func (m *Manager) ProcessMessage(ctx context.Context, sessionID string, payload map[string]any) error {
	if m == nil {
		return errNotInitialized
	}
	if ctx == nil {
		ctx = m.baseCtx
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("session id is empty")
	}

	mu := m.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	text, _ := payload["message"].(string)
	config := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == "message" {
			continue
		}
		config[k] = v
	}

	// First-message detection looks at the filtered history before this
	// request touches it.
	isFirstMessage := len(m.history.Get(sessionID, false)) == 0

	m.history.Append(sessionID, NewUserMessage(text))
	m.history.Append(sessionID, NewStreamStart())

	reqLog := log.With().
		Str("component", "chat").
		Str("session_id", sessionID).
		Str("request_id", uuid.NewString()).
		Logger()
	result, err := m.runTurn(ctx, reqLog, sessionID, config, text, isFirstMessage)
	if err != nil {
		reqLog.Error().Err(err).Msg("request failed")
		m.history.Append(sessionID, NewErrorEnd(err.Error()))
		return err
	}

	m.history.Append(sessionID, NewFinalAnswer(result.Text, result.IntermediateSteps))
	return nil
}

// runTurn loads the graph and executes it with the session's sinks attached.
// Both sinks carry the session id themselves, so artifacts and tokens produced
// by collaborator code land under the owning session even while other sessions
// execute concurrently.
func (m *Manager) runTurn(ctx context.Context, reqLog zerolog.Logger, sessionID string, config map[string]any, text string, isFirstMessage bool) (graph.Result, error) {
	handle, err := m.runner.LoadOrBuild(ctx, config, isFirstMessage)
	if err != nil {
		return graph.Result{}, errors.Wrap(err, "load or build graph")
	}
	if handle == nil {
		return graph.Result{}, errors.New("runner returned nil graph handle")
	}
	if sc, ok := handle.(graph.StreamingCapable); ok {
		sink, err := graph.NewPublisherSink(m.backend.Publisher(), sessionID)
		if err != nil {
			return graph.Result{}, errors.Wrap(err, "build token sink")
		}
		sc.SetTokenSink(sink)
	}
	if ac, ok := handle.(graph.ArtifactCapable); ok {
		ac.SetArtifactSink(m.cacheMgr.Scope(sessionID))
	}
	reqLog.Debug().Bool("is_first_message", isFirstMessage).Msg("executing graph")
	result, err := m.runner.Execute(ctx, handle, text)
	if err != nil {
		return graph.Result{}, errors.Wrap(err, "execute graph")
	}
	return result, nil
}

// HandleSession runs the full lifetime of one connection: replay the filtered
// history, register, then read payloads until the connection ends. Cleanup is
// guaranteed: the connection is unregistered and closed exactly once, the
// token forwarder stopped, and idle eviction scheduled.
func (m *Manager) HandleSession(ctx context.Context, sessionID string, ws WireConn) error {
	if m == nil {
		return errNotInitialized
	}
	if ws == nil {
		return errors.New("connection is nil")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("session id is empty")
	}
	if ctx == nil {
		ctx = m.baseCtx
	}

	sessLog := log.With().Str("component", "chat").Str("session_id", sessionID).Logger()

	conn := NewConn(sessionID, ws, m.sendBuffer, m.writeTimeout)
	m.cancelEviction(sessionID)
	defer func() {
		m.registry.Disconnect(sessionID, conn)
		m.scheduleEviction(sessionID)
		sessLog.Info().Msg("session disconnected")
	}()

	// The replay is snapshotted and enqueued before the connection joins live
	// dispatch, so an event appended mid-connect is never sent twice.
	if err := m.replayHistory(sessionID, conn); err != nil {
		return err
	}
	m.registry.Connect(sessionID, conn)

	stopForwarder, err := m.forwarder.Start(ctx, sessionID)
	if err != nil {
		return errors.Wrap(err, "start token forwarder")
	}
	defer stopForwarder()
	sessLog.Info().Msg("session connected")

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			sessLog.Debug().Err(err).Msg("ws read loop end")
			return nil
		}
		payload, err := decodePayload(data)
		if err != nil {
			sessLog.Warn().Err(err).Msg("invalid payload")
			continue
		}
		if err := m.ProcessMessage(ctx, sessionID, payload); err != nil {
			// The failure already produced a terminal event; surface it by
			// tearing this session down, not the process.
			return err
		}
	}
}

// replayHistory sends the full filtered history as an ordered list, the only
// point where more than the latest event goes out. The history store itself
// rehydrates from the archive, so a session surviving a restart replays its
// archived turns here.
func (m *Manager) replayHistory(sessionID string, conn *Conn) error {
	events := m.history.Get(sessionID, false)
	if events == nil {
		events = []Event{}
	}
	b, err := json.Marshal(events)
	if err != nil {
		return errors.Wrap(err, "marshal history")
	}
	if err := conn.Send(b); err != nil {
		return errors.Wrap(err, "send history")
	}
	return nil
}

func (m *Manager) cancelEviction(sessionID string) {
	m.mu.Lock()
	if t, ok := m.idleTimers[sessionID]; ok {
		t.Stop()
		delete(m.idleTimers, sessionID)
	}
	m.mu.Unlock()
}

func (m *Manager) scheduleEviction(sessionID string) {
	if m.idleTimeout <= 0 {
		return
	}
	if m.registry.IsConnected(sessionID) {
		return
	}
	m.mu.Lock()
	if t, ok := m.idleTimers[sessionID]; ok {
		t.Stop()
	}
	m.idleTimers[sessionID] = time.AfterFunc(m.idleTimeout, func() {
		if m.registry.IsConnected(sessionID) {
			return
		}
		log.Debug().Str("component", "chat").Str("session_id", sessionID).Msg("evicting idle session")
		m.history.Clear(sessionID)
		m.cacheMgr.Evict(sessionID)
		m.mu.Lock()
		delete(m.idleTimers, sessionID)
		delete(m.inFlight, sessionID)
		m.mu.Unlock()
	})
	m.mu.Unlock()
}

// decodePayload parses an inbound payload, unwrapping the case where the
// client double-encoded the JSON object as a string.
func decodePayload(data []byte) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err == nil {
		return payload, nil
	}
	var wrapped string
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, errors.New("payload is neither an object nor a string")
	}
	if err := json.Unmarshal([]byte(wrapped), &payload); err != nil {
		return nil, errors.Wrap(err, "decode wrapped payload")
	}
	return payload, nil
}
