package chat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/flowchat/pkg/graph"
)

// Forwarder subscribes to a session's token stream and folds each token into
// the session's history as a stream event, which the history observer then
// dispatches to the owning connection.
type Forwarder struct {
	backend StreamBackend
	history *History
}

func NewForwarder(backend StreamBackend, history *History) *Forwarder {
	return &Forwarder{backend: backend, history: history}
}

// Start begins forwarding tokens for sessionID and returns a stop function.
// Tokens for other sessions that share the topic are ignored.
func (f *Forwarder) Start(ctx context.Context, sessionID string) (func(), error) {
	if f == nil || f.backend == nil || f.history == nil {
		return nil, errors.New("forwarder is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sub, err := f.backend.BuildSubscriber(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	readCtx, cancel := context.WithCancel(ctx)
	ch, err := sub.Subscribe(readCtx, graph.TopicForSession(sessionID))
	if err != nil {
		cancel()
		return nil, err
	}

	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			cancel()
			if err := sub.Close(); err != nil {
				log.Warn().Err(err).Str("component", "forwarder").Str("session_id", sessionID).Msg("subscriber close failed")
			}
		})
	}

	fwdLog := log.With().Str("component", "forwarder").Str("session_id", sessionID).Logger()
	go func() {
		for msg := range ch {
			var ev graph.TokenEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				fwdLog.Warn().Err(err).Msg("failed to decode token event")
				msg.Ack()
				continue
			}
			if ev.SessionID != "" && ev.SessionID != sessionID {
				msg.Ack()
				continue
			}
			f.history.Append(sessionID, NewStreamToken(ev.Token))
			msg.Ack()
		}
		fwdLog.Debug().Msg("token forwarder stopped")
	}()
	return stop, nil
}
