package graph

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
)

// TokenEvent is the payload published for each streamed token.
type TokenEvent struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

// TopicForSession computes the stream topic for a session.
func TopicForSession(sessionID string) string { return "chat:" + sessionID }

// PublisherSink emits tokens onto a watermill topic scoped to one session.
// The chat transport subscribes on the other end and forwards tokens to the
// session's connection.
type PublisherSink struct {
	pub       message.Publisher
	sessionID string
}

func NewPublisherSink(pub message.Publisher, sessionID string) (*PublisherSink, error) {
	if pub == nil {
		return nil, errors.New("publisher is nil")
	}
	if sessionID == "" {
		return nil, errors.New("session id is empty")
	}
	return &PublisherSink{pub: pub, sessionID: sessionID}, nil
}

func (s *PublisherSink) EmitToken(_ context.Context, token string) error {
	if s == nil || s.pub == nil {
		return errors.New("publisher sink is not initialized")
	}
	b, err := json.Marshal(TokenEvent{SessionID: s.sessionID, Token: token})
	if err != nil {
		return errors.Wrap(err, "marshal token event")
	}
	return s.pub.Publish(TopicForSession(s.sessionID), message.NewMessage(watermill.NewUUID(), b))
}
