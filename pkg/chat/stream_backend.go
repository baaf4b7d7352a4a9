package chat

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// StreamBackend wraps transport setup for the token stream (in-memory or
// redis) and hands out publisher/subscriber pairs for per-session topics.
// Subscribers returned by BuildSubscriber are owned by the caller, which must
// Close them when the session ends.
type StreamBackend interface {
	Publisher() message.Publisher
	BuildSubscriber(ctx context.Context, sessionID string) (message.Subscriber, error)
	Close() error
}

// sharedSubscriber hands out the backend's process-wide pubsub without giving
// the caller ownership: closing the subscription must not close the backend.
type sharedSubscriber struct {
	message.Subscriber
}

func (sharedSubscriber) Close() error { return nil }

type memoryStreamBackend struct {
	ps *gochannel.GoChannel
}

// NewMemoryStreamBackend builds the default single-process backend.
func NewMemoryStreamBackend() StreamBackend {
	return &memoryStreamBackend{
		ps: gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{}),
	}
}

func (b *memoryStreamBackend) Publisher() message.Publisher {
	if b == nil {
		return nil
	}
	return b.ps
}

func (b *memoryStreamBackend) BuildSubscriber(_ context.Context, sessionID string) (message.Subscriber, error) {
	if b == nil || b.ps == nil {
		return nil, errors.New("stream backend is not initialized")
	}
	if sessionID == "" {
		return nil, errors.New("sessionID is empty")
	}
	return sharedSubscriber{Subscriber: b.ps}, nil
}

func (b *memoryStreamBackend) Close() error {
	if b == nil || b.ps == nil {
		return nil
	}
	return b.ps.Close()
}

type redisStreamBackend struct {
	client *redis.Client
	pub    message.Publisher
}

// NewRedisStreamBackend routes token streams through redis streams, letting
// graph execution publish from outside the serving process.
func NewRedisStreamBackend(ctx context.Context, addr string) (StreamBackend, error) {
	if addr == "" {
		return nil, errors.New("redis addr is empty")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client:     client,
		Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
	}, watermill.NopLogger{})
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "build redis publisher")
	}
	return &redisStreamBackend{client: client, pub: pub}, nil
}

func (b *redisStreamBackend) Publisher() message.Publisher {
	if b == nil {
		return nil
	}
	return b.pub
}

func (b *redisStreamBackend) BuildSubscriber(_ context.Context, sessionID string) (message.Subscriber, error) {
	if b == nil || b.client == nil {
		return nil, errors.New("stream backend is not initialized")
	}
	if sessionID == "" {
		return nil, errors.New("sessionID is empty")
	}
	sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        b.client,
		Unmarshaller:  redisstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: "ws-forwarder",
		Consumer:      "ws-forwarder:" + sessionID,
	}, watermill.NopLogger{})
	if err != nil {
		return nil, errors.Wrap(err, "build redis subscriber")
	}
	return sub, nil
}

func (b *redisStreamBackend) Close() error {
	if b == nil {
		return nil
	}
	if b.pub != nil {
		_ = b.pub.Close()
	}
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}
