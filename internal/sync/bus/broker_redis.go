package bus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBroker adapts Redis pub/sub to the Broker interface. Redis channels
// match the required semantics exactly: no backlog, no acknowledgements,
// and subscribers only see what is published while they are connected.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker wraps an existing client. The client lifecycle is managed
// externally; Close on the broker does not close it.
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", channel, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channels...)

	// Force the subscribe handshake so a dead broker fails here rather
	// than on the first Receive.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %v: %w", channels, err)
	}
	return &redisSubscription{ps: ps}, nil
}

// Close is a no-op; the underlying client is owned by the caller.
func (b *RedisBroker) Close() error {
	return nil
}

type redisSubscription struct {
	ps *redis.PubSub
}

func (s *redisSubscription) Receive(ctx context.Context) (*Message, error) {
	msg, err := s.ps.ReceiveMessage(ctx)
	if err != nil {
		return nil, err
	}
	return &Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}, nil
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}
