// Package bus owns the broker connection for one process: publish with
// per-channel fan-out, a single background listener, and the reconnect
// loop that keeps the listener alive across transport drops. Delivery is
// at-most-once and best-effort: the transport keeps no backlog, so
// anything published while a subscriber is disconnected is lost to it.
package bus

//go:generate mockgen -source=broker.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
)

// ErrClosed is returned by a subscription whose connection was severed,
// either by the remote side or by closing the broker.
var ErrClosed = errors.New("subscription closed")

// Message is one raw payload received from a channel.
type Message struct {
	Channel string
	Payload []byte
}

// Broker is the pub/sub transport: bare fire-and-forget channels with no
// acknowledgements, offsets, or consumer groups. A publish reaches only
// the subscribers connected at that instant.
type Broker interface {
	// Publish sends one payload to one channel, blocking for the broker
	// round trip. The error surfaces synchronously to the caller.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe opens a subscription covering the given channels. The
	// returned subscription is single-consumer.
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)

	// Close releases broker resources owned by this handle.
	Close() error
}

// Subscription is one live attachment to a set of channels.
type Subscription interface {
	// Receive blocks until a message arrives, the context is cancelled,
	// or the connection is lost. Connection loss is reported as an error;
	// the caller decides whether to resubscribe.
	Receive(ctx context.Context) (*Message, error)

	// Close detaches from the channels.
	Close() error
}
