package bus

import (
	"context"
	"sync"
)

const memoryInboxSize = 256

// MemoryBroker is an in-process Broker with the same delivery contract as
// the production transport: no backlog, and a publish reaches only the
// subscriptions attached at that instant. Used by tests and single-node
// development runs.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[*memorySubscription]struct{}
	closed bool
}

// NewMemoryBroker constructs an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[*memorySubscription]struct{})}
}

func (b *MemoryBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	msg := &Message{Channel: channel, Payload: buf}

	for sub := range b.subs {
		if !sub.covers(channel) {
			continue
		}
		select {
		case sub.inbox <- msg:
		default:
			// Full inbox drops the message, as a real broker would for
			// a subscriber that cannot keep up.
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, channels ...string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := &memorySubscription{
		broker:   b,
		channels: make(map[string]struct{}, len(channels)),
		inbox:    make(chan *Message, memoryInboxSize),
		done:     make(chan struct{}),
	}
	for _, ch := range channels {
		sub.channels[ch] = struct{}{}
	}
	b.subs[sub] = struct{}{}
	return sub, nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for sub := range b.subs {
		sub.fail()
	}
	b.subs = make(map[*memorySubscription]struct{})
	return nil
}

// Disconnect severs every active subscription, simulating a transport
// drop. The broker itself stays usable: later Subscribe calls succeed,
// which is what the listener's reconnect loop relies on.
func (b *MemoryBroker) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		sub.fail()
	}
	b.subs = make(map[*memorySubscription]struct{})
}

// SubscriberCount reports currently attached subscriptions. Tests use it
// to wait for a resubscribe after Disconnect.
func (b *MemoryBroker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

type memorySubscription struct {
	broker   *MemoryBroker
	channels map[string]struct{}
	inbox    chan *Message

	failOnce sync.Once
	done     chan struct{}
}

func (s *memorySubscription) covers(channel string) bool {
	_, ok := s.channels[channel]
	return ok
}

func (s *memorySubscription) fail() {
	s.failOnce.Do(func() { close(s.done) })
}

func (s *memorySubscription) Receive(ctx context.Context) (*Message, error) {
	// A severed connection outranks buffered messages: anything still in
	// flight when the transport dropped is lost, matching the broker's
	// no-backlog contract.
	select {
	case <-s.done:
		return nil, ErrClosed
	default:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	case msg := <-s.inbox:
		return msg, nil
	}
}

func (s *memorySubscription) Close() error {
	s.broker.mu.Lock()
	delete(s.broker.subs, s)
	s.broker.mu.Unlock()
	s.fail()
	return nil
}
