package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"edusync/internal/sync/audit"
	"edusync/internal/sync/dedup"
	"edusync/internal/sync/event"
	"edusync/internal/sync/registry"
)

// DefaultReconnectBackoff is the fixed pause between reconnect attempts.
const DefaultReconnectBackoff = 2 * time.Second

// State describes the listener's view of the broker connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateListening
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config carries the per-process bus settings.
type Config struct {
	// Service is the consuming service this process runs as; the listener
	// subscribes to its channel.
	Service event.Service

	// ReconnectBackoff is the fixed sleep before a reconnect attempt.
	// Zero means DefaultReconnectBackoff.
	ReconnectBackoff time.Duration
}

// Bus owns the single broker connection for one process. Publish runs
// synchronously on the caller's goroutine; Run hosts the one background
// listener. Construct one Bus at startup and pass it down explicitly —
// there is deliberately no package-level instance.
type Bus struct {
	cfg    Config
	broker Broker
	reg    *registry.Registry
	seen   *dedup.Cache
	audit  audit.Store
	log    *slog.Logger

	state atomic.Int32
}

// New wires a bus from its collaborators. The registry must belong to
// cfg.Service.
func New(cfg Config, broker Broker, reg *registry.Registry, seen *dedup.Cache, auditStore audit.Store, log *slog.Logger) *Bus {
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = DefaultReconnectBackoff
	}
	return &Bus{
		cfg:    cfg,
		broker: broker,
		reg:    reg,
		seen:   seen,
		audit:  auditStore,
		log:    log,
	}
}

// State returns the current connection state for health reporting.
func (b *Bus) State() State {
	return State(b.state.Load())
}

func (b *Bus) setState(s State) {
	b.state.Store(int32(s))
}

// Publish validates the envelope, serializes it once, and sends it to
// every channel in its fan-out set. The first transport failure aborts the
// fan-out and propagates to the caller: some channels may already have
// received the event, and nothing is retried here. A caller publishing
// from a write-request path couples its latency to broker availability.
func (b *Bus) Publish(ctx context.Context, ev *event.Envelope) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	payload, err := ev.Marshal()
	if err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		publishDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	for _, channel := range ev.FanOut() {
		if err := b.broker.Publish(ctx, channel, payload); err != nil {
			return fmt.Errorf("publish %s to %s: %w", ev.Type, channel, err)
		}
		publishedTotal.WithLabelValues(string(ev.Type)).Inc()
	}
	return nil
}

// Run subscribes to this service's channel and consumes until ctx is
// cancelled. Transport errors never crash the loop: the listener logs,
// waits the fixed back-off, and resubscribes. Messages published while
// disconnected are permanently lost to this subscriber; the transport has
// no backlog. Returns nil on cancellation, leaving the bus Stopped.
func (b *Bus) Run(ctx context.Context) error {
	channel := b.cfg.Service.Channel()
	defer b.setState(StateStopped)

	for {
		sub, err := b.broker.Subscribe(ctx, channel)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.setState(StateDisconnected)
			b.log.Error("subscribe failed, will retry",
				"channel", channel,
				"backoff", b.cfg.ReconnectBackoff,
				"error", err,
			)
			reconnectsTotal.Inc()
			if !b.pause(ctx) {
				return nil
			}
			continue
		}
		b.setState(StateConnected)
		b.log.Info("listening for sync events", "service", b.cfg.Service, "channel", channel)

		err = b.consume(ctx, sub)
		_ = sub.Close()
		if ctx.Err() != nil {
			return nil
		}

		b.setState(StateDisconnected)
		b.log.Error("listener lost broker connection, reconnecting",
			"channel", channel,
			"backoff", b.cfg.ReconnectBackoff,
			"error", err,
		)
		reconnectsTotal.Inc()
		if !b.pause(ctx) {
			return nil
		}
	}
}

// consume drains one subscription until the context is cancelled or the
// connection drops.
func (b *Bus) consume(ctx context.Context, sub Subscription) error {
	b.setState(StateListening)
	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			return err
		}
		b.dispatch(ctx, msg)
	}
}

// dispatch applies one raw message: deserialize, dedup, hand to the
// registry, then mark seen and append the audit record. A handler error is
// logged and counted but the event is still marked seen — it is dropped,
// not requeued, and a redelivered copy must not re-invoke the handler.
func (b *Bus) dispatch(ctx context.Context, msg *Message) {
	ev, err := event.Unmarshal(msg.Payload)
	if err != nil {
		malformedTotal.Inc()
		b.log.Warn("dropping malformed payload", "channel", msg.Channel, "error", err)
		return
	}

	if b.seen.Seen(ev.ID) {
		duplicateTotal.Inc()
		b.log.Debug("duplicate event suppressed", "event_id", ev.ID, "event_type", ev.Type)
		return
	}

	if err := b.reg.Dispatch(ctx, ev); err != nil {
		handlerFailuresTotal.WithLabelValues(string(ev.Type)).Inc()
		b.log.Error("handler failed, dropping event",
			"event_id", ev.ID,
			"event_type", ev.Type,
			"source", ev.Source,
			"error", err,
		)
	} else {
		consumedTotal.WithLabelValues(string(ev.Type)).Inc()
	}

	b.seen.Add(ev.ID)
	if err := b.audit.Append(ctx, ev.ID, audit.FromEnvelope(ev)); err != nil {
		// Audit is best-effort metadata; processing already happened.
		b.log.Warn("audit append failed", "event_id", ev.ID, "error", err)
	}
}

// pause sleeps for the reconnect back-off. Returns false when the context
// was cancelled during the sleep.
func (b *Bus) pause(ctx context.Context) bool {
	timer := time.NewTimer(b.cfg.ReconnectBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
