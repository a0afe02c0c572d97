package bus_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	profilehandler "edusync/internal/profile/handler"
	profilestore "edusync/internal/profile/store"
	"edusync/internal/sync/audit"
	"edusync/internal/sync/bus"
	"edusync/internal/sync/bus/mocks"
	"edusync/internal/sync/dedup"
	"edusync/internal/sync/event"
	"edusync/internal/sync/publisher"
	"edusync/internal/sync/registry"
)

const testBackoff = 25 * time.Millisecond

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// countingRegistry builds a registry whose handlers push every handled
// event id onto the returned channel. Delivery on one channel is ordered,
// so a later event's arrival proves all earlier ones were dispatched.
func countingRegistry(service event.Service, types ...event.Type) (*registry.Registry, chan string) {
	handled := make(chan string, 64)
	r := registry.New(service, discard())
	for _, t := range types {
		r.Register(t, func(_ context.Context, ev *event.Envelope) error {
			handled <- ev.ID
			return nil
		})
	}
	return r, handled
}

func newTestBus(t *testing.T, broker bus.Broker, reg *registry.Registry) (*bus.Bus, *audit.MemoryStore) {
	t.Helper()
	auditStore := audit.NewMemory()
	b := bus.New(bus.Config{
		Service:          reg.Service(),
		ReconnectBackoff: testBackoff,
	}, broker, reg, dedup.New(1000), auditStore, discard())
	return b, auditStore
}

// startListener runs the bus until the test ends and blocks until the
// subscription is attached.
func startListener(t *testing.T, b *bus.Bus, broker *bus.MemoryBroker) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = b.Run(ctx) }()
	require.Eventually(t, func() bool { return broker.SubscriberCount() == 1 },
		time.Second, time.Millisecond, "listener should subscribe")
	return cancel
}

func waitHandled(t *testing.T, handled <-chan string, want string) {
	t.Helper()
	select {
	case got := <-handled:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event %s", want)
	}
}

func assertNothingHandled(t *testing.T, handled <-chan string) {
	t.Helper()
	select {
	case got := <-handled:
		t.Fatalf("unexpected event handled: %s", got)
	default:
	}
}

func TestDuplicateEventInvokesHandlerAtMostOnce(t *testing.T) {
	broker := bus.NewMemoryBroker()
	reg, handled := countingRegistry(event.UserService, event.UserCreated, event.UserVerified)
	b, _ := newTestBus(t, broker, reg)
	cancel := startListener(t, b, broker)
	defer cancel()

	ctx := context.Background()
	ev := event.New(event.UserCreated, event.AuthService, event.UserService, map[string]any{"id": "u1"})

	// Same envelope published twice: identical event_id on the wire.
	require.NoError(t, b.Publish(ctx, ev))
	require.NoError(t, b.Publish(ctx, ev))

	// A sentinel event behind the duplicate proves the duplicate was
	// already consumed when it arrives.
	sentinelEv := event.New(event.UserVerified, event.AuthService, event.UserService, map[string]any{"id": "u1"})
	require.NoError(t, b.Publish(ctx, sentinelEv))

	waitHandled(t, handled, ev.ID)
	waitHandled(t, handled, sentinelEv.ID)
	assertNothingHandled(t, handled)
}

func TestEndToEndUserCreateAndReplay(t *testing.T) {
	broker := bus.NewMemoryBroker()
	profiles := profilestore.NewMemory()
	reg := profilehandler.New(profiles, discard())
	b, auditStore := newTestBus(t, broker, reg)
	cancel := startListener(t, b, broker)
	defer cancel()

	ctx := context.Background()
	ev := event.New(event.UserCreated, event.AuthService, event.UserService, map[string]any{
		"id":    "u1",
		"email": "a@b.com",
	})
	require.NoError(t, b.Publish(ctx, ev))

	require.Eventually(t, func() bool {
		_, err := profiles.FindByUserID(ctx, "u1")
		return err == nil
	}, 2*time.Second, time.Millisecond)

	p, err := profiles.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", p.Email)
	assert.Equal(t, 1, profiles.Len())

	// Replaying the identical event_id creates no second row and raises
	// no error.
	require.NoError(t, b.Publish(ctx, ev))
	require.Eventually(t, func() bool {
		_, err := auditStore.Find(ctx, ev.ID)
		return err == nil
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, 1, profiles.Len())

	rec, err := auditStore.Find(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, event.UserCreated, rec.EventType)
	assert.Equal(t, "u1", rec.CorrelationID)
}

func TestPublisherThroughBus(t *testing.T) {
	broker := bus.NewMemoryBroker()
	profiles := profilestore.NewMemory()
	reg := profilehandler.New(profiles, discard())
	b, _ := newTestBus(t, broker, reg)
	cancel := startListener(t, b, broker)
	defer cancel()

	pub := publisher.New(b, event.AuthService)
	require.NoError(t, pub.UserCreated(context.Background(), publisher.UserPayload{
		ID:    "u42",
		Email: "u42@example.edu",
		Role:  "student",
	}))

	require.Eventually(t, func() bool {
		p, err := profiles.FindByUserID(context.Background(), "u42")
		return err == nil && p.Email == "u42@example.edu"
	}, 2*time.Second, time.Millisecond)
}

func TestHandlerFailureDropsEventAndKeepsListening(t *testing.T) {
	broker := bus.NewMemoryBroker()
	handled := make(chan string, 16)
	var failures int

	reg := registry.New(event.UserService, discard())
	reg.Register(event.UserDeleted, func(context.Context, *event.Envelope) error {
		failures++
		return errors.New("local write failed")
	})
	reg.Register(event.UserVerified, func(_ context.Context, ev *event.Envelope) error {
		handled <- ev.ID
		return nil
	})

	b, auditStore := newTestBus(t, broker, reg)
	cancel := startListener(t, b, broker)
	defer cancel()

	ctx := context.Background()
	failing := event.New(event.UserDeleted, event.AuthService, event.UserService, map[string]any{"id": "u1"})
	require.NoError(t, b.Publish(ctx, failing))

	ok := event.New(event.UserVerified, event.AuthService, event.UserService, map[string]any{"id": "u1"})
	require.NoError(t, b.Publish(ctx, ok))
	waitHandled(t, handled, ok.ID)

	assert.Equal(t, 1, failures, "failed event is dropped, not retried")

	// The failed event is still marked seen and audited; a replay must
	// not re-invoke the handler.
	require.NoError(t, b.Publish(ctx, failing))
	tail := event.New(event.UserVerified, event.AuthService, event.UserService, map[string]any{"id": "u2"})
	require.NoError(t, b.Publish(ctx, tail))
	waitHandled(t, handled, tail.ID)
	assert.Equal(t, 1, failures)

	_, err := auditStore.Find(ctx, failing.ID)
	assert.NoError(t, err, "failed events still leave an audit record")
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	broker := bus.NewMemoryBroker()
	reg, handled := countingRegistry(event.UserService, event.UserCreated)
	b, _ := newTestBus(t, broker, reg)
	cancel := startListener(t, b, broker)
	defer cancel()

	ctx := context.Background()
	require.NoError(t, broker.Publish(ctx, event.UserService.Channel(), []byte("{definitely not json")))

	ev := event.New(event.UserCreated, event.AuthService, event.UserService, map[string]any{"id": "u1"})
	require.NoError(t, b.Publish(ctx, ev))
	waitHandled(t, handled, ev.ID)
}

func TestReconnectResumesWithoutRedeliveringOutage(t *testing.T) {
	broker := bus.NewMemoryBroker()
	reg, handled := countingRegistry(event.UserService, event.UserCreated)

	// A generous back-off keeps the outage window comfortably open while
	// the test publishes into it.
	b := bus.New(bus.Config{
		Service:          reg.Service(),
		ReconnectBackoff: 200 * time.Millisecond,
	}, broker, reg, dedup.New(1000), audit.NewMemory(), discard())
	cancel := startListener(t, b, broker)
	defer cancel()

	ctx := context.Background()
	before := event.New(event.UserCreated, event.AuthService, event.UserService, map[string]any{"id": "u1"})
	require.NoError(t, b.Publish(ctx, before))
	waitHandled(t, handled, before.ID)

	broker.Disconnect()

	// Published strictly during the outage: no subscriber is attached,
	// so the transport discards it permanently.
	during := event.New(event.UserCreated, event.AuthService, event.UserService, map[string]any{"id": "u2"})
	require.NoError(t, b.Publish(ctx, during))

	require.Eventually(t, func() bool { return broker.SubscriberCount() == 1 },
		2*time.Second, time.Millisecond, "listener should resubscribe on its own")

	after := event.New(event.UserCreated, event.AuthService, event.UserService, map[string]any{"id": "u3"})
	require.NoError(t, b.Publish(ctx, after))

	waitHandled(t, handled, after.ID)
	assertNothingHandled(t, handled)
}

func TestRunStopsCleanly(t *testing.T) {
	broker := bus.NewMemoryBroker()
	reg, _ := countingRegistry(event.UserService)
	b, _ := newTestBus(t, broker, reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return b.State() == bus.StateListening },
		time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err, "cancellation is a clean stop")
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
	assert.Equal(t, bus.StateStopped, b.State())
}

func TestPublishFanOutBroadcast(t *testing.T) {
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockBroker(ctrl)
	reg, _ := countingRegistry(event.UserService)
	b, _ := newTestBus(t, broker, reg)

	for _, svc := range event.KnownServices() {
		broker.EXPECT().Publish(gomock.Any(), svc.Channel(), gomock.Any()).Return(nil)
	}

	ev := event.New(event.UserDeleted, event.AuthService, event.Broadcast, map[string]any{"id": "u1"})
	require.NoError(t, b.Publish(context.Background(), ev))
}

func TestPublishDirectedHitsExactlyOneChannel(t *testing.T) {
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockBroker(ctrl)
	reg, _ := countingRegistry(event.UserService)
	b, _ := newTestBus(t, broker, reg)

	broker.EXPECT().Publish(gomock.Any(), "sync_events_user_service", gomock.Any()).Return(nil)

	ev := event.New(event.UserCreated, event.AuthService, event.UserService, map[string]any{"id": "u1"})
	require.NoError(t, b.Publish(context.Background(), ev))
}

func TestPublishFailurePropagatesAndAbortsFanOut(t *testing.T) {
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockBroker(ctrl)
	reg, _ := countingRegistry(event.UserService)
	b, _ := newTestBus(t, broker, reg)

	brokerDown := errors.New("broker unreachable")
	// Broadcast fan-out starts with the auth service channel; the first
	// failure aborts the rest of the fan-out.
	broker.EXPECT().Publish(gomock.Any(), event.AuthService.Channel(), gomock.Any()).Return(brokerDown)

	ev := event.New(event.UserDeleted, event.AuthService, event.Broadcast, map[string]any{"id": "u1"})
	err := b.Publish(context.Background(), ev)
	require.Error(t, err)
	assert.ErrorIs(t, err, brokerDown)
}

func TestPublishRejectsInvalidEnvelope(t *testing.T) {
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockBroker(ctrl)
	reg, _ := countingRegistry(event.UserService)
	b, _ := newTestBus(t, broker, reg)

	ev := event.New(event.UserCreated, event.AuthService, "billing_service", map[string]any{"id": "u1"})
	assert.Error(t, b.Publish(context.Background(), ev))
}
