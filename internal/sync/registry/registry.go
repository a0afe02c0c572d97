// Package registry maps event types to a consuming service's local-write
// logic. Each service registers one closed set of handlers at startup;
// dispatch for an unregistered type is accepted as a no-op so consumers
// stay forward compatible with a grown taxonomy.
package registry

import (
	"context"
	"log/slog"

	"edusync/internal/sync/event"
)

// HandlerFunc applies one synchronized fact to local state. The write must
// be idempotent on the entity's foreign key, independently of the dedup
// cache. Handlers are leaves: they never publish follow-up events.
type HandlerFunc func(ctx context.Context, ev *event.Envelope) error

// Registry dispatches envelopes to the handler registered for their type.
type Registry struct {
	service  event.Service
	handlers map[event.Type]HandlerFunc
	log      *slog.Logger
}

// New creates an empty registry for the given consuming service.
func New(service event.Service, log *slog.Logger) *Registry {
	return &Registry{
		service:  service,
		handlers: make(map[event.Type]HandlerFunc),
		log:      log,
	}
}

// Register adds the handler for one event type, replacing any previous one.
func (r *Registry) Register(t event.Type, fn HandlerFunc) {
	r.handlers[t] = fn
}

// Handles reports whether a handler is registered for the type.
func (r *Registry) Handles(t event.Type) bool {
	_, ok := r.handlers[t]
	return ok
}

// Service returns the consuming service this registry belongs to.
func (r *Registry) Service() event.Service {
	return r.service
}

// Dispatch routes the envelope to its handler. An event type absent from
// the map is treated as accepted: success with no local write.
func (r *Registry) Dispatch(ctx context.Context, ev *event.Envelope) error {
	fn, ok := r.handlers[ev.Type]
	if !ok {
		r.log.Debug("no handler for event type, accepting as no-op",
			"service", r.service,
			"event_type", ev.Type,
			"event_id", ev.ID,
		)
		return nil
	}
	return fn(ctx, ev)
}
