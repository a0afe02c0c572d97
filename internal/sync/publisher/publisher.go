// Package publisher turns local state changes into envelopes on the bus.
// Each process constructs one Publisher with its own service as the fixed
// source; every business fact gets one narrow builder method with its
// per-fact default target.
//
// Publish is synchronous and unretried: a broker failure propagates to the
// caller, so a publisher invoked inside a write-request path couples that
// request's latency — and, if the error goes unhandled, its outcome — to
// broker availability. That coupling is accepted, not guaranteed away.
package publisher

import (
	"context"
	"time"

	"edusync/internal/sync/event"
)

// EventBus is the slice of the bus a publisher needs.
type EventBus interface {
	Publish(ctx context.Context, ev *event.Envelope) error
}

// Publisher builds envelopes for one source service.
type Publisher struct {
	bus    EventBus
	source event.Service
}

// New constructs a publisher emitting on behalf of source.
func New(bus EventBus, source event.Service) *Publisher {
	return &Publisher{bus: bus, source: source}
}

// UserPayload carries the full after-state of a user row, not a diff.
type UserPayload struct {
	ID        string
	Email     string
	FullName  string
	Role      string
	Active    bool
	Verified  bool
	UpdatedAt time.Time
}

func (u UserPayload) toData() map[string]any {
	return map[string]any{
		"id":         u.ID,
		"email":      u.Email,
		"full_name":  u.FullName,
		"role":       u.Role,
		"active":     u.Active,
		"verified":   u.Verified,
		"updated_at": u.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// MemberPayload describes one user's membership in an institution.
type MemberPayload struct {
	ID            string
	UserID        string
	InstitutionID string
	Role          string
}

func (m MemberPayload) toData() map[string]any {
	return map[string]any{
		"id":             m.ID,
		"user_id":        m.UserID,
		"institution_id": m.InstitutionID,
		"role":           m.Role,
	}
}

// InstitutionPayload carries the full after-state of an institution.
type InstitutionPayload struct {
	ID     string
	Name   string
	Active bool
}

func (i InstitutionPayload) toData() map[string]any {
	return map[string]any{
		"id":     i.ID,
		"name":   i.Name,
		"active": i.Active,
	}
}

// UserCreated announces a new user to the profile-owning service.
func (p *Publisher) UserCreated(ctx context.Context, u UserPayload) error {
	return p.bus.Publish(ctx, event.New(event.UserCreated, p.source, event.UserService, u.toData()))
}

// UserUpdated broadcasts the new after-state of a user to every service
// holding a denormalized copy.
func (p *Publisher) UserUpdated(ctx context.Context, u UserPayload) error {
	return p.bus.Publish(ctx, event.New(event.UserUpdated, p.source, event.Broadcast, u.toData()))
}

// UserDeleted broadcasts a user removal.
func (p *Publisher) UserDeleted(ctx context.Context, userID string) error {
	return p.bus.Publish(ctx, event.New(event.UserDeleted, p.source, event.Broadcast, map[string]any{"id": userID}))
}

// UserActivated broadcasts an account reactivation.
func (p *Publisher) UserActivated(ctx context.Context, userID string) error {
	return p.bus.Publish(ctx, event.New(event.UserActivated, p.source, event.Broadcast, map[string]any{"id": userID}))
}

// UserDeactivated broadcasts an account deactivation.
func (p *Publisher) UserDeactivated(ctx context.Context, userID string) error {
	return p.bus.Publish(ctx, event.New(event.UserDeactivated, p.source, event.Broadcast, map[string]any{"id": userID}))
}

// UserVerified tells the profile-owning service a user passed verification.
func (p *Publisher) UserVerified(ctx context.Context, userID string) error {
	return p.bus.Publish(ctx, event.New(event.UserVerified, p.source, event.UserService, map[string]any{"id": userID}))
}

// UserRoleChanged broadcasts a role reassignment.
func (p *Publisher) UserRoleChanged(ctx context.Context, userID, role string) error {
	return p.bus.Publish(ctx, event.New(event.UserRoleChanged, p.source, event.Broadcast, map[string]any{
		"id":   userID,
		"role": role,
	}))
}

// ProfileChanged reports a profile edit back to the identity service,
// which remains authoritative for conflicting fields.
func (p *Publisher) ProfileChanged(ctx context.Context, u UserPayload) error {
	return p.bus.Publish(ctx, event.New(event.UserUpdated, p.source, event.AuthService, u.toData()))
}

// MemberAdded tells the notification service about a new membership.
func (p *Publisher) MemberAdded(ctx context.Context, m MemberPayload) error {
	return p.bus.Publish(ctx, event.New(event.MemberAdded, p.source, event.NotificationService, m.toData()))
}

// MemberRemoved tells the notification service a membership ended.
func (p *Publisher) MemberRemoved(ctx context.Context, m MemberPayload) error {
	return p.bus.Publish(ctx, event.New(event.MemberRemoved, p.source, event.NotificationService, m.toData()))
}

// InstitutionCreated broadcasts a new institution.
func (p *Publisher) InstitutionCreated(ctx context.Context, inst InstitutionPayload) error {
	return p.bus.Publish(ctx, event.New(event.InstitutionCreated, p.source, event.Broadcast, inst.toData()))
}

// InstitutionUpdated broadcasts an institution's new after-state.
func (p *Publisher) InstitutionUpdated(ctx context.Context, inst InstitutionPayload) error {
	return p.bus.Publish(ctx, event.New(event.InstitutionUpdated, p.source, event.Broadcast, inst.toData()))
}

// InstitutionDeactivated broadcasts an institution shutdown.
func (p *Publisher) InstitutionDeactivated(ctx context.Context, institutionID string) error {
	return p.bus.Publish(ctx, event.New(event.InstitutionDeactivated, p.source, event.Broadcast, map[string]any{"id": institutionID}))
}
