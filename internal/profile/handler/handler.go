// Package handler implements the user service's side of the sync bus: the
// local writes applied when identity facts arrive. Every write is
// idempotent on the foreign user id, independent of the dedup cache, so a
// replay after a listener restart cannot duplicate rows.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"edusync/internal/profile/models"
	"edusync/internal/profile/store"
	"edusync/internal/sync/event"
	"edusync/internal/sync/registry"
	"edusync/internal/sync/resolver"
	"edusync/pkg/platform/sentinel"
)

type handlers struct {
	profiles store.Store
	log      *slog.Logger
}

// New builds the user service's handler registry. The mapping is closed:
// facts not listed here are accepted as no-ops by the registry.
func New(profiles store.Store, log *slog.Logger) *registry.Registry {
	h := &handlers{profiles: profiles, log: log}

	r := registry.New(event.UserService, log)
	r.Register(event.UserCreated, h.userCreated)
	r.Register(event.UserUpdated, h.userUpdated)
	r.Register(event.UserDeleted, h.userDeleted)
	r.Register(event.UserActivated, h.userActivated)
	r.Register(event.UserDeactivated, h.userDeactivated)
	r.Register(event.UserVerified, h.userVerified)
	r.Register(event.UserRoleChanged, h.userRoleChanged)
	return r
}

func (h *handlers) userCreated(ctx context.Context, ev *event.Envelope) error {
	p, err := profileFromData(ev)
	if err != nil {
		return err
	}

	created, err := h.profiles.CreateIfAbsent(ctx, p)
	if err != nil {
		return fmt.Errorf("create profile for %s: %w", p.UserID, err)
	}
	if !created {
		// Row already exists for this foreign key; the event is a replay
		// or the profile was seeded another way. Either way: done.
		h.log.Debug("profile already exists, skipping create", "user_id", p.UserID, "event_id", ev.ID)
	}
	return nil
}

func (h *handlers) userUpdated(ctx context.Context, ev *event.Envelope) error {
	incoming, err := profileFromData(ev)
	if err != nil {
		return err
	}

	local, err := h.profiles.FindByUserID(ctx, incoming.UserID)
	if errors.Is(err, sentinel.ErrNotFound) {
		// An update for a user this service never saw; treat it as the
		// missed create and take the full after-state.
		_, err = h.profiles.CreateIfAbsent(ctx, incoming)
		return err
	}
	if err != nil {
		return fmt.Errorf("load profile %s: %w", incoming.UserID, err)
	}

	merged := h.merge(ev, incoming, local)
	if err := h.profiles.Update(ctx, merged); err != nil {
		return fmt.Errorf("apply update to %s: %w", merged.UserID, err)
	}
	return nil
}

// merge reconciles the incoming after-state with the local copy field by
// field. The resolver decides each conflicting family; today the identity
// service's values win outright.
func (h *handlers) merge(ev *event.Envelope, incoming, local *models.Profile) *models.Profile {
	in := func(v string) resolver.Candidate[string] {
		return resolver.Candidate[string]{Value: v, Source: ev.Source, ModifiedAt: ev.Timestamp}
	}
	loc := func(v string) resolver.Candidate[string] {
		return resolver.Candidate[string]{Value: v, Source: event.UserService, ModifiedAt: local.UpdatedAt}
	}

	return &models.Profile{
		UserID:   local.UserID,
		Email:    resolver.Email(in(incoming.Email), loc(local.Email)),
		FullName: resolver.FullName(in(incoming.FullName), loc(local.FullName)),
		Role:     resolver.Role(in(incoming.Role), loc(local.Role)),
		Active: resolver.ActiveStatus(
			resolver.Candidate[bool]{Value: incoming.Active, Source: ev.Source, ModifiedAt: ev.Timestamp},
			resolver.Candidate[bool]{Value: local.Active, Source: event.UserService, ModifiedAt: local.UpdatedAt},
		),
		Verified:  incoming.Verified,
		UpdatedAt: ev.Timestamp,
	}
}

func (h *handlers) userDeleted(ctx context.Context, ev *event.Envelope) error {
	userID, err := requireID(ev)
	if err != nil {
		return err
	}
	// Delete of a missing row is success; deletions replay harmlessly.
	return h.profiles.Delete(ctx, userID)
}

func (h *handlers) userActivated(ctx context.Context, ev *event.Envelope) error {
	return h.setActive(ctx, ev, true)
}

func (h *handlers) userDeactivated(ctx context.Context, ev *event.Envelope) error {
	return h.setActive(ctx, ev, false)
}

func (h *handlers) setActive(ctx context.Context, ev *event.Envelope, active bool) error {
	userID, err := requireID(ev)
	if err != nil {
		return err
	}

	p, err := h.profiles.FindByUserID(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		h.log.Debug("no local profile for status change", "user_id", userID, "event_id", ev.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load profile %s: %w", userID, err)
	}
	if p.Active == active {
		return nil
	}
	p.Active = active
	p.UpdatedAt = ev.Timestamp
	return h.profiles.Update(ctx, p)
}

func (h *handlers) userVerified(ctx context.Context, ev *event.Envelope) error {
	userID, err := requireID(ev)
	if err != nil {
		return err
	}

	p, err := h.profiles.FindByUserID(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		h.log.Debug("no local profile to verify", "user_id", userID, "event_id", ev.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load profile %s: %w", userID, err)
	}
	if p.Verified {
		return nil
	}
	p.Verified = true
	p.UpdatedAt = ev.Timestamp
	return h.profiles.Update(ctx, p)
}

func (h *handlers) userRoleChanged(ctx context.Context, ev *event.Envelope) error {
	userID, err := requireID(ev)
	if err != nil {
		return err
	}

	p, err := h.profiles.FindByUserID(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		h.log.Debug("no local profile for role change", "user_id", userID, "event_id", ev.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load profile %s: %w", userID, err)
	}

	p.Role = resolver.Role(
		resolver.Candidate[string]{Value: dataString(ev.Data, "role"), Source: ev.Source, ModifiedAt: ev.Timestamp},
		resolver.Candidate[string]{Value: p.Role, Source: event.UserService, ModifiedAt: p.UpdatedAt},
	)
	p.UpdatedAt = ev.Timestamp
	return h.profiles.Update(ctx, p)
}

// profileFromData rebuilds the full after-state carried by the envelope.
func profileFromData(ev *event.Envelope) (*models.Profile, error) {
	userID, err := requireID(ev)
	if err != nil {
		return nil, err
	}

	updatedAt := ev.Timestamp
	if raw := dataString(ev.Data, "updated_at"); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			updatedAt = ts
		}
	}

	return &models.Profile{
		UserID:    userID,
		Email:     dataString(ev.Data, "email"),
		FullName:  dataString(ev.Data, "full_name"),
		Role:      dataString(ev.Data, "role"),
		Active:    dataBool(ev.Data, "active"),
		Verified:  dataBool(ev.Data, "verified"),
		UpdatedAt: updatedAt,
	}, nil
}

func requireID(ev *event.Envelope) (string, error) {
	id := dataString(ev.Data, "id")
	if id == "" {
		return "", fmt.Errorf("event %s carries no entity id", ev.ID)
	}
	return id, nil
}

func dataString(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}

func dataBool(data map[string]any, key string) bool {
	v, _ := data[key].(bool)
	return v
}
