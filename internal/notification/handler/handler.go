// Package handler maintains the notification service's recipient roster
// from facts on the sync bus. Delivery itself happens elsewhere; these
// handlers only keep the local copy current.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"edusync/internal/notification/roster"
	"edusync/internal/sync/event"
	"edusync/internal/sync/registry"
	"edusync/pkg/platform/sentinel"
)

type handlers struct {
	recipients roster.Store
	log        *slog.Logger
}

// New builds the notification service's handler registry. Institution
// facts are deliberately unregistered: the roster does not track them, and
// the registry accepts them as no-ops.
func New(recipients roster.Store, log *slog.Logger) *registry.Registry {
	h := &handlers{recipients: recipients, log: log}

	r := registry.New(event.NotificationService, log)
	r.Register(event.UserUpdated, h.userUpserted)
	r.Register(event.UserDeleted, h.userDeleted)
	r.Register(event.UserActivated, h.userActivated)
	r.Register(event.UserDeactivated, h.userDeactivated)
	r.Register(event.MemberAdded, h.memberAdded)
	r.Register(event.MemberRemoved, h.memberRemoved)
	return r
}

func (h *handlers) userUpserted(ctx context.Context, ev *event.Envelope) error {
	userID := dataString(ev.Data, "id")
	if userID == "" {
		return fmt.Errorf("event %s carries no entity id", ev.ID)
	}

	existing, err := h.recipients.Find(ctx, userID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("load recipient %s: %w", userID, err)
	}

	rec := &roster.Recipient{
		UserID:   userID,
		Email:    dataString(ev.Data, "email"),
		FullName: dataString(ev.Data, "full_name"),
		Active:   dataBool(ev.Data, "active"),
	}
	if existing != nil {
		// Membership is owned by membership events, not user updates.
		rec.InstitutionID = existing.InstitutionID
	}
	return h.recipients.Upsert(ctx, rec)
}

func (h *handlers) userDeleted(ctx context.Context, ev *event.Envelope) error {
	userID := dataString(ev.Data, "id")
	if userID == "" {
		return fmt.Errorf("event %s carries no entity id", ev.ID)
	}
	return h.recipients.Remove(ctx, userID)
}

func (h *handlers) userActivated(ctx context.Context, ev *event.Envelope) error {
	return h.setActive(ctx, ev, true)
}

func (h *handlers) userDeactivated(ctx context.Context, ev *event.Envelope) error {
	return h.setActive(ctx, ev, false)
}

func (h *handlers) setActive(ctx context.Context, ev *event.Envelope, active bool) error {
	userID := dataString(ev.Data, "id")
	if userID == "" {
		return fmt.Errorf("event %s carries no entity id", ev.ID)
	}
	return h.recipients.SetActive(ctx, userID, active)
}

func (h *handlers) memberAdded(ctx context.Context, ev *event.Envelope) error {
	userID := dataString(ev.Data, "user_id")
	if userID == "" {
		return fmt.Errorf("event %s carries no member user id", ev.ID)
	}

	existing, err := h.recipients.Find(ctx, userID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("load recipient %s: %w", userID, err)
	}

	rec := &roster.Recipient{UserID: userID, Active: true}
	if existing != nil {
		rec = existing
	}
	rec.InstitutionID = dataString(ev.Data, "institution_id")
	return h.recipients.Upsert(ctx, rec)
}

func (h *handlers) memberRemoved(ctx context.Context, ev *event.Envelope) error {
	userID := dataString(ev.Data, "user_id")
	if userID == "" {
		return fmt.Errorf("event %s carries no member user id", ev.ID)
	}

	existing, err := h.recipients.Find(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load recipient %s: %w", userID, err)
	}
	existing.InstitutionID = ""
	return h.recipients.Upsert(ctx, existing)
}

func dataString(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}

func dataBool(data map[string]any, key string) bool {
	v, _ := data[key].(bool)
	return v
}
