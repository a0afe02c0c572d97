// Package event defines the data contract for one synchronized business
// fact: the envelope, the closed event-type taxonomy, the known-service
// registry, and the channel naming convention shared by every service on
// the bus.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service identifies one deployable service on the platform.
type Service string

const (
	// AuthService owns identity and is the authoritative source for
	// user credentials, roles and account status.
	AuthService         Service = "auth_service"
	UserService         Service = "user_service"
	NotificationService Service = "notification_service"
	ApplicationService  Service = "application_service"
	InternshipService   Service = "internship_service"

	// Broadcast is the target sentinel meaning "every known service".
	Broadcast Service = "all"
)

// knownServices is ordered; fan-out and test output depend on stable order.
var knownServices = []Service{
	AuthService,
	UserService,
	NotificationService,
	ApplicationService,
	InternshipService,
}

// KnownServices returns every registered service in stable order.
func KnownServices() []Service {
	out := make([]Service, len(knownServices))
	copy(out, knownServices)
	return out
}

// Known reports whether s is a registered service. Broadcast is a routing
// sentinel, not a service, and is not Known.
func (s Service) Known() bool {
	for _, k := range knownServices {
		if s == k {
			return true
		}
	}
	return false
}

// ChannelPrefix is the fixed naming convention for per-service channels.
const ChannelPrefix = "sync_events_"

// Channel returns the broker channel this service listens on.
func (s Service) Channel() string {
	return ChannelPrefix + string(s)
}

// Type is a member of the closed taxonomy of lifecycle facts. Growing the
// taxonomy is additive; consumers treat unrecognized types as accepted
// no-ops so older services keep working against newer producers.
type Type string

const (
	UserCreated     Type = "user_created"
	UserUpdated     Type = "user_updated"
	UserDeleted     Type = "user_deleted"
	UserActivated   Type = "user_activated"
	UserDeactivated Type = "user_deactivated"
	UserVerified    Type = "user_verified"
	UserRoleChanged Type = "user_role_changed"

	MemberAdded   Type = "member_added"
	MemberRemoved Type = "member_removed"

	InstitutionCreated     Type = "institution_created"
	InstitutionUpdated     Type = "institution_updated"
	InstitutionDeactivated Type = "institution_deactivated"
)

var knownTypes = map[Type]struct{}{
	UserCreated:            {},
	UserUpdated:            {},
	UserDeleted:            {},
	UserActivated:          {},
	UserDeactivated:        {},
	UserVerified:           {},
	UserRoleChanged:        {},
	MemberAdded:            {},
	MemberRemoved:          {},
	InstitutionCreated:     {},
	InstitutionUpdated:     {},
	InstitutionDeactivated: {},
}

// Known reports whether t is part of the current taxonomy.
func (t Type) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// Envelope wraps one synchronized fact for transmission. Data carries the
// full after-state of the changed entity, not a diff, so consumers never
// need to read another service's tables to reconstruct it.
type Envelope struct {
	// ID is minted fresh per emission and never reused, even when a
	// producer resends a logical retry of the same fact.
	ID            string         `json:"event_id"`
	Type          Type           `json:"event_type"`
	Source        Service        `json:"source_service"`
	Target        Service        `json:"target_service"`
	Timestamp     time.Time      `json:"timestamp"`
	Data          map[string]any `json:"data"`
	CorrelationID string         `json:"correlation_id,omitempty"`

	// RetryCount and MaxRetries are producer-side resend bookkeeping.
	// They are unrelated to consumer redelivery, which does not exist.
	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// New builds an envelope with a fresh event id and a UTC timestamp.
// CorrelationID defaults to the affected entity's own id when data carries
// one; causally related events can override it afterwards.
func New(t Type, source, target Service, data map[string]any) *Envelope {
	e := &Envelope{
		ID:         uuid.NewString(),
		Type:       t,
		Source:     source,
		Target:     target,
		Timestamp:  time.Now().UTC(),
		Data:       data,
		MaxRetries: 3,
	}
	if id, ok := data["id"].(string); ok {
		e.CorrelationID = id
	}
	return e
}

// Validate enforces the routing invariant: source and target must both be
// known services, unless target is the Broadcast sentinel.
func (e *Envelope) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("envelope is missing an event id")
	}
	if !e.Type.Known() {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if !e.Source.Known() {
		return fmt.Errorf("unknown source service %q", e.Source)
	}
	if e.Target != Broadcast && !e.Target.Known() {
		return fmt.Errorf("unknown target service %q", e.Target)
	}
	return nil
}

// FanOut computes the channel set one publish attempt covers: a single
// channel for a directed event, or every known service channel for a
// Broadcast target. Fan-out across channels is not atomic.
func (e *Envelope) FanOut() []string {
	if e.Target != Broadcast {
		return []string{e.Target.Channel()}
	}
	channels := make([]string, 0, len(knownServices))
	for _, s := range knownServices {
		channels = append(channels, s.Channel())
	}
	return channels
}

// Marshal serializes the envelope to its wire form, a single JSON blob.
func (e *Envelope) Marshal() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope %s: %w", e.ID, err)
	}
	return payload, nil
}

// Unmarshal parses a wire payload back into an envelope.
func Unmarshal(payload []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return &e, nil
}

// String is used in log attributes.
func (e *Envelope) String() string {
	return fmt.Sprintf("%s[%s %s->%s]", e.Type, e.ID, e.Source, e.Target)
}
