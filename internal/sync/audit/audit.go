// Package audit keeps a short-lived external record of every event a
// listener processed. The record is independent of the in-memory dedup
// cache and survives process restarts, but it expires after seven days, so
// its absence never proves an event was not processed.
package audit

import (
	"context"
	"time"

	"edusync/internal/sync/event"
)

// Retention is how long a metadata record outlives its envelope.
const Retention = 7 * 24 * time.Hour

// Record is the metadata kept per processed event. The envelope's data
// payload is deliberately not retained.
type Record struct {
	EventType     event.Type    `json:"event_type"`
	Source        event.Service `json:"source_service"`
	Target        event.Service `json:"target_service"`
	Timestamp     time.Time     `json:"timestamp"`
	CorrelationID string        `json:"correlation_id,omitempty"`
}

// FromEnvelope extracts the audit metadata from a processed envelope.
func FromEnvelope(e *event.Envelope) Record {
	return Record{
		EventType:     e.Type,
		Source:        e.Source,
		Target:        e.Target,
		Timestamp:     e.Timestamp,
		CorrelationID: e.CorrelationID,
	}
}

// Store persists audit metadata keyed by event id.
type Store interface {
	// Append records metadata for one processed event. Existing records
	// for the same id are overwritten; redelivered ids are rare and the
	// metadata is identical.
	Append(ctx context.Context, eventID string, rec Record) error

	// Find returns the metadata for an event id, or sentinel.ErrNotFound
	// once the record has expired or was never written.
	Find(ctx context.Context, eventID string) (*Record, error)
}
