// Package resolver decides which value wins when two services hold
// different copies of the same field. Resolution is pure and stateless so
// handlers can call it inline during a local write.
//
// The current policy for every field family is fixed authoritative-source
// wins: the identity service's value is always taken, regardless of which
// candidate was modified more recently. Timestamps are carried on each
// candidate so a last-writer-wins policy could be introduced per family,
// but callers must not assume timestamp comparison drives the outcome.
package resolver

import (
	"time"

	"edusync/internal/sync/event"
)

// Candidate is one service's view of a synchronized field.
type Candidate[T any] struct {
	Value      T
	Source     event.Service
	ModifiedAt time.Time
}

// resolve picks the candidate owned by the authoritative identity service.
// When neither side is authoritative the first candidate is kept, which
// keeps resolution deterministic for call sites that pass (incoming, local).
func resolve[T any](a, b Candidate[T]) Candidate[T] {
	if a.Source == event.AuthService {
		return a
	}
	if b.Source == event.AuthService {
		return b
	}
	return a
}

// Email resolves the email field family.
func Email(a, b Candidate[string]) string {
	return resolve(a, b).Value
}

// Role resolves the role field family.
func Role(a, b Candidate[string]) string {
	return resolve(a, b).Value
}

// ActiveStatus resolves the account active-status family.
func ActiveStatus(a, b Candidate[bool]) bool {
	return resolve(a, b).Value
}

// FullName resolves the display-name family.
func FullName(a, b Candidate[string]) string {
	return resolve(a, b).Value
}
