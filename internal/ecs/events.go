package ecs

import "sync/atomic"

// EventKind enumerates the three lifecycle event kinds.
type EventKind string

const (
	EventCreated EventKind = "entity.created"
	EventUpdated EventKind = "entity.updated"
	EventDeleted EventKind = "entity.deleted"
)

// Change describes the triggering mutation carried by an Event: the
// component name involved (empty for whole-entity create/delete) and the
// active component-name set of the entity *after* the change, which hook
// predicates evaluate against.
type Change struct {
	Component        string
	ActiveComponents []string
}

// Event is a single entity lifecycle event, carrying a monotonically
// increasing sequence number.
type Event struct {
	Kind     EventKind
	Entity   Entity
	Change   Change
	Sequence uint64
}

// Sequencer hands out strictly increasing sequence numbers for events, so
// consumers can total-order events across concurrent publishers.
type Sequencer struct {
	counter uint64
}

// Next returns the next sequence number, starting at 1.
func (s *Sequencer) Next() uint64 {
	return atomic.AddUint64(&s.counter, 1)
}
