package api

import "context"

// Persister is the durable storage contract for saga records, keyed by
// (saga type name, correlation id). The orchestrator is its only consumer in
// this module; concrete backends live in internal/persistence behind the
// root-package constructors, and hosts may supply their own.
//
// Save and Remove for the same key must be observably atomic with respect to
// concurrent callers: the orchestrator serializes dispatches per key, but a
// persister may be shared by several processes.
type Persister interface {
	// Save upserts the record keyed by sagaType and the record's
	// correlation id.
	Save(ctx context.Context, sagaType string, entity Entity) error

	// Find returns the stored record, decoded into a fresh value from
	// newRecord. A genuine miss is ErrSagaNotFound; backend failures are
	// returned as themselves and must never be mistaken for a miss.
	Find(ctx context.Context, sagaType, correlationID string, newRecord EntityFactory) (Entity, error)

	// Remove deletes the entry for (sagaType, correlationID). Removing a
	// missing entry is not an error.
	Remove(ctx context.Context, sagaType, correlationID string) error
}
