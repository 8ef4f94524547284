package api

import "time"

// State labels written by the framework. Workflow logic may assign any other
// label to Record.State; these two are the only ones the framework touches.
const (
	StateStarted   = "STARTED"
	StateCompleted = "COMPLETED"
)

// Record is the durable state of one saga instance. Application saga data
// embeds Record so the framework fields travel with the workflow's own
// fields through the persister:
//
//	type OrderData struct {
//	    api.Record
//	    OrderID string
//	    Total   float64
//	}
//
// ID and CorrelationID are assigned at creation and never change afterward.
// State starts at StateStarted; MarkAsComplete sets it to StateCompleted.
type Record struct {
	ID                string
	CorrelationID     string
	Originator        string
	OriginalMessageID string
	State             string
	CreatedAt         time.Time
	LastUpdated       time.Time
}

// Meta returns the framework portion of the record. It makes any struct
// embedding Record satisfy Entity.
func (r *Record) Meta() *Record { return r }

// Entity is a persisted saga record. Concrete types are application structs
// embedding Record; the orchestrator reaches the framework fields through
// Meta.
type Entity interface {
	Meta() *Record
}

// EntityFactory returns a fresh zero-valued record of the concrete type
// associated with a saga. It is the explicit type association supplied at
// registration; the engine never inspects saga types to discover it.
type EntityFactory func() Entity
