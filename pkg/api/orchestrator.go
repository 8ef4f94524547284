package api

import "context"

// SagaFactory returns a fresh, unbound saga instance.
type SagaFactory func() Saga

// SagaDefinition registers one workflow type with the orchestrator. NewRecord
// is the explicit association between the saga and its record type; the
// engine never discovers the record type by inspecting the saga.
type SagaDefinition struct {
	// Name is the stable saga type name used as the persister key prefix.
	Name string

	// New returns a fresh saga instance for one dispatch.
	New SagaFactory

	// NewRecord returns a fresh zero-valued record of the saga's data type.
	NewRecord EntityFactory
}

// Orchestrator routes correlated messages into saga instances: it
// finds-or-creates the record for a message's correlation id, dispatches the
// message into the saga's handler, and persists or removes the record
// depending on completion.
type Orchestrator interface {
	TimeoutScheduler

	// RegisterSaga adds a saga type to the registry. It returns
	// ErrInvalidDefinition for definitions that do not satisfy the saga
	// contract. All types must be registered before dispatch begins.
	RegisterSaga(def SagaDefinition) error

	// CreateSaga returns a fresh binding of a registered type with a
	// zero-valued record. ErrSagaNotRegistered if the type is unknown.
	CreateSaga(sagaType string) (*Binding, error)

	// FindSaga loads the record for (sagaType, correlationID) and returns a
	// binding over it. ErrSagaNotFound when no record exists; persister
	// failures surface as themselves.
	FindSaga(ctx context.Context, sagaType, correlationID string) (*Binding, error)

	// HandleMessage finds or creates the saga instance owning the message's
	// correlation id, dispatches the message, then saves the record, or
	// removes it if the handler marked the saga complete. Errors propagate
	// unmodified; nothing is persisted when the handler fails or ctx is
	// cancelled before persistence starts.
	HandleMessage(ctx context.Context, sagaType string, msg any, mctx MessageContext) error

	// CorrelationKey evaluates the declared correlation rules for msg.
	// Upstream dispatchers use it to compute MessageContext.CorrelationID.
	CorrelationKey(sagaType string, msg any) (string, error)

	// SaveSaga persists the binding's record: a pass-through to the
	// persister.
	SaveSaga(ctx context.Context, sagaType string, b *Binding) error

	// RemoveSaga deletes the binding's record: a pass-through to the
	// persister.
	RemoveSaga(ctx context.Context, sagaType string, b *Binding) error
}
