package api

import "errors"

var (
	// ErrSagaNotFound is returned by Persister.Find and Orchestrator.FindSaga
	// when no record exists for a correlation id. It is an expected outcome:
	// HandleMessage reacts to it by creating a new instance. Backend failures
	// are never mapped to this error.
	ErrSagaNotFound = errors.New("saga not found")

	// ErrSagaNotRegistered is returned when a saga type name has not been
	// registered with the orchestrator.
	ErrSagaNotRegistered = errors.New("saga type not registered")

	// ErrInvalidDefinition is returned by RegisterSaga for definitions that
	// do not satisfy the saga contract (empty name, nil factories, or an
	// Init that declares no handlers).
	ErrInvalidDefinition = errors.New("invalid saga definition")

	// ErrNoTimeoutHandler is returned by RequestTimeout when the saga
	// declares no handler for the timeout message's type. The check runs
	// before anything is scheduled.
	ErrNoTimeoutHandler = errors.New("saga has no handler for timeout message")

	// ErrNoTimeoutScheduler is returned by RequestTimeout when the
	// orchestrator was built without a timeout queue.
	ErrNoTimeoutScheduler = errors.New("no timeout scheduler configured")

	// ErrNoOriginator is returned by ReplyToOriginator when the bound record
	// has no originator; a reply is never silently dropped.
	ErrNoOriginator = errors.New("saga record has no originator")

	// ErrMissingCorrelationID is returned by HandleMessage when the message
	// context carries an empty correlation id.
	ErrMissingCorrelationID = errors.New("message context has no correlation id")

	// ErrNoCorrelationRule is returned by CorrelationKey when no rule is
	// declared for the message's type.
	ErrNoCorrelationRule = errors.New("no correlation rule for message type")

	// ErrNoTransport is returned by DeliveryContext operations when no
	// Transport was supplied.
	ErrNoTransport = errors.New("delivery context has no transport")
)
