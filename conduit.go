package conduit

import (
	"context"
	"database/sql"
	"errors"

	"github.com/msbolton/conduit/internal/engine"
	"github.com/msbolton/conduit/internal/persistence"
	"github.com/msbolton/conduit/internal/taskqueue"
	"github.com/msbolton/conduit/pkg/api"
	"github.com/msbolton/conduit/pkg/worker"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Record               = api.Record
	Entity               = api.Entity
	EntityFactory        = api.EntityFactory
	Saga                 = api.Saga
	SagaFactory          = api.SagaFactory
	SagaDefinition       = api.SagaDefinition
	Base                 = api.Base
	Binding              = api.Binding
	Config               = api.Config
	HandlerFunc          = api.HandlerFunc
	KeyExtractor         = api.KeyExtractor
	CorrelationConfig    = api.CorrelationConfig
	MessageContext       = api.MessageContext
	DeliveryContext      = api.DeliveryContext
	Transport            = api.Transport
	Orchestrator         = api.Orchestrator
	Persister            = api.Persister
	TimeoutScheduler     = api.TimeoutScheduler
	TimeoutRequest       = api.TimeoutRequest
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
	PrometheusObserver   = api.PrometheusObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver    = api.NewLoggingObserver
	NewCompositeObserver  = api.NewCompositeObserver
	NewPrometheusObserver = api.NewPrometheusObserver
)

// Re-export the error sentinels callers are expected to match with errors.Is.

var (
	ErrSagaNotFound         = api.ErrSagaNotFound
	ErrSagaNotRegistered    = api.ErrSagaNotRegistered
	ErrInvalidDefinition    = api.ErrInvalidDefinition
	ErrNoTimeoutHandler     = api.ErrNoTimeoutHandler
	ErrNoTimeoutScheduler   = api.ErrNoTimeoutScheduler
	ErrNoOriginator         = api.ErrNoOriginator
	ErrMissingCorrelationID = api.ErrMissingCorrelationID
	ErrNoCorrelationRule    = api.ErrNoCorrelationRule
	ErrNoTransport          = api.ErrNoTransport
)

// Re-export record state labels for convenience.

const (
	StateStarted   = api.StateStarted
	StateCompleted = api.StateCompleted
)

// Orchestrator constructors
// These wrap the internal packages so external callers never need to
// import them directly.

// Option customizes an orchestrator built by one of the New*Orchestrator
// constructors.
type Option func(*engine.Config)

// WithObserver attaches an Observer to the orchestrator. Use
// NewCompositeObserver to attach more than one.
func WithObserver(obs Observer) Option {
	return func(cfg *engine.Config) { cfg.Observer = obs }
}

// WithEndpoint sets the logical endpoint name the orchestrator stamps as the
// origin of messages it sends on a saga's behalf. Defaults to "conduit".
func WithEndpoint(name string) Option {
	return func(cfg *engine.Config) { cfg.Endpoint = name }
}

// NewInMemoryOrchestrator returns an Orchestrator backed entirely by
// in-memory storage: records and pending timeouts are lost on process exit.
// Best suited for tests and local development.
func NewInMemoryOrchestrator(opts ...Option) Orchestrator {
	cfg := engine.Config{
		Persister: persistence.NewInMemoryStore(),
		Timeouts:  taskqueue.NewInMemoryQueue(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return engine.NewEngine(cfg)
}

// NewSQLiteOrchestrator returns an Orchestrator that persists saga records
// and pending timeouts in a SQLite database. The required tables are created
// if they do not exist.
func NewSQLiteOrchestrator(db *sql.DB, opts ...Option) (Orchestrator, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	queue, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}
	cfg := engine.Config{Persister: store, Timeouts: queue}
	for _, opt := range opts {
		opt(&cfg)
	}
	return engine.NewEngine(cfg), nil
}

// NewPostgresOrchestrator returns an Orchestrator that persists saga records
// in PostgreSQL. Pending timeouts are kept in-memory; pair with an external
// scheduler if timeouts must survive a restart.
func NewPostgresOrchestrator(db *sql.DB, opts ...Option) (Orchestrator, error) {
	store, err := persistence.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	cfg := engine.Config{Persister: store, Timeouts: taskqueue.NewInMemoryQueue()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return engine.NewEngine(cfg), nil
}

// NewRedisOrchestrator returns an Orchestrator that persists saga records
// and pending timeouts in Redis under the given key prefix.
func NewRedisOrchestrator(client *redis.Client, prefix string, opts ...Option) Orchestrator {
	cfg := engine.Config{
		Persister: persistence.NewRedisStore(client, prefix),
		Timeouts:  taskqueue.NewRedisQueue(client, prefix),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return engine.NewEngine(cfg)
}

// NewMongoOrchestrator returns an Orchestrator that persists saga records in
// the given MongoDB collection. A unique compound index on
// (saga type, correlation id) is ensured on construction. Pending timeouts
// are kept in-memory.
func NewMongoOrchestrator(ctx context.Context, client *mongo.Client, database, collection string, opts ...Option) (Orchestrator, error) {
	store, err := persistence.NewMongoStore(ctx, client, database, collection)
	if err != nil {
		return nil, err
	}
	cfg := engine.Config{Persister: store, Timeouts: taskqueue.NewInMemoryQueue()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return engine.NewEngine(cfg), nil
}

// NewTimeoutWorker returns a worker that drains the orchestrator's timeout
// queue and delivers due timeout messages back into HandleMessage. Outgoing
// messages a saga sends while handling a timeout go through transport, which
// may be nil when sagas only mutate state.
//
// The orchestrator must have been built by one of the New*Orchestrator
// constructors in this package.
func NewTimeoutWorker(orch Orchestrator, transport Transport) (*worker.Worker, error) {
	eng, ok := orch.(*engine.Engine)
	if !ok {
		return nil, errors.New("conduit: orchestrator was not built by this package")
	}
	return worker.New(orch, eng.TimeoutQueue(), transport), nil
}

// Convenience helpers that just forward to the underlying Orchestrator.

// HandleMessage routes msg to the saga instance owning its correlation id,
// creating the instance when the message starts a new one.
func HandleMessage(ctx context.Context, orch Orchestrator, sagaType string, msg any, mctx MessageContext) error {
	return orch.HandleMessage(ctx, sagaType, msg, mctx)
}

// FindSaga fetches a binding over the record for the given correlation id,
// or ErrSagaNotFound.
func FindSaga(ctx context.Context, orch Orchestrator, sagaType, correlationID string) (*api.Binding, error) {
	return orch.FindSaga(ctx, sagaType, correlationID)
}
