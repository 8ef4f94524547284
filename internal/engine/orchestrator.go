package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/msbolton/conduit/internal/taskqueue"
	"github.com/msbolton/conduit/pkg/api"
)

// Engine is the saga orchestrator: the single consumer of the persister
// contract. It finds or creates the record owning a message's correlation
// id, dispatches the message into a fresh saga instance bound to that
// record, and persists or removes the record depending on completion.
type Engine struct {
	persister api.Persister
	timeouts  taskqueue.Queue
	registry  *sagaRegistry
	locks     *keyedLocks
	observer  api.Observer
	endpoint  string
}

// Config describes how to construct an Engine. Only Persister is required;
// without Timeouts, RequestTimeout fails with ErrNoTimeoutScheduler.
type Config struct {
	Persister api.Persister
	Timeouts  taskqueue.Queue
	Observer  api.Observer

	// Endpoint names this process in timeout deliveries' Origin field.
	Endpoint string
}

// NewEngine creates a new orchestrator from cfg.
func NewEngine(cfg Config) *Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "conduit"
	}
	return &Engine{
		persister: cfg.Persister,
		timeouts:  cfg.Timeouts,
		registry:  newSagaRegistry(),
		locks:     newKeyedLocks(),
		observer:  obs,
		endpoint:  endpoint,
	}
}

var _ api.Orchestrator = (*Engine)(nil)

// TimeoutQueue exposes the configured delay queue so a worker can drain it.
func (e *Engine) TimeoutQueue() taskqueue.Queue { return e.timeouts }

func (e *Engine) RegisterSaga(def api.SagaDefinition) error {
	return e.registry.register(def)
}

func (e *Engine) CreateSaga(sagaType string) (*api.Binding, error) {
	reg, err := e.registry.get(sagaType)
	if err != nil {
		return nil, err
	}
	return api.Bind(reg.def.New(), reg.def.NewRecord(), sagaType, e)
}

func (e *Engine) FindSaga(ctx context.Context, sagaType, correlationID string) (*api.Binding, error) {
	reg, err := e.registry.get(sagaType)
	if err != nil {
		return nil, err
	}

	// A persister failure surfaces as itself here; only a genuine miss is
	// ErrSagaNotFound.
	entity, err := e.persister.Find(ctx, sagaType, correlationID, reg.def.NewRecord)
	if err != nil {
		return nil, err
	}
	return api.Bind(reg.def.New(), entity, sagaType, e)
}

func (e *Engine) HandleMessage(ctx context.Context, sagaType string, msg any, mctx api.MessageContext) error {
	reg, err := e.registry.get(sagaType)
	if err != nil {
		return err
	}

	key := mctx.CorrelationID()
	if key == "" {
		return fmt.Errorf("%w: saga %q message %T", api.ErrMissingCorrelationID, sagaType, msg)
	}

	unlock := e.locks.lock(sagaType, key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	created := false
	entity, err := e.persister.Find(ctx, sagaType, key, reg.def.NewRecord)
	switch {
	case errors.Is(err, api.ErrSagaNotFound):
		entity = newRecord(reg, key, mctx)
		created = true
	case err != nil:
		return err
	}

	binding, err := api.Bind(reg.def.New(), entity, sagaType, e)
	if err != nil {
		return err
	}

	meta := entity.Meta()
	if created {
		e.observer.OnSagaStarted(ctx, sagaType, meta)
	}

	msgType := fmt.Sprintf("%T", msg)
	if !binding.CanHandle(msg) {
		// Deliberate no-op: the saga ignores this message type. The record
		// created in this cycle is still persisted below, per the
		// find-or-create contract.
		e.observer.OnMessageIgnored(ctx, sagaType, key, msgType)
	} else {
		start := time.Now()
		handleErr := binding.Handle(ctx, mctx, msg)
		e.observer.OnMessageHandled(ctx, sagaType, meta, msgType, handleErr, time.Since(start))
		if handleErr != nil {
			// Propagate unmodified; nothing is persisted for this cycle.
			return handleErr
		}
		if !binding.IsCompleted() {
			meta.LastUpdated = time.Now().UTC()
		}
	}

	// Cancellation may take effect up to this point and leaves the stored
	// record untouched. Once save/remove is issued it runs to completion:
	// partial writes are disallowed.
	if err := ctx.Err(); err != nil {
		return err
	}
	pctx := context.WithoutCancel(ctx)

	if binding.IsCompleted() {
		if err := e.persister.Remove(pctx, sagaType, key); err != nil {
			return err
		}
		e.observer.OnSagaCompleted(ctx, sagaType, meta)
		return nil
	}
	return e.persister.Save(pctx, sagaType, entity)
}

func newRecord(reg *registration, correlationID string, mctx api.MessageContext) api.Entity {
	entity := reg.def.NewRecord()
	meta := entity.Meta()
	now := time.Now().UTC()

	meta.ID = uuid.NewString()
	meta.CorrelationID = correlationID
	meta.Originator = mctx.Origin()
	meta.OriginalMessageID = mctx.MessageID()
	meta.State = api.StateStarted
	meta.CreatedAt = now
	meta.LastUpdated = now
	return entity
}

func (e *Engine) CorrelationKey(sagaType string, msg any) (string, error) {
	reg, err := e.registry.get(sagaType)
	if err != nil {
		return "", err
	}
	return reg.cfg.Correlation().KeyFor(msg)
}

func (e *Engine) SaveSaga(ctx context.Context, sagaType string, b *api.Binding) error {
	return e.persister.Save(ctx, sagaType, b.Entity())
}

func (e *Engine) RemoveSaga(ctx context.Context, sagaType string, b *api.Binding) error {
	return e.persister.Remove(ctx, sagaType, b.Entity().Meta().CorrelationID)
}

func (e *Engine) ScheduleTimeout(ctx context.Context, req api.TimeoutRequest) error {
	if e.timeouts == nil {
		return fmt.Errorf("%w: saga %q", api.ErrNoTimeoutScheduler, req.SagaType)
	}

	t := taskqueue.Task{
		ID:            uuid.NewString(),
		SagaType:      req.SagaType,
		CorrelationID: req.CorrelationID,
		Message:       req.Message,
		Origin:        e.endpoint,
		EnqueuedAt:    time.Now(),
		NotBefore:     req.At,
	}
	if err := e.timeouts.Enqueue(ctx, t); err != nil {
		return fmt.Errorf("schedule timeout for %s/%s: %w", req.SagaType, req.CorrelationID, err)
	}
	e.observer.OnTimeoutScheduled(ctx, req.SagaType, req.CorrelationID, req.At)
	return nil
}
