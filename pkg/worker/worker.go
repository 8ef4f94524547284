package worker

import (
	"context"
	"errors"

	"github.com/msbolton/conduit/internal/taskqueue"
	"github.com/msbolton/conduit/pkg/api"
)

// ContextFactory builds the MessageContext for one timeout delivery. The
// default factory produces a DeliveryContext carrying the stored correlation
// id and the given transport.
type ContextFactory func(t taskqueue.Task) api.MessageContext

// Worker drains due timeout tasks from a delay queue and re-invokes the
// orchestrator with the stored timeout message. It is the consumer half of
// the durable-timer contract: RequestTimeout only enqueues, a Worker
// delivers.
type Worker struct {
	orchestrator api.Orchestrator
	queue        taskqueue.Queue
	newContext   ContextFactory
}

// New creates a Worker. transport carries messages the saga sends while
// handling the timeout; it may be nil for sagas whose timeout handlers do
// not send.
func New(orch api.Orchestrator, queue taskqueue.Queue, transport api.Transport) *Worker {
	return &Worker{
		orchestrator: orch,
		queue:        queue,
		newContext: func(t taskqueue.Task) api.MessageContext {
			return &api.DeliveryContext{
				Correlation: t.CorrelationID,
				Message:     t.ID,
				From:        t.Origin,
				Transport:   transport,
			}
		},
	}
}

// NewWithContextFactory creates a Worker whose delivery contexts come from
// factory, for hosts with their own MessageContext implementation.
func NewWithContextFactory(orch api.Orchestrator, queue taskqueue.Queue, factory ContextFactory) *Worker {
	return &Worker{
		orchestrator: orch,
		queue:        queue,
		newContext:   factory,
	}
}

// ProcessOne blocks for the next due task and delivers it.
// Returns (processed, error):
//   - processed == false: no task was obtained (context cancelled or dequeue failed)
//   - processed == true: a task was delivered; err reports the dispatch outcome.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	mctx := w.newContext(*task)
	return true, w.orchestrator.HandleMessage(ctx, task.SagaType, task.Message, mctx)
}

// Run processes tasks until ctx is cancelled. Dispatch errors are reported
// through onError (may be nil) and do not stop the loop; a single failing
// saga must not stall every other timeout.
func (w *Worker) Run(ctx context.Context, onError func(error)) error {
	for {
		if _, err := w.ProcessOne(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}
