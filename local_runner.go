package conduit

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/msbolton/conduit/internal/engine"
	"github.com/msbolton/conduit/internal/taskqueue"
	"github.com/msbolton/conduit/pkg/api"
	"github.com/msbolton/conduit/pkg/worker"
)

// OutboundMessage is one message a saga sent through the LocalRunner's
// loopback transport. Destination is empty for published events.
type OutboundMessage struct {
	Destination string
	Event       bool
	Message     any
}

// LocalRunner bundles an in-memory Orchestrator, an in-memory timeout queue,
// and a timeout Worker into a simple process-local saga host for development
// and testing.
//
// It plays the dispatcher role: Deliver computes the correlation id from the
// saga's declared rules and hands the message to the orchestrator, so tests
// never build a MessageContext by hand. Everything sagas send, publish, or
// reply is captured on Outbox for inspection.
//
// Typical usage:
//
//	runner := conduit.NewLocalRunner()
//	_ = runner.Orchestrator.RegisterSaga(conduit.SagaDefinition{
//	    Name:      "order",
//	    New:       func() conduit.Saga { return &OrderSaga{} },
//	    NewRecord: func() conduit.Entity { return &OrderState{} },
//	})
//
//	_ = runner.StartWorkers(ctx, 2)
//	_ = runner.Deliver(ctx, "order", CreateOrder{OrderID: "o-1"})
//	...
//	runner.Stop()
type LocalRunner struct {
	// Orchestrator is the in-memory saga orchestrator used by this runner.
	Orchestrator Orchestrator

	// Queue holds pending saga timeouts until they come due.
	Queue taskqueue.Queue

	// Worker delivers due timeouts from Queue back into Orchestrator.
	Worker *worker.Worker

	endpoint string
	outbox   chan OutboundMessage

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory
// orchestrator and queue. Records and pending timeouts are lost on process
// exit.
func NewLocalRunner(opts ...Option) *LocalRunner {
	r := &LocalRunner{
		endpoint: "local",
		outbox:   make(chan OutboundMessage, 1024),
	}

	orch := NewInMemoryOrchestrator(append([]Option{WithEndpoint(r.endpoint)}, opts...)...)
	eng := orch.(*engine.Engine)

	r.Orchestrator = orch
	r.Queue = eng.TimeoutQueue()
	r.Worker = worker.New(orch, r.Queue, loopbackTransport{r})
	return r
}

// Deliver computes the correlation id for msg from sagaType's declared rules
// and dispatches it, creating the saga instance when the message starts a
// new one. The message's origin is the runner's own endpoint.
func (r *LocalRunner) Deliver(ctx context.Context, sagaType string, msg any) error {
	return r.DeliverFrom(ctx, sagaType, r.endpoint, msg)
}

// DeliverFrom is Deliver with an explicit origin endpoint, so tests can
// exercise ReplyToOriginator.
func (r *LocalRunner) DeliverFrom(ctx context.Context, sagaType, origin string, msg any) error {
	key, err := r.Orchestrator.CorrelationKey(sagaType, msg)
	if err != nil {
		return err
	}
	mctx := &api.DeliveryContext{
		Correlation: key,
		Message:     uuid.NewString(),
		From:        origin,
		Local:       r.endpoint,
		Transport:   loopbackTransport{r},
	}
	return r.Orchestrator.HandleMessage(ctx, sagaType, msg, mctx)
}

// Outbox exposes the messages sagas have sent through the loopback
// transport, oldest first. The channel is buffered; once full, further
// outgoing messages are dropped.
func (r *LocalRunner) Outbox() <-chan OutboundMessage {
	return r.outbox
}

// StartWorkers starts 'concurrency' goroutines that continuously deliver due
// timeouts until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("conduit: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()

			for {
				processed, err := r.Worker.ProcessOne(ctx)
				if err != nil {
					// For local runner we treat cancellation as a clean shutdown signal.
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// For other errors, log and keep going so a single bad timeout
					// doesn't kill the worker loop.
					log.Printf("conduit: local runner worker error: %v", err)
					continue
				}
				if !processed {
					// This only happens if ctx was cancelled before a task was obtained.
					// Loop will exit on next Dequeue when err == context.Canceled.
					continue
				}
			}
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits for
// them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.cancel = nil
	r.running = false
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// loopbackTransport records outgoing messages on the runner's outbox instead
// of putting them on a real bus.
type loopbackTransport struct {
	r *LocalRunner
}

func (t loopbackTransport) Send(ctx context.Context, destination string, msg any) error {
	t.r.record(OutboundMessage{Destination: destination, Message: msg})
	return nil
}

func (t loopbackTransport) Publish(ctx context.Context, event any) error {
	t.r.record(OutboundMessage{Event: true, Message: event})
	return nil
}

func (r *LocalRunner) record(m OutboundMessage) {
	select {
	case r.outbox <- m:
	default:
	}
}
