package taskqueue

import (
	"context"
	"time"
)

// Task is one scheduled timeout delivery: Message is handed back to the
// orchestrator for (SagaType, CorrelationID) once NotBefore has passed.
type Task struct {
	ID            string
	SagaType      string
	CorrelationID string

	// Message is the timeout message the saga asked for. Durable queues
	// gob-encode it; concrete types must be registered with gob.Register.
	Message any

	// Origin names the endpoint that requested the timeout; it becomes the
	// Origin of the delivery context when the task fires.
	Origin string

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task may be delivered. The zero
	// value means "immediately".
	NotBefore time.Time
}

// Queue is a durable delay queue. Implementations order tasks by NotBefore:
// Dequeue never returns a task before it is due.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next due task, blocking until one
	// becomes due or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued, due or not.
	Len() int
}
