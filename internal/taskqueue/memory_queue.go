package taskqueue

import (
	"context"
	"sync"
	"time"

	"github.com/tidwall/btree"
)

// InMemoryQueue is a Queue backed by a btree ordered on (NotBefore, seq), so
// the earliest-due task is always at the front. It is safe for concurrent
// use and is the queue LocalRunner wires up; it is not durable.
type InMemoryQueue struct {
	mu   sync.Mutex
	tree *btree.BTreeG[queuedTask]
	seq  uint64
	wake chan struct{}
}

type queuedTask struct {
	due time.Time
	seq uint64
	t   Task
}

func byDue(a, b queuedTask) bool {
	if !a.due.Equal(b.due) {
		return a.due.Before(b.due)
	}
	return a.seq < b.seq
}

// NewInMemoryQueue creates an empty in-memory delay queue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		tree: btree.NewBTreeG[queuedTask](byDue),
		wake: make(chan struct{}, 1),
	}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	due := t.NotBefore
	if due.IsZero() {
		due = time.Now()
	}

	q.mu.Lock()
	q.seq++
	q.tree.Set(queuedTask{due: due, seq: q.seq, t: t})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		head, ok := q.tree.Min()
		var wait time.Duration
		if ok {
			now := time.Now()
			if !head.due.After(now) {
				q.tree.Delete(head)
				q.mu.Unlock()
				t := head.t
				return &t, nil
			}
			wait = head.due.Sub(now)
		} else {
			// Nothing queued; sleep until woken by Enqueue.
			wait = time.Hour
		}
		q.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-q.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tree.Len()
}
