package engine

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// keyedLocks serializes dispatch per (saga type, correlation id) pair.
// Distinct keys touch disjoint persister entries and run fully in parallel;
// two messages for the same instance would otherwise race the find, handle,
// save cycle and lose the first writer's update.
type keyedLocks struct {
	locks *xsync.MapOf[string, *sync.Mutex]
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{
		locks: xsync.NewMapOf[string, *sync.Mutex](),
	}
}

// lock acquires the mutex for the pair and returns the release func.
func (k *keyedLocks) lock(sagaType, correlationID string) func() {
	mu, _ := k.locks.LoadOrStore(sagaType+"\x00"+correlationID, &sync.Mutex{})
	mu.Lock()
	return mu.Unlock
}
