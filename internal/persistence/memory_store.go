package persistence

import (
	"context"
	"sync"

	"github.com/msbolton/conduit/pkg/api"
)

// InMemoryStore is a goroutine-safe Persister backed by a map. Records are
// stored gob-encoded so Find always returns an independent copy, matching
// the behavior of the durable backends.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string][]byte),
	}
}

// Ensure InMemoryStore implements the contract.
var _ api.Persister = (*InMemoryStore)(nil)

func key(sagaType, correlationID string) string {
	return sagaType + "\x00" + correlationID
}

func (s *InMemoryStore) Save(ctx context.Context, sagaType string, entity api.Entity) error {
	data, err := EncodeEntity(entity)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key(sagaType, entity.Meta().CorrelationID)] = data
	return nil
}

func (s *InMemoryStore) Find(ctx context.Context, sagaType, correlationID string, newRecord api.EntityFactory) (api.Entity, error) {
	s.mu.RLock()
	data, ok := s.records[key(sagaType, correlationID)]
	s.mu.RUnlock()

	if !ok {
		return nil, api.ErrSagaNotFound
	}
	return DecodeEntity(data, newRecord)
}

func (s *InMemoryStore) Remove(ctx context.Context, sagaType, correlationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key(sagaType, correlationID))
	return nil
}

// Len reports the number of stored records, for tests.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
