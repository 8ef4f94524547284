package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/msbolton/conduit/pkg/api"
)

// RedisStore is a Persister backed by Redis. It uses a simple key structure:
//
//	<prefix>saga:<sagaType>:<correlationID> => gob-encoded record
//
// A record key holds exactly one value, so Save/Remove per key are atomic
// Redis operations.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ api.Persister = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "conduit:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "conduit:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) key(sagaType, correlationID string) string {
	return s.prefix + "saga:" + sagaType + ":" + correlationID
}

func (s *RedisStore) Save(ctx context.Context, sagaType string, entity api.Entity) error {
	data, err := EncodeEntity(entity)
	if err != nil {
		return err
	}
	meta := entity.Meta()

	if err := s.client.Set(ctx, s.key(sagaType, meta.CorrelationID), data, 0).Err(); err != nil {
		return fmt.Errorf("save saga %s/%s: %w", sagaType, meta.CorrelationID, err)
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, sagaType, correlationID string, newRecord api.EntityFactory) (api.Entity, error) {
	data, err := s.client.Get(ctx, s.key(sagaType, correlationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, api.ErrSagaNotFound
		}
		return nil, fmt.Errorf("find saga %s/%s: %w", sagaType, correlationID, err)
	}
	return DecodeEntity(data, newRecord)
}

func (s *RedisStore) Remove(ctx context.Context, sagaType, correlationID string) error {
	if err := s.client.Del(ctx, s.key(sagaType, correlationID)).Err(); err != nil {
		return fmt.Errorf("remove saga %s/%s: %w", sagaType, correlationID, err)
	}
	return nil
}
