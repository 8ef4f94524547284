package taskqueue

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a durable delay queue backed by a Redis sorted set scored by
// due time. A consumer claims a task by removing its member; ZREM reports
// whether the removal happened, so concurrent consumers never deliver the
// same task twice.
type RedisQueue struct {
	client       *redis.Client
	key          string
	pollInterval time.Duration
}

// NewRedisQueue creates a RedisQueue. prefix defaults to "conduit:".
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "conduit:"
	}
	return &RedisQueue{
		client:       client,
		key:          prefix + "timeouts",
		pollInterval: 20 * time.Millisecond,
	}
}

var _ Queue = (*RedisQueue)(nil)

// redisTaskMember is the gob-encoded sorted-set member. The task ID keeps
// members unique even when two tasks carry identical payloads and due times.
type redisTaskMember struct {
	ID            string
	SagaType      string
	CorrelationID string
	Origin        string
	Payload       []byte
	EnqueuedAt    int64
	NotBefore     int64
}

func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	payload, err := encodePayload(t.Message)
	if err != nil {
		return err
	}

	now := time.Now()
	notBefore := t.NotBefore
	if notBefore.IsZero() {
		notBefore = now
	}

	member := redisTaskMember{
		ID:            t.ID,
		SagaType:      t.SagaType,
		CorrelationID: t.CorrelationID,
		Origin:        t.Origin,
		Payload:       payload,
		EnqueuedAt:    now.UnixNano(),
		NotBefore:     notBefore.UnixNano(),
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&member); err != nil {
		return fmt.Errorf("encode timeout task: %w", err)
	}

	return q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(member.NotBefore),
		Member: buf.Bytes(),
	}).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		now := time.Now().UnixNano()
		members, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatInt(now, 10),
			Count: 1,
		}).Result()
		if err != nil {
			return nil, err
		}

		if len(members) == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(q.pollInterval):
				continue
			}
		}

		raw := members[0]
		removed, err := q.client.ZRem(ctx, q.key, raw).Result()
		if err != nil {
			return nil, err
		}
		if removed == 0 {
			// Another consumer claimed it first.
			continue
		}

		var member redisTaskMember
		if err := gob.NewDecoder(bytes.NewReader([]byte(raw))).Decode(&member); err != nil {
			return nil, fmt.Errorf("decode timeout task: %w", err)
		}
		msg, err := decodePayload(member.Payload)
		if err != nil {
			return nil, err
		}

		return &Task{
			ID:            member.ID,
			SagaType:      member.SagaType,
			CorrelationID: member.CorrelationID,
			Message:       msg,
			Origin:        member.Origin,
			EnqueuedAt:    time.Unix(0, member.EnqueuedAt),
			NotBefore:     time.Unix(0, member.NotBefore),
		}, nil
	}
}

func (q *RedisQueue) Len() int {
	n, err := q.client.ZCard(context.Background(), q.key).Result()
	if err != nil {
		return 0
	}
	return int(n)
}
