package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const maxRedisTxRetries = 10

// RedisStore is a Redis-based Store for multi-instance deployments.
// Each task is a JSON string; a sorted set indexes tasks by creation time.
// Updates run in a WATCH/MULTI transaction so concurrent writers never
// interleave a read-modify-write.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "mediaflow:task:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With(zap.String("component", "task_store_redis")),
	}
}

func (s *RedisStore) taskKey(id string) string {
	return s.keyPrefix + "data:" + id
}

func (s *RedisStore) allTasksKey() string {
	return s.keyPrefix + "all"
}

// Create persists a new pending task.
func (s *RedisStore) Create(ctx context.Context, in Input) (*Task, error) {
	t, err := newTask(uuid.NewString(), in, time.Now())
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.taskKey(t.ID), data, 0)
		pipe.ZAdd(ctx, s.allTasksKey(), redis.Z{Score: float64(t.CreatedAt.UnixNano()), Member: t.ID})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}
	return t, nil
}

// Update applies u under optimistic locking, retrying on write conflicts.
func (s *RedisStore) Update(ctx context.Context, id string, u Update) (*Task, error) {
	key := s.taskKey(id)
	var updated *Task

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var t Task
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("failed to unmarshal task: %w", err)
		}
		if err := applyUpdate(&t, u, time.Now()); err != nil {
			return err
		}

		out, err := json.Marshal(&t)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err == nil {
			updated = &t
		}
		return err
	}

	for attempt := 0; attempt < maxRedisTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("task update conflict, retrying",
				zap.String("task_id", id), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("task %s: too many concurrent updates", id)
}

// Get retrieves a task by ID
func (s *RedisStore) Get(ctx context.Context, id string) (*Task, error) {
	data, err := s.client.Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &t, nil
}

// List loads indexed tasks and filters them client-side.
func (s *RedisStore) List(ctx context.Context, f Filter) ([]*Task, error) {
	ids, err := s.client.ZRevRange(ctx, s.allTasksKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list task ids: %w", err)
	}
	if len(ids) == 0 {
		return []*Task{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.taskKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	all := make([]*Task, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var t Task
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			s.logger.Warn("skipping corrupt task record", zap.String("task_id", ids[i]), zap.Error(err))
			continue
		}
		all = append(all, &t)
	}
	return selectTasks(all, f), nil
}

// Ping checks if the store is healthy
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the store
func (s *RedisStore) Close() error {
	return s.client.Close()
}
