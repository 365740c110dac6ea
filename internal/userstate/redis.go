package userstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxDispatchAttempts = 5

// RedisStore persists each State as a JSON snapshot. Dispatch runs in a
// WATCH/MULTI transaction so concurrent writers never interleave.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a RedisStore. A zero ttl keeps snapshots forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Load returns the state stored under key.
func (s *RedisStore) Load(ctx context.Context, key string) (State, error) {
	return s.read(ctx, s.client, s.redisKey(key))
}

// Dispatch reduces action into the state stored under key.
func (s *RedisStore) Dispatch(ctx context.Context, key string, action Action) (State, error) {
	redisKey := s.redisKey(key)
	var next State
	txf := func(tx *redis.Tx) error {
		current, err := s.read(ctx, tx, redisKey)
		if err != nil {
			return err
		}
		next = Reduce(current, action)
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, data, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxDispatchAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, redisKey)
		if err == nil {
			return next, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return State{}, fmt.Errorf("userstate: dispatch %s: %w", action.Type, err)
	}
	return State{}, ErrDispatchConflict
}

func (s *RedisStore) read(ctx context.Context, c redis.Cmdable, redisKey string) (State, error) {
	payload, err := c.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("userstate: load: %w", err)
	}
	var st State
	if err := json.Unmarshal(payload, &st); err != nil {
		return State{}, fmt.Errorf("userstate: decode: %w", err)
	}
	return st, nil
}

func (s *RedisStore) redisKey(key string) string {
	return "userlist:state:" + key
}
