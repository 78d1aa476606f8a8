package conversation

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps dialog state in Redis so it survives restarts. Each user
// has a step string key and a data hash, both expiring after ttl of inactivity.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore builds a store. A zero ttl keeps keys forever.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "conversation:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) stepKey(userID int64) string {
	return s.prefix + strconv.FormatInt(userID, 10) + ":step"
}

func (s *RedisStore) dataKey(userID int64) string {
	return s.prefix + strconv.FormatInt(userID, 10) + ":data"
}

func (s *RedisStore) GetStep(ctx context.Context, userID int64) (Step, bool, error) {
	val, err := s.client.Get(ctx, s.stepKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return Step(val), true, nil
}

func (s *RedisStore) SetStep(ctx context.Context, userID int64, step Step) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.stepKey(userID), string(step), s.ttl)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.dataKey(userID), s.ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) ClearStep(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, s.stepKey(userID)).Err()
}

func (s *RedisStore) GetData(ctx context.Context, userID int64, key string) ([]byte, bool, error) {
	val, err := s.client.HGet(ctx, s.dataKey(userID), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *RedisStore) SetData(ctx context.Context, userID int64, key string, value []byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.dataKey(userID), key, value)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.dataKey(userID), s.ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) RemoveData(ctx context.Context, userID int64, key string) error {
	return s.client.HDel(ctx, s.dataKey(userID), key).Err()
}

func (s *RedisStore) ClearData(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, s.dataKey(userID)).Err()
}
