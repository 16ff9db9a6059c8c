package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/LeventeLantos/automatic-calling/internal/model"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "call_session:"

// RedisStore keeps each session as a JSON value. The TTL is applied when the
// session is created and kept across updates, so expiry counts from creation.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisStore returns a store whose keys expire after ttl. A ttl of 0
// disables expiry.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func (r *RedisStore) key(id string) string {
	return redisKeyPrefix + id
}

func (r *RedisStore) Create(ctx context.Context, s *model.Session) error {
	s.Version = 1
	s.UpdatedAt = r.now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = s.UpdatedAt
	}

	b, err := json.Marshal(s)
	if err != nil {
		return err
	}

	ok, err := r.rdb.SetNX(ctx, r.key(s.ID), b, r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*model.Session, error) {
	raw, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var s model.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RedisStore) Update(ctx context.Context, s *model.Session) error {
	prevVersion, prevUpdated := s.Version, s.UpdatedAt
	s.Version++
	s.UpdatedAt = r.now()

	b, err := json.Marshal(s)
	if err != nil {
		s.Version, s.UpdatedAt = prevVersion, prevUpdated
		return err
	}

	ok, err := r.rdb.SetXX(ctx, r.key(s.ID), b, redis.KeepTTL).Result()
	if err == nil && !ok {
		err = ErrNotFound
	}
	if err != nil {
		s.Version, s.UpdatedAt = prevVersion, prevUpdated
		return err
	}
	return nil
}

// CompareAndSwap uses WATCH/MULTI/EXEC on the session key.
func (r *RedisStore) CompareAndSwap(ctx context.Context, s *model.Session) error {
	key := r.key(s.ID)
	expected := s.Version

	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var stored model.Session
		if err := json.Unmarshal(raw, &stored); err != nil {
			return err
		}
		if stored.Version != expected {
			return ErrVersionConflict
		}

		next := s.Clone()
		next.Version = expected + 1
		next.UpdatedAt = r.now()
		b, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}

		s.Version, s.UpdatedAt = next.Version, next.UpdatedAt
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	return err
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, r.key(id)).Err()
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

var _ Store = (*RedisStore)(nil)
