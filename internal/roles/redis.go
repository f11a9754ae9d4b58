package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares snapshots between server instances.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache creates a cache backed by rdb.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func redisKey(userID int64) string { return fmt.Sprintf("izposoja:roles:%d", userID) }

func genKey(userID int64) string { return fmt.Sprintf("izposoja:roles:%d:gen", userID) }

func (c *RedisCache) Get(ctx context.Context, userID int64) (*Snapshot, error) {
	b, err := c.rdb.Get(ctx, redisKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading roles from redis: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		// A value we cannot read is as good as a miss.
		return nil, nil
	}
	return &snap, nil
}

func (c *RedisCache) Generation(ctx context.Context, userID int64) (uint64, error) {
	gen, err := c.rdb.Get(ctx, genKey(userID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading role generation from redis: %w", err)
	}
	return gen, nil
}

// Set writes snap only while the generation key still holds gen. The
// check and the write run in one WATCH transaction, so a Delete from any
// instance in between makes it fail with ErrSuperseded.
func (c *RedisCache) Set(ctx context.Context, snap *Snapshot, gen uint64) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding roles: %w", err)
	}

	gk := genKey(snap.UserID)
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, gk).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return ErrSuperseded
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, redisKey(snap.UserID), b, c.ttl)
			return nil
		})
		return err
	}, gk)
	switch {
	case errors.Is(err, ErrSuperseded), errors.Is(err, redis.TxFailedErr):
		return ErrSuperseded
	case err != nil:
		return fmt.Errorf("writing roles to redis: %w", err)
	}
	return nil
}

// Delete removes the snapshot and advances the generation atomically.
func (c *RedisCache) Delete(ctx context.Context, userID int64) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, redisKey(userID))
		p.Incr(ctx, genKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting roles from redis: %w", err)
	}
	return nil
}
