package cache

import (
	"context"
	stderrors "errors"
	"time"

	"chatintent/internal/errors"
	"chatintent/ports"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a PredictionCache shared between server replicas
type RedisCache struct {
	client *redis.Client
	prefix string
}

var _ ports.PredictionCache = (*RedisCache)(nil)

// NewRedisCache connects and pings the server before returning.
func NewRedisCache(ctx context.Context, addr string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DB:          db,
		DialTimeout: 2 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(errors.WithCode(errors.CodeConfiguration, err), "failed to reach redis at %s", addr)
	}
	return &RedisCache{client: client, prefix: "chatintent:"}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get failed")
	}
	return val, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set failed")
	}
	return nil
}

// Close releases the connection pool
func (r *RedisCache) Close() error {
	return r.client.Close()
}
