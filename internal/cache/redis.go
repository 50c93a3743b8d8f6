package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldValue    = "v"
	fieldStoredAt = "t"
)

// RedisStore shares cached snapshots between instances. Each key is a hash
// holding the value and its write time in unix milliseconds.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ledgerwatch:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

func (r *RedisStore) key(k string) string {
	return r.prefix + k
}

func (r *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	vals, err := r.rdb.HMGet(ctx, r.key(key), fieldValue, fieldStoredAt).Result()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("hmget %s: %w", key, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Entry{}, false, nil
	}

	v, _ := vals[0].(string)
	ts, _ := vals[1].(string)
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Entry{}, false, fmt.Errorf("bad stored_at for %s: %w", key, err)
	}
	return Entry{Value: []byte(v), StoredAt: time.UnixMilli(ms).UTC()}, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	k := r.key(key)
	now := time.Now().UTC().UnixMilli()

	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, k)
		p.HSet(ctx, k, fieldValue, value, fieldStoredAt, now)
		if ttl > 0 {
			p.PExpire(ctx, k, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	if err := r.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

func (r *RedisStore) HasFresh(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	e, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return e.FreshAt(time.Now().UTC(), ttl), nil
}
