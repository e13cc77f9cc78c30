package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Remote is the second-tier cache backed by Redis, checked on a Local miss
// and populated on a Local write.
type Remote struct {
	client *redis.Client
}

// NewRemote connects to addr (host:port).
func NewRemote(addr, password string, db int) *Remote {
	return &Remote{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Ping verifies connectivity.
func (r *Remote) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *Remote) Close() error {
	return r.client.Close()
}

// Get returns the raw cached bytes for key, and false on a miss or error;
// remote cache failures are never fatal, they just read through as a miss.
func (r *Remote) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

// Set stores raw bytes under key with ttl.
func (r *Remote) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	r.client.Set(ctx, key, value, ttl)
}

// Del removes a single key.
func (r *Remote) Del(ctx context.Context, key string) {
	r.client.Del(ctx, key)
}

// DelPrefix scans for and removes every key matching prefix+"*". SCAN is
// used instead of KEYS to avoid blocking the Redis event loop on a large
// keyspace.
func (r *Remote) DelPrefix(ctx context.Context, prefix string) {
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		r.client.Del(ctx, keys...)
	}
}
