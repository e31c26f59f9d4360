package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection configuration for the Redis-backed
// store. All fields must be populated explicitly by the embedding
// program from its own configuration source; this package never reads
// environment variables directly.
type RedisConfig struct {
	// Addr is the Redis server address (e.g. "localhost:6379").
	Addr string

	// Password for Redis authentication (optional).
	Password string

	// DB is the Redis logical database number.
	DB int

	// Prefix is prepended to every key this store writes or scans. It
	// is empty by default: the rate-limit namespace prefix is already
	// owned by the callers that build key names (see
	// ratelimit.BucketKeyPrefix), so a non-empty Prefix here would
	// double it. Set it only to share one Redis database across
	// multiple independent deployments of this store.
	Prefix string

	// PoolSize is the maximum number of connections (default:
	// 10 * runtime.GOMAXPROCS, per go-redis).
	PoolSize int

	// MinIdleConns is the minimum number of idle connections held open.
	MinIdleConns int

	// DialTimeout bounds establishing new connections.
	DialTimeout time.Duration

	// ReadTimeout bounds a single socket read. This is the per-operation
	// deadline referenced throughout this repository's contracts.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single socket write (default: ReadTimeout).
	WriteTimeout time.Duration
}

// Redis is a Redis-backed Store, suitable for the distributed
// deployments this repository targets: correctness comes from Redis
// serializing operations per key, not from any in-process locking.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to Redis using config and validates the connection
// with a bounded ping before returning.
func NewRedis(config RedisConfig) (*Redis, error) {
	opts := &redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.MinIdleConns > 0 {
		opts.MinIdleConns = config.MinIdleConns
	}
	if config.DialTimeout > 0 {
		opts.DialTimeout = config.DialTimeout
	}
	if config.ReadTimeout > 0 {
		opts.ReadTimeout = config.ReadTimeout
	}
	if config.WriteTimeout > 0 {
		opts.WriteTimeout = config.WriteTimeout
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("kv: connect to redis: %w: %w", ErrUnavailable, err)
	}

	return &Redis{client: client, prefix: config.Prefix}, nil
}

func (r *Redis) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("kv: %w: %w", ErrTimeout, err)
	}
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return fmt.Errorf("kv: %w: %w", ErrUnavailable, err)
}

// IncrBy atomically increments key by delta and returns the
// post-increment value. Redis's INCRBY is atomic with respect to
// concurrent callers by construction; no client-side locking is
// involved.
func (r *Redis) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	val, err := r.client.IncrBy(ctx, r.prefix+key, delta).Result()
	if err != nil {
		return 0, r.classify(err)
	}
	return val, nil
}

// Expire sets key's TTL. Returns false (nil error) if key does not
// exist.
func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.Expire(ctx, r.prefix+key, ttl).Result()
	if err != nil {
		return false, r.classify(err)
	}
	return ok, nil
}

// TTL reports key's remaining time-to-live, translating go-redis's -1s
// (no expiry) and -2s (absent) sentinels into this package's NoTTL and
// Absent constants (numerically identical, kept distinct so call sites
// read intent rather than magic durations).
func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, r.prefix+key).Result()
	if err != nil {
		return 0, r.classify(err)
	}
	switch {
	case ttl == -1*time.Second:
		return NoTTL, nil
	case ttl == -2*time.Second:
		return Absent, nil
	default:
		return ttl, nil
	}
}

// Del deletes the given keys and returns the number actually removed.
// Like every other method, it applies the store's prefix to each key
// itself; callers pass unprefixed keys.
func (r *Redis) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = r.prefix + k
	}
	n, err := r.client.Del(ctx, prefixed...).Result()
	if err != nil {
		return 0, r.classify(err)
	}
	return n, nil
}

// Exists reports whether key is present.
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, r.classify(err)
	}
	return n > 0, nil
}

// ScanMatch returns a lazy iterator over keys matching pattern, backed
// by Redis's cursor-based SCAN rather than the blocking KEYS command —
// the iterator never buffers the full match set, and a restart resumes
// from the cursor go-redis's Iterator tracks internally, not from a
// remembered offset.
func (r *Redis) ScanMatch(ctx context.Context, pattern string) ScanIterator {
	iter := r.client.Scan(ctx, 0, r.prefix+pattern, 100).Iterator()
	return &redisScanIterator{iter: iter, prefix: r.prefix}
}

type redisScanIterator struct {
	iter   *redis.ScanIterator
	prefix string
	cur    string
}

func (s *redisScanIterator) Next(ctx context.Context) bool {
	if !s.iter.Next(ctx) {
		return false
	}
	s.cur = strings.TrimPrefix(s.iter.Val(), s.prefix)
	return true
}

func (s *redisScanIterator) Key() string { return s.cur }
func (s *redisScanIterator) Err() error  { return s.iter.Err() }

// Ping measures Redis reachability and round-trip latency.
func (r *Redis) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return 0, r.classify(err)
	}
	return time.Since(start), nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
