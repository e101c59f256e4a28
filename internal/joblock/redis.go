package joblock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nickd290/jobtrail/internal/clock"
)

// releaseScript deletes the lock only if it still holds our token, so an
// expired-and-reacquired lock is never released by the old owner.
// KEYS[1] = lock key
// ARGV[1] = owner token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared across processes via SET NX PX.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	ids    clock.IDGenerator
	logger *slog.Logger
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithTTL bounds how long a crashed holder can block a job. Default 10s.
func WithTTL(d time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = d }
}

// WithRetryInterval sets the polling interval while waiting. Default 25ms.
func WithRetryInterval(d time.Duration) RedisOption {
	return func(r *Redis) { r.retry = d }
}

// WithPrefix sets the key prefix. Default "jobtrail:joblock:".
func WithPrefix(p string) RedisOption {
	return func(r *Redis) { r.prefix = p }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) RedisOption {
	return func(r *Redis) { r.logger = l }
}

// NewRedis creates a Redis-backed locker.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: "jobtrail:joblock:",
		ttl:    10 * time.Second,
		retry:  25 * time.Millisecond,
		ids:    clock.UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRedisFromURL parses a redis:// URL and creates a locker.
func NewRedisFromURL(url string, opts ...RedisOption) (*Redis, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedis(redis.NewClient(o), opts...), nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Lock polls SET NX PX until it wins or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := r.prefix + key
	token := r.ids.Generate()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("joblock: acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		// Release on a fresh context: the caller's may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		n, err := releaseScript.Run(ctx, r.client, []string{k}, token).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			r.logger.Warn("joblock release failed", "key", key, "error", err)
			return
		}
		if n == 0 {
			r.logger.Warn("joblock expired before release", "key", key, "ttl", r.ttl)
		}
	}, nil
}
