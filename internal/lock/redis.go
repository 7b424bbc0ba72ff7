package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// RedisConfig controls redis client behavior. Defaults are conservative.
type RedisConfig struct {
	Addr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"3s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"2s"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"2s"`
	PoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"20"`
	PingTimeout  time.Duration `envconfig:"REDIS_PING_TIMEOUT" default:"2s"`
}

// OpenRedis initializes a Redis client and validates connectivity via PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// releaseScript deletes the lock only when the stored token still matches, so
// a holder whose TTL expired cannot free a lock someone else re-acquired.
var releaseScript = redis.NewScript(`
-- KEYS[1] = lock key
-- ARGV[1] = holder token
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX plus a compare-and-delete
// release. The TTL bounds how long a crashed holder can block others.
type RedisLocker struct {
	rdb *redis.Client
}

// NewRedisLocker creates a redis-backed locker.
func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if key == "" {
		return nil, false, fmt.Errorf("lock key is required")
	}
	if ttl <= 0 {
		return nil, false, fmt.Errorf("lock ttl must be > 0")
	}

	token := ulid.Make().String()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		_, err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Result()
		if err != nil {
			return fmt.Errorf("releasing lock %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}
