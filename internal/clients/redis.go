package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/bavena95/portal-creditos/internal/config"
	"github.com/bavena95/portal-creditos/internal/orchestrator"
)

const (
	redisProbeName      = "redis"
	loginFailureKeyBase = "portal:login:failures:"
)

// redisConn is the subset of go-redis used by RedisClient. It is implemented
// by the real client adapter and by test doubles, which avoids constructing
// *redis.StatusCmd values in tests.
type redisConn interface {
	PingResult(ctx context.Context) (string, error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	GetInt(ctx context.Context, key string) (int64, error)
	Del(ctx context.Context, key string) error
	Close() error
}

type realRedisConn struct {
	client *redis.Client
}

func (r *realRedisConn) PingResult(ctx context.Context) (string, error) {
	return r.client.Ping(ctx).Result()
}

func (r *realRedisConn) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

func (r *realRedisConn) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

func (r *realRedisConn) GetInt(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (r *realRedisConn) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *realRedisConn) Close() error {
	return r.client.Close()
}

// RedisClient counts failed admin logins per email in Redis and exposes a
// Probe for health checks. Every call goes through the circuit breaker.
type RedisClient struct {
	cb          *gobreaker.CircuitBreaker
	conn        redisConn
	maxFailures int64
	window      time.Duration
}

// NewRedisClient creates a RedisClient. go-redis dials lazily, so no
// connection is opened at construction time.
func NewRedisClient(cfg config.RedisConfig, cb *gobreaker.CircuitBreaker) *RedisClient {
	return &RedisClient{
		cb: cb,
		conn: &realRedisConn{
			client: redis.NewClient(&redis.Options{
				Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
				Password: cfg.Password,
				DB:       cfg.DB,
			}),
		},
		maxFailures: int64(cfg.MaxFailures),
		window:      cfg.Window,
	}
}

// Close releases the underlying connection pool.
func (c *RedisClient) Close() error {
	return c.conn.Close()
}

// Probe sends a PING command to Redis and validates the PONG response.
func (c *RedisClient) Probe(ctx context.Context) orchestrator.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		val, err := c.conn.PingResult(ctx)
		if err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}
		if val != "PONG" {
			return nil, fmt.Errorf("unexpected PING response: %q", val)
		}
		return nil, nil
	})

	return toProbeResult(redisProbeName, start, err)
}

func loginFailureKey(email string) string {
	return loginFailureKeyBase + strings.ToLower(strings.TrimSpace(email))
}

// LoginAllowed reports whether email is still below the failure threshold
// of the current window.
func (c *RedisClient) LoginAllowed(ctx context.Context, email string) (bool, error) {
	n, err := c.cb.Execute(func() (any, error) {
		return c.conn.GetInt(ctx, loginFailureKey(email))
	})
	if err != nil {
		return false, fmt.Errorf("reading login failures: %w", err)
	}
	return n.(int64) < c.maxFailures, nil
}

// RecordLoginFailure increments the failure counter. The first failure of a
// window starts its expiry.
func (c *RedisClient) RecordLoginFailure(ctx context.Context, email string) error {
	_, err := c.cb.Execute(func() (any, error) {
		key := loginFailureKey(email)
		n, err := c.conn.Incr(ctx, key)
		if err != nil {
			return nil, err
		}
		if n == 1 {
			return nil, c.conn.Expire(ctx, key, c.window)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("recording login failure: %w", err)
	}
	return nil
}

// ResetLoginFailures clears the counter after a successful login.
func (c *RedisClient) ResetLoginFailures(ctx context.Context, email string) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.conn.Del(ctx, loginFailureKey(email))
	})
	if err != nil {
		return fmt.Errorf("resetting login failures: %w", err)
	}
	return nil
}
