package clients

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRedisConn is an in-memory test double for redisConn.
type mockRedisConn struct {
	pingVal string
	pingErr error
	opErr   error

	counters map[string]int64
	expiries map[string]time.Duration
}

func newMockRedisConn() *mockRedisConn {
	return &mockRedisConn{pingVal: "PONG", counters: map[string]int64{}, expiries: map[string]time.Duration{}}
}

func (m *mockRedisConn) PingResult(_ context.Context) (string, error) {
	return m.pingVal, m.pingErr
}

func (m *mockRedisConn) Incr(_ context.Context, key string) (int64, error) {
	if m.opErr != nil {
		return 0, m.opErr
	}
	m.counters[key]++
	return m.counters[key], nil
}

func (m *mockRedisConn) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.expiries[key] = ttl
	return m.opErr
}

func (m *mockRedisConn) GetInt(_ context.Context, key string) (int64, error) {
	if m.opErr != nil {
		return 0, m.opErr
	}
	return m.counters[key], nil
}

func (m *mockRedisConn) Del(_ context.Context, key string) error {
	delete(m.counters, key)
	return m.opErr
}

func (m *mockRedisConn) Close() error { return nil }

func TestRedisProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pingVal    string
		pingErr    error
		wantOK     bool
		wantErrSub string
	}{
		{name: "success: PING returns PONG", pingVal: "PONG", wantOK: true},
		{name: "failure: PING returns error", pingErr: errors.New("connection refused"), wantErrSub: "connection refused"},
		{name: "failure: PING returns unexpected value", pingVal: "WHOOPS", wantErrSub: "unexpected PING response"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			conn := newMockRedisConn()
			conn.pingVal, conn.pingErr = tc.pingVal, tc.pingErr
			client := &RedisClient{cb: NewCircuitBreaker("redis-test-" + tc.name), conn: conn}

			result := client.Probe(context.Background())

			assert.Equal(t, redisProbeName, result.Name)
			assert.Equal(t, tc.wantOK, result.OK)
			if tc.wantErrSub != "" {
				assert.Contains(t, result.Error, tc.wantErrSub)
			}
		})
	}
}

func TestRedisProbeCircuitBreaker_OpensAfterThreeFailures(t *testing.T) {
	t.Parallel()

	conn := newMockRedisConn()
	conn.pingErr = errors.New("connection refused")
	client := &RedisClient{cb: NewCircuitBreaker("redis-cb-open-test"), conn: conn}

	for i := range 3 {
		result := client.Probe(context.Background())
		assert.False(t, result.OK, "probe %d should fail", i+1)
		assert.NotEqual(t, "circuit open", result.Error)
	}

	result := client.Probe(context.Background())
	assert.False(t, result.OK)
	assert.Equal(t, "circuit open", result.Error)
}

func TestLoginThrottle(t *testing.T) {
	t.Parallel()

	conn := newMockRedisConn()
	client := &RedisClient{
		cb:          NewCircuitBreaker("redis-throttle"),
		conn:        conn,
		maxFailures: 3,
		window:      15 * time.Minute,
	}
	ctx := context.Background()

	for i := range 3 {
		allowed, err := client.LoginAllowed(ctx, "Admin@Example.com")
		require.NoError(t, err)
		assert.True(t, allowed, "attempt %d should be allowed", i+1)
		require.NoError(t, client.RecordLoginFailure(ctx, " admin@example.com "))
	}

	allowed, err := client.LoginAllowed(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.False(t, allowed)

	key := "portal:login:failures:admin@example.com"
	assert.Equal(t, int64(3), conn.counters[key])
	assert.Equal(t, 15*time.Minute, conn.expiries[key])

	require.NoError(t, client.ResetLoginFailures(ctx, "ADMIN@example.com"))
	allowed, err = client.LoginAllowed(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLoginThrottle_Errors(t *testing.T) {
	t.Parallel()

	conn := newMockRedisConn()
	conn.opErr = errors.New("READONLY")
	client := &RedisClient{cb: NewCircuitBreaker("redis-throttle-err"), conn: conn, maxFailures: 5}

	_, err := client.LoginAllowed(context.Background(), "a@b.c")
	assert.ErrorContains(t, err, "READONLY")
	assert.ErrorContains(t, client.RecordLoginFailure(context.Background(), "a@b.c"), "READONLY")
	assert.ErrorContains(t, client.ResetLoginFailures(context.Background(), "a@b.c"), "READONLY")
}
