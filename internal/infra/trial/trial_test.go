package trial

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryLimiter_BlocksAfterLimit(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter(Config{Limit: 2, Window: time.Hour})
	l.now = clock.now
	ctx := context.Background()

	st, err := l.Check(ctx, "url-audit", "fp")
	require.NoError(t, err)
	assert.True(t, st.Allowed)
	assert.Equal(t, 2, st.Remaining)

	require.NoError(t, l.Record(ctx, "url-audit", "fp"))
	require.NoError(t, l.Record(ctx, "url-audit", "fp"))

	st, err = l.Check(ctx, "url-audit", "fp")
	require.NoError(t, err)
	assert.False(t, st.Allowed)
	assert.Equal(t, 0, st.Remaining)
	assert.Equal(t, clock.t.Add(time.Hour), st.ResetAt)

	other, err := l.Check(ctx, "url-audit", "another-fp")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	otherTool, err := l.Check(ctx, "contrast-checker", "fp")
	require.NoError(t, err)
	assert.True(t, otherTool.Allowed)
}

func TestMemoryLimiter_ResetsAfterWindow(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter(Config{Limit: 1, Window: time.Hour})
	l.now = clock.now
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, "url-audit", "fp"))
	st, _ := l.Check(ctx, "url-audit", "fp")
	assert.False(t, st.Allowed)

	clock.advance(time.Hour)
	st, _ = l.Check(ctx, "url-audit", "fp")
	assert.True(t, st.Allowed)
	assert.Equal(t, 1, st.Remaining)

	l.Cleanup()
	assert.Empty(t, l.entries)
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	c := Config{}.withDefaults()
	assert.Equal(t, DefaultLimit, c.Limit)
	assert.Equal(t, DefaultWindow, c.Window)
}

// TestRedisLimiter requires a Redis instance on localhost:6379 and is skipped otherwise.
func TestRedisLimiter(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping integration test")
	}
	defer client.Close()

	ctx = context.Background()
	l := NewRedisLimiter(client, Config{Limit: 2, Window: time.Minute})
	fp := "test-fp-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	defer client.Del(ctx, key("url-audit", fp))

	st, err := l.Check(ctx, "url-audit", fp)
	require.NoError(t, err)
	assert.True(t, st.Allowed)
	assert.Equal(t, 2, st.Remaining)

	require.NoError(t, l.Record(ctx, "url-audit", fp))
	require.NoError(t, l.Record(ctx, "url-audit", fp))

	st, err = l.Check(ctx, "url-audit", fp)
	require.NoError(t, err)
	assert.False(t, st.Allowed)
	assert.Equal(t, 0, st.Remaining)
	assert.WithinDuration(t, time.Now().Add(time.Minute), st.ResetAt, 5*time.Second)

	ttl, err := client.TTL(ctx, key("url-audit", fp)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisLimiter_RepairsCounterWithoutExpiry(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping integration test")
	}
	defer client.Close()

	ctx = context.Background()
	l := NewRedisLimiter(client, Config{Limit: 2, Window: time.Minute})

	// Check puts the expiry back on a counter that lost it
	fp := "orphan-fp-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	k := key("url-audit", fp)
	defer client.Del(ctx, k)
	require.NoError(t, client.Set(ctx, k, 2, 0).Err())

	st, err := l.Check(ctx, "url-audit", fp)
	require.NoError(t, err)
	assert.False(t, st.Allowed)
	assert.WithinDuration(t, time.Now().Add(time.Minute), st.ResetAt, 5*time.Second)
	ttl, err := client.TTL(ctx, k).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	// Record does the same for a counter that is still below the limit
	fp2 := "orphan-fp2-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	k2 := key("url-audit", fp2)
	defer client.Del(ctx, k2)
	require.NoError(t, client.Set(ctx, k2, 1, 0).Err())

	require.NoError(t, l.Record(ctx, "url-audit", fp2))
	used, err := client.Get(ctx, k2).Int()
	require.NoError(t, err)
	assert.Equal(t, 2, used)
	ttl, err = client.TTL(ctx, k2).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
