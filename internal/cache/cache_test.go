package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLRU(maxSize int, ttl time.Duration) (*LRUCache[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](maxSize, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestLRU(10, time.Minute)

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "a", "1")
	got, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "1", got)

	c.Set(ctx, "a", "2")
	got, _ = c.Get(ctx, "a")
	assert.Equal(t, "2", got)
	assert.Equal(t, 1, c.Size())

	c.Delete(ctx, "a")
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestLRUCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestLRU(10, time.Minute)

	c.Set(ctx, "a", "1")
	clock.t = clock.t.Add(59 * time.Second)
	_, ok := c.Get(ctx, "a")
	assert.True(t, ok)

	clock.t = clock.t.Add(2 * time.Second)
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestLRU(2, time.Minute)

	c.Set(ctx, "a", "1")
	c.Set(ctx, "b", "2")
	c.Get(ctx, "a")
	c.Set(ctx, "c", "3")

	_, ok := c.Get(ctx, "b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestManager_CleanNow(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestLRU(10, time.Minute)
	for i := 0; i < 3; i++ {
		c.Set(ctx, fmt.Sprintf("k%d", i), "v")
	}
	clock.t = clock.t.Add(time.Hour)
	c.Set(ctx, "fresh", "v")

	m := NewManager()
	m.Register(c)
	assert.Equal(t, 3, m.CleanNow())
	assert.Equal(t, 1, c.Size())
}

func TestManager_StartStop(t *testing.T) {
	m := NewManager()
	m.Register(NewLRUCache[int](1, time.Millisecond))
	m.StartCleanup(time.Millisecond)
	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop()
}

func TestMemoryGenerations(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGenerations()

	assert.Equal(t, int64(0), g.Current(ctx, "u1"))
	g.Bump(ctx, "u1")
	g.Bump(ctx, "u1")
	assert.Equal(t, int64(2), g.Current(ctx, "u1"))
	assert.Equal(t, int64(0), g.Current(ctx, "u2"))
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	release, err := l.Obtain(ctx, "sweep", time.Minute)
	require.NoError(t, err)

	_, err = l.Obtain(ctx, "sweep", time.Minute)
	assert.True(t, errors.Is(err, ErrLockHeld))

	_, err = l.Obtain(ctx, "other", time.Minute)
	assert.NoError(t, err)

	release(ctx)
	_, err = l.Obtain(ctx, "sweep", time.Minute)
	assert.NoError(t, err)
}

func TestRedisCache_UnreachableServerIsAMiss(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	defer rdb.Close()
	ctx := context.Background()

	c := NewRedisCache[[]string](rdb, "test:", time.Minute)
	c.Set(ctx, "k", []string{"a"})
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	c.Delete(ctx, "k")

	g := NewRedisGenerations(rdb, "gen:")
	assert.Equal(t, int64(-1), g.Current(ctx, "u1"))
	g.Bump(ctx, "u1")
}

// setRecorder records SET calls; any other command panics on the nil
// embedded client.
type setRecorder struct {
	redis.Cmdable
	ttls []time.Duration
}

func (r *setRecorder) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	r.ttls = append(r.ttls, expiration)
	return redis.NewStatusResult("OK", nil)
}

func TestRedisCache_WritesAlwaysExpire(t *testing.T) {
	ctx := context.Background()

	rec := &setRecorder{}
	NewRedisCache[[]string](rec, "test:", 0).Set(ctx, "k", []string{"a"})
	NewRedisCache[[]string](rec, "test:", -time.Second).Set(ctx, "k", []string{"a"})
	assert.Empty(t, rec.ttls)

	NewRedisCache[[]string](rec, "test:", time.Minute).Set(ctx, "k", []string{"a"})
	assert.Equal(t, []time.Duration{time.Minute}, rec.ttls)
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "http://localhost:6379")
	assert.Error(t, err)
}
