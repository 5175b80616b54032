package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseClient(t *testing.T, c Client, expire func(time.Duration)) {
	t.Helper()
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.True(t, IsNotFound(err))

	require.NoError(t, c.Set(ctx, "sess:1", `{"user_id":"u"}`, time.Minute))
	v, err := c.Get(ctx, "sess:1")
	require.NoError(t, err)
	assert.Equal(t, `{"user_id":"u"}`, v)

	added, err := c.SetNX(ctx, "nonce:1", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = c.SetNX(ctx, "nonce:1", "2", time.Minute)
	require.NoError(t, err)
	assert.False(t, added)
	v, err = c.Get(ctx, "nonce:1")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	require.NoError(t, c.Set(ctx, "short", "x", 50*time.Millisecond))
	expire(100 * time.Millisecond)
	_, err = c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Delete(ctx, "sess:1"))
	_, err = c.Get(ctx, "sess:1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Ping(ctx))
	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, st.Driver)
}

func TestMemoryClient(t *testing.T) {
	c := NewMemory("test")
	exerciseClient(t, c, time.Sleep)
	require.NoError(t, c.Close())
}

func TestRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := New(context.Background(), Config{Driver: "redis", Addr: mr.Addr(), Prefix: "exactauth"})
	require.NoError(t, err)
	defer c.Close()

	exerciseClient(t, c, mr.FastForward)
	require.NoError(t, c.Set(context.Background(), "k", "v", 0))
	assert.True(t, mr.Exists("exactauth:k"))
}

func TestSetNX_OneWinner(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := NewRedis(context.Background(), Config{Addr: mr.Addr(), Prefix: "exactauth"})
	require.NoError(t, err)
	defer rc.Close()

	for name, c := range map[string]Client{"memory": NewMemory("test"), "redis": rc} {
		t.Run(name, func(t *testing.T) {
			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := c.SetNX(context.Background(), "state:n1", "1", time.Minute)
					assert.NoError(t, err)
					if ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "memcached"})
	require.Error(t, err)
}

func TestNewRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedis(context.Background(), Config{Addr: addr})
	require.Error(t, err)
}
