package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a running server: LIBRARY_TEST_REDIS_ADDR=localhost:6379
func newTestCounter(t *testing.T) *VersionCounter {
	addr := os.Getenv("LIBRARY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LIBRARY_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	key := "test:version:" + uuid.NewString()
	c, err := NewVersionCounter(ctx, Options{Addr: addr, Key: key})
	require.NoError(t, err)
	t.Cleanup(func() {
		c.client.Del(context.Background(), key)
		c.Close()
	})
	return c
}

func TestVersionCounter_LazyInitAndMonotonic(t *testing.T) {
	c := newTestCounter(t)
	ctx := context.Background()

	v, err := c.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	for want := int64(2); want <= 4; want++ {
		got, err := c.Bump(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestVersionCounter_BumpBeforeRead(t *testing.T) {
	c := newTestCounter(t)

	v, err := c.Bump(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestVersionCounter_RaiseNeverLowers(t *testing.T) {
	c := newTestCounter(t)
	ctx := context.Background()

	v, err := c.Raise(ctx, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(40), v)

	v, err = c.Raise(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(40), v)

	v, err = c.Bump(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(41), v)
}

func TestNewVersionCounterFromClient_DefaultKey(t *testing.T) {
	c := NewVersionCounterFromClient(nil, "")
	assert.Equal(t, DefaultKey, c.key)
}
