package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Set LORE_TEST_REDIS=host:port to run against a live server.
func setupRedis(t *testing.T) *Cache {
	t.Helper()
	addr := os.Getenv("LORE_TEST_REDIS")
	if addr == "" {
		t.Skip("LORE_TEST_REDIS not set")
	}
	client, err := NewClient(context.Background(), addr, "", 0)
	require.NoError(t, err)
	c := New(client, "lore-test:"+t.Name()+":")
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCache_RoundTrip(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_KeyPrefix(t *testing.T) {
	c := New(nil, "lore:")
	assert.Equal(t, "lore:extract:c:d", c.key("extract:c:d"))
}
