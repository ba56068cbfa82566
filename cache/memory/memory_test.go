package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGetDelete(t *testing.T) {
	c, err := New(1 << 20)
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "extract:physics:doc-1", []byte("hello"), time.Minute))
	got, ok, err := c.Get(ctx, "extract:physics:doc-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), got)

	require.NoError(t, c.Delete(ctx, "extract:physics:doc-1"))
	_, ok, err = c.Get(ctx, "extract:physics:doc-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_Miss(t *testing.T) {
	c, err := New(0)
	require.NoError(t, err)
	defer c.Close()

	value, ok, err := c.Get(context.Background(), "nothing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, value)
}
