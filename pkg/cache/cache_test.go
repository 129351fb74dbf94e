package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRoundtrip(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "mission:m_1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "mission:m_1", `{"id":"m_1"}`, time.Minute))

	val, ok, err := c.Get(ctx, "mission:m_1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":"m_1"}`, val)

	require.NoError(t, c.Delete(ctx, "mission:m_1"))
	_, ok, _ = c.Get(ctx, "mission:m_1")
	assert.False(t, ok)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEntityKeyShape(t *testing.T) {
	assert.Equal(t, "mission:m_1", EntityKey("mission", "m_1"))
	assert.Equal(t, "state:job:j_1", StateKey("job", "j_1"))
}
