package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheStrings(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	_, hit, err := c.GetString(ctx, "k")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.SetString(ctx, "k", "v", 0))
	v, hit, err := c.GetString(ctx, "k")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "v", v)

	require.NoError(t, c.Del(ctx, "k"))
	_, hit, _ = c.GetString(ctx, "k")
	assert.False(t, hit)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.SetString(ctx, "k", "v", time.Minute))
	now = now.Add(59 * time.Second)
	_, hit, _ := c.GetString(ctx, "k")
	assert.True(t, hit)

	now = now.Add(time.Second)
	_, hit, _ = c.GetString(ctx, "k")
	assert.False(t, hit)
}

func TestMemoryCacheJSONCorruptIsMiss(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	require.NoError(t, c.SetJSON(ctx, "j", map[string]int{"a": 1}, 0))
	var out map[string]int
	hit, err := c.GetJSON(ctx, "j", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, out["a"])

	require.NoError(t, c.SetString(ctx, "j", "{not json", 0))
	hit, err = c.GetJSON(ctx, "j", &out)
	require.NoError(t, err)
	assert.False(t, hit)
	_, stillThere, _ := c.GetString(ctx, "j")
	assert.False(t, stillThere)
}
