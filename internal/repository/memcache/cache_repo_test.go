package memcache

import (
	"context"
	"testing"
	"time"

	"github.com/DRSN-tech/product-matcher/internal/cfg"
	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRepo_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewCacheRepo(&cfg.CacheCfg{Size: 2, TTL: time.Minute})

	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	in := []domain.MatchResult{{ID: "1", Similarity: 0.5}}
	require.NoError(t, c.Set(ctx, "a", in))
	in[0].ID = "mutated"

	got, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", got[0].ID)

	got[0].ID = "mutated"
	again, _, _ := c.Get(ctx, "a")
	assert.Equal(t, "1", again[0].ID)
}

func TestCacheRepo_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewCacheRepo(&cfg.CacheCfg{Size: 2, TTL: time.Minute})

	require.NoError(t, c.Set(ctx, "a", nil))
	require.NoError(t, c.Set(ctx, "b", nil))
	_, _, _ = c.Get(ctx, "a")
	require.NoError(t, c.Set(ctx, "c", nil))

	_, ok, _ := c.Get(ctx, "b")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCacheRepo_Expires(t *testing.T) {
	ctx := context.Background()
	c := NewCacheRepo(&cfg.CacheCfg{Size: 8, TTL: 20 * time.Millisecond})

	require.NoError(t, c.Set(ctx, "a", []domain.MatchResult{{ID: "1"}}))
	assert.Eventually(t, func() bool {
		_, ok, _ := c.Get(ctx, "a")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
