package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	type payload struct {
		N int `json:"n"`
	}
	require.NoError(t, c.Set(ctx, "k", payload{N: 7}, time.Minute))

	var out payload
	require.NoError(t, c.Get(ctx, "k", &out))
	assert.Equal(t, 7, out.N)

	require.NoError(t, c.Delete(ctx, "k"))
	assert.Error(t, c.Get(ctx, "k", &out))
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1, -time.Second))
	var out int
	assert.Error(t, c.Get(ctx, "k", &out))
}
