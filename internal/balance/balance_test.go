package balance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proapi/proapi/internal/config"
)

func entry(name string, weight int) config.ProviderEntry {
	return config.ProviderEntry{Name: name, Type: "openai", Weight: weight}
}

func drain(b *Balancer, n int) []string {
	var picks []string
	for i := 0; i < n; i++ {
		e, ok := b.Next()
		if !ok {
			break
		}
		picks = append(picks, e.Name)
	}
	return picks
}

func TestNextServesWeightedBursts(t *testing.T) {
	b := New([]config.ProviderEntry{entry("a", 1), entry("b", 2), entry("c", 0)})

	assert.Equal(t, []string{"a", "b", "b", "a", "b", "b"}, drain(b, 6),
		"each entry is served for weight consecutive picks, zero-weight skipped")
}

func TestNextSingleEntry(t *testing.T) {
	b := New([]config.ProviderEntry{entry("solo", 1)})
	assert.Equal(t, []string{"solo", "solo", "solo"}, drain(b, 3))
}

func TestNextAllZeroWeights(t *testing.T) {
	b := New([]config.ProviderEntry{entry("a", 0), entry("b", 0)})
	_, ok := b.Next()
	assert.False(t, ok)
}

func TestNextEmpty(t *testing.T) {
	b := New(nil)
	_, ok := b.Next()
	assert.False(t, ok)
}

func TestCacheKeepsRotationPerRoute(t *testing.T) {
	cache := NewCache()
	entries := []config.ProviderEntry{entry("a", 1), entry("b", 1)}

	key := Key{Token: "sk-1", Model: "gpt-4o"}
	first, ok := cache.Get(key, entries).Next()
	require.True(t, ok)
	second, ok := cache.Get(key, entries).Next()
	require.True(t, ok)
	assert.NotEqual(t, first.Name, second.Name, "rotation position survives between lookups")

	other, ok := cache.Get(Key{Token: "sk-2", Model: "gpt-4o"}, entries).Next()
	require.True(t, ok)
	assert.Equal(t, "a", other.Name, "routes do not share rotation state")
}

func TestCacheReset(t *testing.T) {
	cache := NewCache()
	entries := []config.ProviderEntry{entry("a", 1), entry("b", 1)}
	key := Key{Token: "sk-1", Model: "gpt-4o"}

	cache.Get(key, entries).Next()
	cache.Reset()

	e, ok := cache.Get(key, entries).Next()
	require.True(t, ok)
	assert.Equal(t, "a", e.Name, "reset restarts the rotation")
}
