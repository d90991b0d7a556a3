// Package balance selects upstream provider entries using weighted
// round-robin. Each balancer walks its entry list in order and serves an
// entry for `weight` consecutive picks before moving on, so a weight list
// of [1, 2] over [A, B] yields A, B, B, A, B, B, ...
package balance

import (
	"sync"

	"github.com/proapi/proapi/internal/config"
)

// Balancer hands out provider entries for one (token, model) route.
// Safe for concurrent use.
type Balancer struct {
	mu        sync.Mutex
	entries   []config.ProviderEntry
	cursor    int
	remaining int
}

func New(entries []config.ProviderEntry) *Balancer {
	return &Balancer{entries: entries, cursor: -1}
}

// Next returns the next entry in the weighted rotation, or false when every
// entry carries zero weight (or the list is empty).
func (b *Balancer) Next() (config.ProviderEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.remaining > 0 {
		b.remaining--
		return b.entries[b.cursor], true
	}

	// Advance to the next entry with a positive weight. One full lap with
	// no hit means nothing is selectable.
	for i := 0; i < len(b.entries); i++ {
		b.cursor = (b.cursor + 1) % len(b.entries)
		if w := b.entries[b.cursor].Weight; w > 0 {
			b.remaining = w - 1
			return b.entries[b.cursor], true
		}
	}

	var zero config.ProviderEntry
	return zero, false
}

// Entries returns the balancer's candidate list in config order.
func (b *Balancer) Entries() []config.ProviderEntry {
	return b.entries
}
