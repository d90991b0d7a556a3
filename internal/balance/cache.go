package balance

import (
	"sync"

	"github.com/proapi/proapi/internal/config"
)

// Key identifies one balancer: the same token asking for the same model
// keeps its rotation position across requests.
type Key struct {
	Token string
	Model string
}

// Cache keeps live balancers per (token, model) route. Reset drops every
// balancer so a config reload starts all rotations from scratch.
type Cache struct {
	mu        sync.Mutex
	balancers map[Key]*Balancer
}

func NewCache() *Cache {
	return &Cache{balancers: make(map[Key]*Balancer)}
}

// Get returns the balancer for key, building it from entries on first use.
func (c *Cache) Get(key Key, entries []config.ProviderEntry) *Balancer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.balancers[key]; ok {
		return b
	}
	b := New(entries)
	c.balancers[key] = b
	return b
}

func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balancers = make(map[Key]*Balancer)
}
