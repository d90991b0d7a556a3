package gateway

import (
	"sync"

	"github.com/proapi/proapi/internal/config"
	"github.com/proapi/proapi/internal/httpclient"
	"github.com/proapi/proapi/internal/upstream"
)

// registry caches provider instances per account so OAuth tokens, region
// cursors and connection state survive across requests. A reload drops every
// instance; the next request rebuilds from the fresh entries.
type registry struct {
	client httpclient.HTTPClient

	mu        sync.Mutex
	providers map[string]upstream.Provider
}

func newRegistry(client httpclient.HTTPClient) *registry {
	return &registry{
		client:    client,
		providers: make(map[string]upstream.Provider),
	}
}

func (r *registry) providerFor(entry config.ProviderEntry) (upstream.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[entry.Key()]; ok {
		return p, nil
	}
	p, err := upstream.New(entry, r.client)
	if err != nil {
		return nil, err
	}
	r.providers[entry.Key()] = p
	return p, nil
}

func (r *registry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = make(map[string]upstream.Provider)
}
