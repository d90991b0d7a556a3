// Package routing holds the authorization and provider-selection tables
// derived from the manifest, and resolves which upstream entries may serve
// a request.
package routing

import (
	"sort"
	"sync/atomic"

	"github.com/proapi/proapi/internal/config"
)

// Snapshot is one immutable routing table. A reload builds a fresh Snapshot
// and swaps it in atomically; in-flight requests keep the table they
// started with.
type Snapshot struct {
	// routes maps a client-facing model alias to every provider entry that
	// can serve it, in manifest order.
	routes map[string][]config.ProviderEntry
	// tokens maps an api key to its allowed model patterns.
	tokens map[string][]string

	defaultModel string
}

func NewSnapshot(cfg *config.Config) *Snapshot {
	s := &Snapshot{
		routes:       make(map[string][]config.ProviderEntry),
		tokens:       make(map[string][]string, len(cfg.Tokens)),
		defaultModel: cfg.Server.DefaultModel,
	}
	for _, e := range cfg.Providers {
		s.routes[e.OriginalModel] = append(s.routes[e.OriginalModel], e)
	}
	for _, t := range cfg.Tokens {
		s.tokens[t.APIKey] = t.Models
	}
	return s
}

// TokenKnown reports whether the api key appears in the token table.
func (s *Snapshot) TokenKnown(token string) bool {
	_, ok := s.tokens[token]
	return ok
}

// DefaultModel returns the fallback model served when a request names none.
func (s *Snapshot) DefaultModel() string {
	return s.defaultModel
}

// ModelNames returns every routable model alias, sorted.
func (s *Snapshot) ModelNames() []string {
	names := make([]string, 0, len(s.routes))
	for name := range s.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Holder publishes the live Snapshot. Swap is called on reload; Load is
// wait-free for the request path.
type Holder struct {
	ptr atomic.Pointer[Snapshot]
}

func NewHolder(s *Snapshot) *Holder {
	h := &Holder{}
	h.ptr.Store(s)
	return h
}

func (h *Holder) Load() *Snapshot { return h.ptr.Load() }

func (h *Holder) Swap(s *Snapshot) { h.ptr.Store(s) }
