// Package upstream defines the provider contract every wire dialect
// implements, plus the canonical response shapes they all emit. Each dialect
// package registers a factory here and the gateway builds provider instances
// from config entries without knowing any dialect's internals.
package upstream

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/proapi/proapi/internal/config"
	"github.com/proapi/proapi/internal/httpclient"
	"github.com/proapi/proapi/pkg/api"
)

// Call carries the per-request routing decision into a provider.
type Call struct {
	// Body is the canonical inbound request.
	Body *api.ChatRequest
	// UpstreamModel is the identifier sent to the provider.
	UpstreamModel string
	// ClientModel is the alias echoed back in every response object.
	ClientModel string
	// RequestID correlates chunks, logs and cache records.
	RequestID string
}

// Stats is the terminal accounting for one completed exchange.
type Stats struct {
	Content          string
	ToolCalls        []api.ToolCall
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	FinishReason     string
}

// StreamResult is one item on a provider's stream channel. Exactly one of
// the fields is set; a Stats item is terminal.
type StreamResult struct {
	Chunk *api.ChatResponse
	Stats *Stats
	Err   error
}

// Provider serves chat completions for one configured upstream account.
// Implementations are safe for concurrent use.
type Provider interface {
	Name() string
	Type() string

	// Chat performs a buffered exchange and returns one canonical response.
	Chat(ctx context.Context, call Call) (*api.ChatResponse, error)

	// Stream opens the upstream stream. It returns a non-nil error only
	// when the upstream rejected the call; once it returns nil the stream
	// is live and results arrive on the channel, which is closed after the
	// terminal Stats item.
	Stream(ctx context.Context, call Call) (<-chan StreamResult, error)
}

// Factory builds a Provider from one config entry.
type Factory func(entry config.ProviderEntry, client httpclient.HTTPClient) (Provider, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs the factory for a provider type. Dialect packages call
// this from init.
func Register(providerType string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[providerType] = f
}

// New builds a provider instance for the entry's type.
func New(entry config.ProviderEntry, client httpclient.HTTPClient) (Provider, error) {
	factoryMu.RLock()
	f, ok := factories[entry.Type]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider type %q", entry.Type)
	}
	return f(entry, client)
}

// Types lists the registered provider types, sorted.
func Types() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	types := make([]string, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
