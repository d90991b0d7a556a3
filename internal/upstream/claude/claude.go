// Package claude speaks the Anthropic messages dialect. The translator and
// normalizer here also back the vertexai-claude provider, which reuses them
// over Google's OAuth transport.
package claude

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/proapi/proapi/internal/config"
	"github.com/proapi/proapi/internal/httpclient"
	"github.com/proapi/proapi/internal/upstream"
	"github.com/proapi/proapi/pkg/api"
)

const Type = "claude"

const (
	defaultBaseURL   = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

func init() {
	upstream.Register(Type, New)
}

type Provider struct {
	name    string
	baseURL string
	apiKey  string
	client  httpclient.HTTPClient
}

func New(entry config.ProviderEntry, client httpclient.HTTPClient) (upstream.Provider, error) {
	baseURL := entry.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		name:    entry.Name,
		baseURL: baseURL,
		apiKey:  entry.APIKey,
		client:  client,
	}, nil
}

func (p *Provider) Name() string { return p.name }
func (p *Provider) Type() string { return Type }

func (p *Provider) headers() map[string]string {
	return map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}
}

func (p *Provider) Chat(ctx context.Context, call upstream.Call) (*api.ChatResponse, error) {
	var raw json.RawMessage
	err := httpclient.SendRequest(ctx, p.client, http.MethodPost, p.baseURL+"/v1/messages",
		p.headers(), Translate(call.Body, call.UpstreamModel, false), &raw)
	if err != nil {
		return nil, err
	}
	return NewNormalizer(call.RequestID, call.ClientModel).HandleFullResponse(raw)
}

func (p *Provider) Stream(ctx context.Context, call upstream.Call) (<-chan upstream.StreamResult, error) {
	stream, err := httpclient.OpenStream(ctx, p.client, http.MethodPost, p.baseURL+"/v1/messages",
		p.headers(), Translate(call.Body, call.UpstreamModel, true))
	if err != nil {
		return nil, err
	}
	return upstream.Pump(ctx, stream, NewNormalizer(call.RequestID, call.ClientModel)), nil
}
