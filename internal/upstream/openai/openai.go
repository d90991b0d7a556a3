// Package openai speaks the native OpenAI chat-completions dialect. It is
// the passthrough dialect: requests go upstream nearly verbatim and chunks
// come back already in canonical shape, so normalization is mostly model and
// id rewriting plus accounting.
package openai

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/proapi/proapi/internal/config"
	"github.com/proapi/proapi/internal/httpclient"
	"github.com/proapi/proapi/internal/upstream"
	"github.com/proapi/proapi/pkg/api"
)

const Type = "openai"

const defaultBaseURL = "https://api.openai.com/v1"

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

func (p *Provider) translate(call upstream.Call, stream bool) *api.ChatRequest {
	body := *call.Body
	body.Model = call.UpstreamModel
	body.Stream = stream
	if stream {
		body.StreamOptions = &api.StreamOptions{IncludeUsage: true}
	}
	return &body
}

func (p *Provider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

func (p *Provider) Chat(ctx context.Context, call upstream.Call) (*api.ChatResponse, error) {
	var raw json.RawMessage
	err := httpclient.SendRequest(ctx, p.client, http.MethodPost, p.baseURL+"/chat/completions",
		p.headers(), p.translate(call, false), &raw)
	if err != nil {
		return nil, err
	}
	return NewNormalizer(call.RequestID, call.ClientModel).HandleFullResponse(raw)
}

func (p *Provider) Stream(ctx context.Context, call upstream.Call) (<-chan upstream.StreamResult, error) {
	stream, err := httpclient.OpenStream(ctx, p.client, http.MethodPost, p.baseURL+"/chat/completions",
		p.headers(), p.translate(call, true))
	if err != nil {
		return nil, err
	}
	return upstream.Pump(ctx, stream, NewNormalizer(call.RequestID, call.ClientModel)), nil
}
