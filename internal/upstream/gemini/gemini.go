// Package gemini speaks the Google Generative Language dialect
// (generateContent / streamGenerateContent over SSE).
package gemini

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/proapi/proapi/internal/config"
	"github.com/proapi/proapi/internal/httpclient"
	"github.com/proapi/proapi/internal/upstream"
	"github.com/proapi/proapi/pkg/api"
)

const Type = "gemini"

const defaultBaseURL = "https://generativelanguage.googleapis.com"

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

func (p *Provider) url(call upstream.Call, stream bool) string {
	verb := ":generateContent?key=" + p.apiKey
	if stream {
		verb = ":streamGenerateContent?alt=sse&key=" + p.apiKey
	}
	return p.baseURL + "/v1beta/models/" + call.UpstreamModel + verb
}

func (p *Provider) Chat(ctx context.Context, call upstream.Call) (*api.ChatResponse, error) {
	var raw json.RawMessage
	err := httpclient.SendRequest(ctx, p.client, http.MethodPost, p.url(call, false),
		nil, Translate(call.Body), &raw)
	if err != nil {
		return nil, err
	}
	return NewNormalizer(call.RequestID, call.ClientModel).HandleFullResponse(raw)
}

func (p *Provider) Stream(ctx context.Context, call upstream.Call) (<-chan upstream.StreamResult, error) {
	stream, err := httpclient.OpenStream(ctx, p.client, http.MethodPost, p.url(call, true),
		nil, Translate(call.Body))
	if err != nil {
		return nil, err
	}
	return upstream.Pump(ctx, stream, NewNormalizer(call.RequestID, call.ClientModel)), nil
}
