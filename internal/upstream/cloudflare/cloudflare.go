// Package cloudflare speaks the Workers AI dialect: OpenAI-shaped messages
// in, a bare {response} envelope out.
package cloudflare

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/proapi/proapi/internal/config"
	"github.com/proapi/proapi/internal/httpclient"
	"github.com/proapi/proapi/internal/upstream"
	"github.com/proapi/proapi/pkg/api"
)

const Type = "cloudflare"

const defaultBaseURL = "https://api.cloudflare.com/client/v4"

func init() {
	upstream.Register(Type, New)
}

type Provider struct {
	name      string
	baseURL   string
	accountID string
	apiKey    string
	client    httpclient.HTTPClient
}

func New(entry config.ProviderEntry, client httpclient.HTTPClient) (upstream.Provider, error) {
	accountID := entry.Extra["account_id"]
	if accountID == "" {
		return nil, fmt.Errorf("provider %q needs account_id", entry.Name)
	}
	baseURL := entry.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		name:      entry.Name,
		baseURL:   baseURL,
		accountID: accountID,
		apiKey:    entry.APIKey,
		client:    client,
	}, nil
}

func (p *Provider) Name() string { return p.name }
func (p *Provider) Type() string { return Type }

func (p *Provider) url(model string) string {
	return fmt.Sprintf("%s/accounts/%s/ai/run/%s", p.baseURL, p.accountID, model)
}

func (p *Provider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

type request struct {
	Messages    []message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func translate(req *api.ChatRequest, stream bool) *request {
	out := &request{
		Stream:      stream,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		text := m.Content.Text
		if m.Content.Parts != nil {
			text = ""
			for _, p := range m.Content.Parts {
				if p.Type == "text" {
					text += p.Text
				}
			}
		}
		role := m.Role
		if role == api.ModelAssistant {
			role = api.Assistant
		}
		out.Messages = append(out.Messages, message{Role: role, Content: text})
	}
	return out
}

func (p *Provider) Chat(ctx context.Context, call upstream.Call) (*api.ChatResponse, error) {
	var raw json.RawMessage
	err := httpclient.SendRequest(ctx, p.client, http.MethodPost, p.url(call.UpstreamModel),
		p.headers(), translate(call.Body, false), &raw)
	if err != nil {
		return nil, err
	}
	return NewNormalizer(call.RequestID, call.ClientModel).HandleFullResponse(raw)
}

func (p *Provider) Stream(ctx context.Context, call upstream.Call) (<-chan upstream.StreamResult, error) {
	stream, err := httpclient.OpenStream(ctx, p.client, http.MethodPost, p.url(call.UpstreamModel),
		p.headers(), translate(call.Body, true))
	if err != nil {
		return nil, err
	}
	return upstream.Pump(ctx, stream, NewNormalizer(call.RequestID, call.ClientModel)), nil
}
