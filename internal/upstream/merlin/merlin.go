// Package merlin speaks the Merlin unified-thread dialect. The whole
// conversation is flattened into one "role: content" transcript, and every
// exchange is a stream; buffered calls drain the stream server-side.
package merlin

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/proapi/proapi/internal/config"
	"github.com/proapi/proapi/internal/httpclient"
	"github.com/proapi/proapi/internal/upstream"
	"github.com/proapi/proapi/pkg/api"
)

const Type = "merlin"

const defaultBaseURL = "https://arcane.getmerlin.in"

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

type request struct {
	Attachments []interface{} `json:"attachments"`
	ChatID      string        `json:"chatId"`
	Language    string        `json:"language"`
	Message     threadMessage `json:"message"`
	Metadata    metadata      `json:"metadata"`
	Mode        string        `json:"mode"`
	Model       string        `json:"model"`
}

type threadMessage struct {
	ChildID  string `json:"childId"`
	Content  string `json:"content"`
	Context  string `json:"context"`
	ID       string `json:"id"`
	ParentID string `json:"parentId"`
}

type metadata struct {
	MerlinMagic bool `json:"merlinMagic"`
	WebAccess   bool `json:"webAccess"`
}

// translate flattens the conversation into a single transcript, one
// "role: content" line per turn.
func translate(req *api.ChatRequest, upstreamModel string) *request {
	var content string
	for _, m := range req.Messages {
		switch m.Role {
		case api.System, api.User, api.Assistant:
			content += fmt.Sprintf("%s: %s\n", m.Role, m.Content.Text)
		}
	}

	return &request{
		Attachments: []interface{}{},
		ChatID:      uuid.NewString(),
		Language:    "AUTO",
		Message: threadMessage{
			ChildID:  uuid.NewString(),
			Content:  content,
			ID:       uuid.NewString(),
			ParentID: "root",
		},
		Mode:  "UNIFIED_CHAT",
		Model: upstreamModel,
	}
}

func (p *Provider) headers() map[string]string {
	return map[string]string{
		"Authorization":    "Bearer " + p.apiKey,
		"x-merlin-version": "web-merlin",
	}
}

func (p *Provider) open(ctx context.Context, call upstream.Call) (*httpclient.Stream, error) {
	return httpclient.OpenStream(ctx, p.client, http.MethodPost, p.baseURL+"/v1/thread/unified",
		p.headers(), translate(call.Body, call.UpstreamModel))
}

// Chat drains the stream and assembles one buffered response; the upstream
// has no non-streaming endpoint.
func (p *Provider) Chat(ctx context.Context, call upstream.Call) (*api.ChatResponse, error) {
	stream, err := p.open(ctx, call)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	n := NewNormalizer(call.RequestID, call.ClientModel)
	for {
		line, ok := stream.Next()
		if !ok {
			break
		}
		if _, done := n.HandleStreamLine(line); done {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return upstream.FullResponse(call.RequestID, call.ClientModel, n.Stats()), nil
}

func (p *Provider) Stream(ctx context.Context, call upstream.Call) (<-chan upstream.StreamResult, error) {
	stream, err := p.open(ctx, call)
	if err != nil {
		return nil, err
	}
	return upstream.Pump(ctx, stream, NewNormalizer(call.RequestID, call.ClientModel)), nil
}
