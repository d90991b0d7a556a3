package vertex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/proapi/proapi/internal/config"
	"github.com/proapi/proapi/internal/httpclient"
	"github.com/proapi/proapi/internal/upstream"
	"github.com/proapi/proapi/internal/upstream/claude"
	"github.com/proapi/proapi/pkg/api"
)

const TypeClaude = "vertexai-claude"

// The anthropic_version pinned for Vertex-served Claude models.
const vertexAnthropicVersion = "vertex-2023-10-16"

var claudeRegions = []string{
	"us-east5",
	"europe-west1",
	"asia-southeast1",
}

func init() {
	upstream.Register(TypeClaude, NewClaude)
}

type ClaudeProvider struct {
	name    string
	project string
	tokens  *tokenSource
	regions *rotator
	client  httpclient.HTTPClient
}

func NewClaude(entry config.ProviderEntry, client httpclient.HTTPClient) (upstream.Provider, error) {
	creds, err := credentials(entry)
	if err != nil {
		return nil, err
	}
	return &ClaudeProvider{
		name:    entry.Name,
		project: creds.project,
		tokens:  sourceFor(creds.clientID, creds.clientSecret, creds.refreshToken, client),
		regions: newRotator(claudeRegions),
		client:  client,
	}, nil
}

func (p *ClaudeProvider) Name() string { return p.name }
func (p *ClaudeProvider) Type() string { return TypeClaude }

func (p *ClaudeProvider) url(region, model, verb string) string {
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/anthropic/models/%s:%s",
		region, p.project, region, model, verb)
}

// translate builds the messages body in Vertex form: the model rides in the
// URL, the body carries anthropic_version instead.
func (p *ClaudeProvider) translate(call upstream.Call, stream bool) *claude.Request {
	body := claude.Translate(call.Body, "", stream)
	body.AnthropicVersion = vertexAnthropicVersion
	return body
}

func (p *ClaudeProvider) Chat(ctx context.Context, call upstream.Call) (*api.ChatResponse, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	err = httpclient.SendRequest(ctx, p.client, http.MethodPost,
		p.url(p.regions.next(), call.UpstreamModel, "rawPredict"),
		bearer(token), p.translate(call, false), &raw)
	if err != nil {
		return nil, err
	}
	return claude.NewNormalizer(call.RequestID, call.ClientModel).HandleFullResponse(raw)
}

func (p *ClaudeProvider) Stream(ctx context.Context, call upstream.Call) (<-chan upstream.StreamResult, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	stream, err := httpclient.OpenStream(ctx, p.client, http.MethodPost,
		p.url(p.regions.next(), call.UpstreamModel, "streamRawPredict"),
		bearer(token), p.translate(call, true))
	if err != nil {
		return nil, err
	}
	return upstream.Pump(ctx, stream, claude.NewNormalizer(call.RequestID, call.ClientModel)), nil
}
