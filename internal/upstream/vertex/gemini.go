package vertex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/proapi/proapi/internal/config"
	"github.com/proapi/proapi/internal/httpclient"
	"github.com/proapi/proapi/internal/upstream"
	"github.com/proapi/proapi/internal/upstream/gemini"
	"github.com/proapi/proapi/pkg/api"
)

const TypeGemini = "vertexai-gemini"

var geminiRegions = []string{
	"us-central1",
	"us-east4",
	"us-west1",
	"europe-west4",
	"asia-northeast1",
}

func init() {
	upstream.Register(TypeGemini, NewGemini)
}

type GeminiProvider struct {
	name    string
	project string
	tokens  *tokenSource
	regions *rotator
	client  httpclient.HTTPClient
}

func NewGemini(entry config.ProviderEntry, client httpclient.HTTPClient) (upstream.Provider, error) {
	creds, err := credentials(entry)
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{
		name:    entry.Name,
		project: creds.project,
		tokens:  sourceFor(creds.clientID, creds.clientSecret, creds.refreshToken, client),
		regions: newRotator(geminiRegions),
		client:  client,
	}, nil
}

func (p *GeminiProvider) Name() string { return p.name }
func (p *GeminiProvider) Type() string { return TypeGemini }

func (p *GeminiProvider) url(region, model, verb string) string {
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:%s",
		region, p.project, region, model, verb)
}

func (p *GeminiProvider) Chat(ctx context.Context, call upstream.Call) (*api.ChatResponse, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	err = httpclient.SendRequest(ctx, p.client, http.MethodPost,
		p.url(p.regions.next(), call.UpstreamModel, "generateContent"),
		bearer(token), gemini.Translate(call.Body), &raw)
	if err != nil {
		return nil, err
	}
	return gemini.NewNormalizer(call.RequestID, call.ClientModel).HandleFullResponse(raw)
}

func (p *GeminiProvider) Stream(ctx context.Context, call upstream.Call) (<-chan upstream.StreamResult, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	stream, err := httpclient.OpenStream(ctx, p.client, http.MethodPost,
		p.url(p.regions.next(), call.UpstreamModel, "streamGenerateContent?alt=sse"),
		bearer(token), gemini.Translate(call.Body))
	if err != nil {
		return nil, err
	}
	return upstream.Pump(ctx, stream, gemini.NewNormalizer(call.RequestID, call.ClientModel)), nil
}

type creds struct {
	project      string
	clientID     string
	clientSecret string
	refreshToken string
}

func credentials(entry config.ProviderEntry) (creds, error) {
	c := creds{
		project:      entry.Extra["project_id"],
		clientID:     entry.Extra["client_id"],
		clientSecret: entry.Extra["client_secret"],
		refreshToken: entry.Extra["refresh_token"],
	}
	if c.project == "" || c.clientID == "" || c.clientSecret == "" || c.refreshToken == "" {
		return creds{}, fmt.Errorf("provider %q needs project_id, client_id, client_secret and refresh_token", entry.Name)
	}
	return c, nil
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
