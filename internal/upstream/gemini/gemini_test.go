package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proapi/proapi/internal/config"
	"github.com/proapi/proapi/internal/upstream"
	"github.com/proapi/proapi/pkg/api"
)

func TestTranslateRoles(t *testing.T) {
	req := &api.ChatRequest{
		Model: "gemini-1.5-pro",
		Messages: []api.ChatMessage{
			{Role: api.System, Content: api.Content{Text: "Be terse."}},
			{Role: api.User, Content: api.Content{Text: "Hi"}},
			{Role: api.Assistant, Content: api.Content{Text: "Hello."}},
		},
		Temperature: 0.5,
		MaxTokens:   128,
	}

	out := Translate(req)

	require.NotNil(t, out.SystemInstruction)
	assert.Equal(t, "Be terse.", out.SystemInstruction.Parts[0].Text)

	require.Len(t, out.Contents, 2, "system turn is hoisted out of contents")
	assert.Equal(t, "user", out.Contents[0].Role)
	assert.Equal(t, "model", out.Contents[1].Role)

	require.NotNil(t, out.GenerationConfig)
	assert.Equal(t, 0.5, out.GenerationConfig.Temperature)
	assert.Equal(t, 128, out.GenerationConfig.MaxOutputTokens)
	assert.Len(t, out.SafetySettings, 4)
}

func TestTranslateInlineImage(t *testing.T) {
	req := &api.ChatRequest{
		Model: "gemini-1.5-pro",
		Messages: []api.ChatMessage{{
			Role: api.User,
			Content: api.Content{Parts: []api.ContentPart{
				{Type: "text", Text: "what is this"},
				{Type: "image_url", ImageURL: &api.ImageURL{URL: "data:image/png;base64,aGk="}},
			}},
		}},
	}

	out := Translate(req)
	require.Len(t, out.Contents, 1)
	require.Len(t, out.Contents[0].Parts, 2)
	img := out.Contents[0].Parts[1].InlineData
	require.NotNil(t, img)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, "aGk=", img.Data)
}

func TestTranslateTools(t *testing.T) {
	req := &api.ChatRequest{
		Model:    "gemini-1.5-pro",
		Messages: []api.ChatMessage{{Role: api.User, Content: api.Content{Text: "weather?"}}},
		Tools: []api.Tool{{Type: "function", Function: api.FunctionDescription{
			Name:       "get_weather",
			Parameters: map[string]interface{}{"type": "object"},
		}}},
	}

	out := Translate(req)
	require.Len(t, out.Tools, 1)
	require.Len(t, out.Tools[0].FunctionDeclarations, 1)
	assert.Equal(t, "get_weather", out.Tools[0].FunctionDeclarations[0].Name)
}

func streamLines() []string {
	return []string{
		`data: {"candidates":[{"content":{"role":"model","parts":[{"text":"Hel"}]}}],"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":1,"totalTokenCount":5}}`,
		`this line is garbage`,
		`data: {"candidates":[{"content":{"role":"model","parts":[{"text":"lo"}]}}],"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":2,"totalTokenCount":6}}`,
		`data: {"candidates":[{"content":{"role":"model","parts":[]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":2,"totalTokenCount":6}}`,
	}
}

func TestNormalizerStream(t *testing.T) {
	n := NewNormalizer("req-9", "gemini-1.5-pro")

	var chunks []*api.ChatResponse
	for _, line := range streamLines() {
		out, done := n.HandleStreamLine(line)
		chunks = append(chunks, out...)
		if done {
			break
		}
	}

	// prologue, two text chunks, stop
	require.Len(t, chunks, 4)
	assert.Equal(t, "chatcmpl-req-9", chunks[0].ID)
	assert.Equal(t, api.Assistant, chunks[0].Choices[0].Delta.Role)
	assert.Equal(t, "Hel", *chunks[1].Choices[0].Delta.Content)
	assert.Equal(t, "lo", *chunks[2].Choices[0].Delta.Content)

	last := chunks[3]
	require.NotNil(t, last.Choices[0].FinishReason)
	assert.Equal(t, "stop", *last.Choices[0].FinishReason)
	require.NotNil(t, last.Usage)
	assert.Equal(t, 6, last.Usage.TotalTokens, "usage is re-read from the final line")

	stats := n.Stats()
	assert.Equal(t, "Hello", stats.Content)
	assert.Equal(t, stats, n.Stats())
}

func TestNormalizerFunctionCall(t *testing.T) {
	n := NewNormalizer("req-9", "gemini-1.5-pro")

	line := `data: {"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"get_weather","args":{"city":"SF"}}}]},"finishReason":"STOP"}]}`
	chunks, done := n.HandleStreamLine(line)
	assert.True(t, done)
	require.Len(t, chunks, 3, "prologue, tool call, stop")

	call := chunks[1].Choices[0].Delta.ToolCalls[0]
	assert.Equal(t, "call_0", call.ID)
	assert.Equal(t, "get_weather", call.Function.Name)
	assert.JSONEq(t, `{"city":"SF"}`, call.Function.Arguments)
}

func TestChatBufferedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":generateContent")
		assert.Equal(t, "gm-key", r.URL.Query().Get("key"))

		var body request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Contents, 1)

		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Hi there"}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":2,"candidatesTokenCount":3,"totalTokenCount":5}}`)
	}))
	defer srv.Close()

	p, err := New(config.ProviderEntry{Name: "gcp", BaseURL: srv.URL, APIKey: "gm-key"}, srv.Client())
	require.NoError(t, err)

	resp, err := p.Chat(context.Background(), upstream.Call{
		Body:          &api.ChatRequest{Model: "g", Messages: []api.ChatMessage{{Role: api.User, Content: api.Content{Text: "Hi"}}}},
		UpstreamModel: "gemini-1.5-pro",
		ClientModel:   "gemini-1.5-pro",
		RequestID:     "req-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, api.Assistant, resp.Choices[0].Message.Role)
	assert.Equal(t, "Hi there", resp.Choices[0].Message.Content.Text)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
}
