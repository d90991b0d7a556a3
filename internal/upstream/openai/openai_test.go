package openai

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

func testCall() upstream.Call {
	return upstream.Call{
		Body: &api.ChatRequest{
			Model:    "gpt-4o-lite",
			Messages: []api.ChatMessage{{Role: api.User, Content: api.Content{Text: "Hi"}}},
		},
		UpstreamModel: "gpt-4o-mini",
		ClientModel:   "gpt-4o-lite",
		RequestID:     "req-1",
	}
}

func TestChatRewritesModelAndID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-up", r.Header.Get("Authorization"))

		var body api.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body.Model, "upstream sees the mapped model")
		assert.False(t, body.Stream)

		fmt.Fprint(w, `{"id":"abc123","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Hello!"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`)
	}))
	defer srv.Close()

	p, err := New(config.ProviderEntry{Name: "east", BaseURL: srv.URL, APIKey: "sk-up"}, srv.Client())
	require.NoError(t, err)

	resp, err := p.Chat(context.Background(), testCall())
	require.NoError(t, err)
	assert.Equal(t, "chatcmpl-abc123", resp.ID)
	assert.Equal(t, "gpt-4o-lite", resp.Model, "client sees its own alias")
	assert.Equal(t, "Hello!", resp.Choices[0].Message.Content.Text)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestStreamAccumulatesStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"id":"abc","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant","content":""}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"id":"abc","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"Hel"}}]}`+"\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, `data: {"id":"abc","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"lo"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"id":"abc","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p, err := New(config.ProviderEntry{Name: "east", BaseURL: srv.URL, APIKey: "sk-up"}, srv.Client())
	require.NoError(t, err)

	results, err := p.Stream(context.Background(), testCall())
	require.NoError(t, err)

	var chunks []*api.ChatResponse
	var stats *upstream.Stats
	for r := range results {
		require.NoError(t, r.Err)
		if r.Chunk != nil {
			chunks = append(chunks, r.Chunk)
		}
		if r.Stats != nil {
			stats = r.Stats
		}
	}

	require.Len(t, chunks, 4, "the corrupt line is skipped, not fatal")
	assert.Equal(t, "gpt-4o-lite", chunks[0].Model)
	assert.Equal(t, api.Assistant, chunks[0].Choices[0].Delta.Role)

	require.NotNil(t, stats)
	assert.Equal(t, "Hello", stats.Content)
	assert.Equal(t, "stop", stats.FinishReason)
	assert.Equal(t, 5, stats.TotalTokens)
}

func TestNormalizerMergesToolCallFragments(t *testing.T) {
	n := NewNormalizer("req-1", "gpt-4o")

	lines := []string{
		`data: {"id":"abc","choices":[{"index":0,"delta":{"tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"ci"}}]}}]}`,
		`data: {"id":"abc","choices":[{"index":0,"delta":{"tool_calls":[{"function":{"arguments":"ty\":\"SF\"}"}}]}}]}`,
		`data: {"id":"abc","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
	}
	for _, line := range lines {
		_, done := n.HandleStreamLine(line)
		if done {
			break
		}
	}

	stats := n.Stats()
	require.Len(t, stats.ToolCalls, 1)
	assert.Equal(t, "call_1", stats.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", stats.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"city":"SF"}`, stats.ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool_calls", stats.FinishReason)

	again := n.Stats()
	assert.Equal(t, stats, again, "stats are stable without new lines")
}
