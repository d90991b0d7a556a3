package cohere

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

func TestTranslateHistorySplit(t *testing.T) {
	req := &api.ChatRequest{
		Model: "command-r",
		Messages: []api.ChatMessage{
			{Role: api.System, Content: api.Content{Text: "Be terse."}},
			{Role: api.User, Content: api.Content{Text: "Hi"}},
			{Role: api.Assistant, Content: api.Content{Text: "Hello."}},
			{Role: api.User, Content: api.Content{Text: "How are you?"}},
		},
	}

	out := Translate(req, "command-r-08-2024", false)

	assert.Equal(t, "command-r-08-2024", out.Model)
	assert.Equal(t, "Be terse.", out.Preamble)
	assert.Equal(t, "How are you?", out.Message)
	require.Len(t, out.ChatHistory, 2)
	assert.Equal(t, historyTurn{Role: "USER", Message: "Hi"}, out.ChatHistory[0])
	assert.Equal(t, historyTurn{Role: "CHATBOT", Message: "Hello."}, out.ChatHistory[1])
}

func TestNormalizerStream(t *testing.T) {
	n := NewNormalizer("req-3", "command-r")

	lines := []string{
		`{"event_type":"stream-start","generation_id":"gen_1"}`,
		`{"event_type":"text-generation","text":"Hel"}`,
		`broken`,
		`{"event_type":"text-generation","text":"lo"}`,
		`{"event_type":"stream-end","finish_reason":"COMPLETE","response":{"meta":{"billed_units":{"input_tokens":3,"output_tokens":2}}}}`,
	}

	var chunks []*api.ChatResponse
	for _, line := range lines {
		out, done := n.HandleStreamLine(line)
		chunks = append(chunks, out...)
		if done {
			break
		}
	}

	require.Len(t, chunks, 4)
	assert.Equal(t, "chatcmpl-gen_1", chunks[0].ID)
	assert.Equal(t, "Hel", *chunks[1].Choices[0].Delta.Content)

	last := chunks[3]
	assert.Equal(t, "stop", *last.Choices[0].FinishReason)
	require.NotNil(t, last.Usage)
	assert.Equal(t, 5, last.Usage.TotalTokens)

	stats := n.Stats()
	assert.Equal(t, "Hello", stats.Content)
}

func TestChatBuffered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer co-key", r.Header.Get("Authorization"))

		var body request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hi", body.Message)

		fmt.Fprint(w, `{"text":"Hello!","generation_id":"gen_2","finish_reason":"COMPLETE",
			"meta":{"billed_units":{"input_tokens":1,"output_tokens":2}}}`)
	}))
	defer srv.Close()

	p, err := New(config.ProviderEntry{Name: "co", BaseURL: srv.URL, APIKey: "co-key"}, srv.Client())
	require.NoError(t, err)

	resp, err := p.Chat(context.Background(), upstream.Call{
		Body:          &api.ChatRequest{Model: "command-r", Messages: []api.ChatMessage{{Role: api.User, Content: api.Content{Text: "Hi"}}}},
		UpstreamModel: "command-r",
		ClientModel:   "command-r",
		RequestID:     "req-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "chatcmpl-gen_2", resp.ID)
	assert.Equal(t, "Hello!", resp.Choices[0].Message.Content.Text)
	assert.Equal(t, 3, resp.Usage.TotalTokens)
}
