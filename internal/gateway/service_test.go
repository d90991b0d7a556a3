package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/proapi/proapi/internal/config"
	"github.com/proapi/proapi/internal/routing"
	"github.com/proapi/proapi/internal/store/cache"
	"github.com/proapi/proapi/internal/store/model"
	_ "github.com/proapi/proapi/internal/upstream/openai"
	"github.com/proapi/proapi/pkg/api"
)

type captureIngestor struct {
	mu   sync.Mutex
	logs []*model.RequestLog
}

func (c *captureIngestor) Log(log *model.RequestLog) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, log)
}
func (c *captureIngestor) Start(context.Context) {}
func (c *captureIngestor) Stop()                 {}

func (c *captureIngestor) last() *model.RequestLog {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.logs) == 0 {
		return nil
	}
	return c.logs[len(c.logs)-1]
}

func testService(t *testing.T, upstreamURL string, respCache cache.Service) (*Service, *captureIngestor) {
	t.Helper()
	cfg := &config.Config{
		Providers: []config.ProviderEntry{{
			Name: "east", Type: "openai",
			MappedModel: "gpt-4o-mini", OriginalModel: "gpt-4o",
			BaseURL: upstreamURL, APIKey: "sk-up", Weight: 1,
		}},
		Tokens: []config.TokenConfig{{APIKey: "sk-user", Models: []string{"gpt-4o"}}},
		Server: config.ServerConfig{},
	}
	ing := &captureIngestor{}
	svc := NewService(zap.NewNop(), routing.NewHolder(routing.NewSnapshot(cfg)), ing, respCache, http.DefaultClient)
	return svc, ing
}

func chatRequest() *api.ChatRequest {
	return &api.ChatRequest{
		Model:    "gpt-4o",
		Messages: []api.ChatMessage{{Role: api.User, Content: api.Content{Text: "Hi"}}},
	}
}

func TestChatDispatch(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, `{"id":"abc","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Hello!"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`)
	}))
	defer srv.Close()

	svc, ing := testService(t, srv.URL, cache.NewMemoryCache())

	resp, err := svc.Chat(context.Background(), "sk-user", "req-1", chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", resp.Model)
	assert.Equal(t, "Hello!", resp.Choices[0].Message.Content.Text)

	log := ing.last()
	require.NotNil(t, log)
	assert.Equal(t, "ok", log.Status)
	assert.Equal(t, "gpt-4o", log.Model)
	assert.Equal(t, "gpt-4o-mini", log.UpstreamModel)
	assert.Equal(t, 5, log.TotalTokens)

	// identical request is served from the cache
	resp2, err := svc.Chat(context.Background(), "sk-user", "req-2", chatRequest())
	require.NoError(t, err)
	assert.Equal(t, resp.ID, resp2.ID)
	assert.Equal(t, 1, hits)
}

func TestChatUnauthorized(t *testing.T) {
	svc, _ := testService(t, "http://127.0.0.1:0", nil)

	_, err := svc.Chat(context.Background(), "sk-wrong", "req-1", chatRequest())
	var p *api.Problem
	require.ErrorAs(t, err, &p)
	assert.Equal(t, http.StatusUnauthorized, p.Status)
}

func TestChatUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	svc, ing := testService(t, srv.URL, nil)

	_, err := svc.Chat(context.Background(), "sk-user", "req-1", chatRequest())
	var p *api.Problem
	require.ErrorAs(t, err, &p)
	assert.Equal(t, http.StatusTooManyRequests, p.Status)

	log := ing.last()
	require.NotNil(t, log)
	assert.Equal(t, "error", log.Status)
}

func TestStreamDispatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"id":"abc","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant","content":""}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"id":"abc","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"Hi"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"id":"abc","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	svc, ing := testService(t, srv.URL, nil)

	req := chatRequest()
	req.Stream = true
	results, err := svc.Stream(context.Background(), "sk-user", "req-1", req)
	require.NoError(t, err)

	var chunks, statItems int
	for r := range results {
		require.NoError(t, r.Err)
		if r.Chunk != nil {
			chunks++
		}
		if r.Stats != nil {
			statItems++
			assert.Equal(t, 2, r.Stats.TotalTokens)
		}
	}
	assert.Equal(t, 3, chunks)
	assert.Equal(t, 1, statItems, "exactly one terminal stats item")

	log := ing.last()
	require.NotNil(t, log)
	assert.True(t, log.Stream)
	assert.Equal(t, "ok", log.Status)
}

func TestStreamAbandonedConsumerReleasesGoroutines(t *testing.T) {
	// upstream that drips chunks until the client goes away
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for {
			select {
			case <-r.Context().Done():
				return
			default:
				fmt.Fprint(w, `data: {"id":"abc","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"x"}}]}`+"\n\n")
				flusher.Flush()
				time.Sleep(time.Millisecond)
			}
		}
	}))
	defer srv.Close()

	svc, _ := testService(t, srv.URL, nil)
	before := runtime.NumGoroutine()

	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		req := chatRequest()
		req.Stream = true
		results, err := svc.Stream(ctx, "sk-user", fmt.Sprintf("req-%d", i), req)
		require.NoError(t, err)

		// read one chunk, then walk away without draining the channel
		_, ok := <-results
		require.True(t, ok)
		cancel()
	}

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, 2*time.Second, 25*time.Millisecond, "pump and forwarding goroutines must exit once the consumer is gone")
}

func TestReloadClearsState(t *testing.T) {
	svc, _ := testService(t, "http://127.0.0.1:0", nil)

	svc.Reload(&config.Config{
		Providers: []config.ProviderEntry{{
			Name: "west", Type: "openai",
			MappedModel: "m", OriginalModel: "m", Weight: 1,
		}},
		Tokens: []config.TokenConfig{{APIKey: "sk-new", Models: []string{"m"}}},
	})

	assert.Equal(t, []string{"m"}, svc.Snapshot().ListModels("sk-new"))
	_, err := svc.Chat(context.Background(), "sk-user", "req-1", chatRequest())
	assert.Error(t, err, "old token is gone after reload")
}

func TestListModels(t *testing.T) {
	svc, _ := testService(t, "http://127.0.0.1:0", nil)
	models := svc.ListModels("sk-user")
	require.Len(t, models, 1)
	assert.Equal(t, "gpt-4o", models[0].ID)
	assert.Equal(t, "model", models[0].Object)
}
