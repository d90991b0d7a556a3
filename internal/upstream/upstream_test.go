package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proapi/proapi/internal/httpclient"
	"github.com/proapi/proapi/pkg/api"
)

func TestCompletionID(t *testing.T) {
	assert.Equal(t, "chatcmpl-abc", CompletionID("abc"))
	assert.Equal(t, "chatcmpl-abc", CompletionID("chatcmpl-abc"))
}

func TestAccumulatorMergesByID(t *testing.T) {
	var acc Accumulator

	acc.AddCall(api.ToolCall{ID: "call_1", Function: api.FunctionCall{Name: "lookup", Arguments: `{"a"`}})
	acc.AddCall(api.ToolCall{ID: "call_2", Function: api.FunctionCall{Name: "other"}})
	acc.AddCall(api.ToolCall{ID: "call_1", Function: api.FunctionCall{Arguments: `:1}`}})

	stats := acc.Stats()
	require.Len(t, stats.ToolCalls, 2)
	assert.Equal(t, `{"a":1}`, stats.ToolCalls[0].Function.Arguments)
	assert.Equal(t, "function", stats.ToolCalls[0].Type)
}

func TestAccumulatorAppendsToLastOpenCall(t *testing.T) {
	var acc Accumulator

	acc.AddCall(api.ToolCall{ID: "call_1", Function: api.FunctionCall{Name: "lookup", Arguments: `{"x":`}})
	acc.AddCall(api.ToolCall{Function: api.FunctionCall{Arguments: `true}`}})

	stats := acc.Stats()
	require.Len(t, stats.ToolCalls, 1)
	assert.Equal(t, `{"x":true}`, stats.ToolCalls[0].Function.Arguments)
}

func TestAccumulatorUsageFallback(t *testing.T) {
	var acc Accumulator
	acc.SetUsage(3, 2, 0)
	assert.Equal(t, 5, acc.Stats().TotalTokens, "total derives from parts when absent")
}

func TestStopChunkCarriesUsage(t *testing.T) {
	var acc Accumulator
	acc.SetUsage(3, 2, 5)

	c := StopChunk("id", "m", "stop", acc.Stats())
	require.NotNil(t, c.Usage)
	assert.Equal(t, 5, c.Usage.TotalTokens)
	assert.Equal(t, "stop", *c.Choices[0].FinishReason)

	empty := StopChunk("id", "m", "stop", Stats{})
	assert.Nil(t, empty.Usage, "no usage block when the upstream reported none")
}

type lineNormalizer struct{}

func (lineNormalizer) HandleFullResponse([]byte) (*api.ChatResponse, error) { return nil, nil }
func (lineNormalizer) HandleStreamLine(line string) ([]*api.ChatResponse, bool) {
	return []*api.ChatResponse{{ID: line}}, false
}
func (lineNormalizer) Stats() Stats { return Stats{} }

func TestPumpStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for {
			select {
			case <-r.Context().Done():
				return
			default:
				fmt.Fprint(w, "tick\n")
				flusher.Flush()
				time.Sleep(time.Millisecond)
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := httpclient.OpenStream(ctx, http.DefaultClient, http.MethodGet, srv.URL, nil, nil)
	require.NoError(t, err)

	out := Pump(ctx, stream, lineNormalizer{})
	_, ok := <-out
	require.True(t, ok)

	// stop reading, then cancel; the goroutine must close the channel
	// instead of blocking on its next send
	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, open := <-out:
			return !open
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
