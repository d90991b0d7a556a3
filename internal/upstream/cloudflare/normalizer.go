package cloudflare

import (
	"encoding/json"
	"strings"

	"github.com/proapi/proapi/internal/upstream"
	"github.com/proapi/proapi/pkg/api"
)

type streamEvent struct {
	Response string `json:"response"`
	Usage    *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type result struct {
	Result  streamEvent `json:"result"`
	Success bool        `json:"success"`
}

// Normalizer converts Workers AI payloads into canonical chunks. The stream
// has no finish event of its own, so the [DONE] marker drives the stop
// chunk.
type Normalizer struct {
	acc upstream.Accumulator

	requestID    string
	clientModel  string
	sentPrologue bool
}

func NewNormalizer(requestID, clientModel string) *Normalizer {
	return &Normalizer{requestID: requestID, clientModel: clientModel}
}

func (n *Normalizer) HandleFullResponse(body []byte) (*api.ChatResponse, error) {
	var resp result
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	n.acc.AddText(resp.Result.Response)
	n.acc.SetFinish("stop")
	n.absorbUsage(&resp.Result)

	return upstream.FullResponse(n.requestID, n.clientModel, n.acc.Stats()), nil
}

func (n *Normalizer) HandleStreamLine(line string) ([]*api.ChatResponse, bool) {
	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return nil, false
	}
	payload = strings.TrimSpace(payload)
	if payload == "[DONE]" {
		n.acc.SetFinish("stop")
		return []*api.ChatResponse{upstream.StopChunk(n.requestID, n.clientModel, "stop", n.acc.Stats())}, true
	}

	var ev streamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return nil, false
	}

	var chunks []*api.ChatResponse
	if !n.sentPrologue {
		n.sentPrologue = true
		chunks = append(chunks, upstream.PrologueChunk(n.requestID, n.clientModel))
	}
	n.absorbUsage(&ev)
	if ev.Response != "" {
		n.acc.AddText(ev.Response)
		chunks = append(chunks, upstream.ContentChunk(n.requestID, n.clientModel, ev.Response))
	}
	return chunks, false
}

func (n *Normalizer) Stats() upstream.Stats {
	return n.acc.Stats()
}

func (n *Normalizer) absorbUsage(ev *streamEvent) {
	if ev.Usage == nil {
		return
	}
	n.acc.SetUsage(ev.Usage.PromptTokens, ev.Usage.CompletionTokens, ev.Usage.TotalTokens)
}
