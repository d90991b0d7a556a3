package openai

import (
	"encoding/json"
	"strings"

	"github.com/proapi/proapi/internal/upstream"
	"github.com/proapi/proapi/pkg/api"
)

// Normalizer rewrites OpenAI-shaped responses onto the client's model alias
// while accumulating usage and tool-call fragments for the request record.
type Normalizer struct {
	acc upstream.Accumulator

	requestID   string
	clientModel string
}

func NewNormalizer(requestID, clientModel string) *Normalizer {
	return &Normalizer{requestID: requestID, clientModel: clientModel}
}

func (n *Normalizer) HandleFullResponse(body []byte) (*api.ChatResponse, error) {
	var resp api.ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	for _, choice := range resp.Choices {
		if choice.Message == nil {
			continue
		}
		n.acc.AddText(choice.Message.Content.Text)
		for _, call := range choice.Message.ToolCalls {
			n.acc.AddCall(call)
		}
		if choice.FinishReason != nil {
			n.acc.SetFinish(*choice.FinishReason)
		}
	}
	if resp.Usage != nil {
		n.acc.SetUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	}

	n.rewrite(&resp)
	return &resp, nil
}

func (n *Normalizer) HandleStreamLine(line string) ([]*api.ChatResponse, bool) {
	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return nil, false
	}
	payload = strings.TrimSpace(payload)
	if payload == "[DONE]" {
		return nil, true
	}

	var chunk api.ChatResponse
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return nil, false
	}

	for _, choice := range chunk.Choices {
		if choice.Delta != nil {
			if choice.Delta.Content != nil {
				n.acc.AddText(*choice.Delta.Content)
			}
			for _, call := range choice.Delta.ToolCalls {
				n.acc.AddCall(call)
			}
		}
		if choice.FinishReason != nil {
			n.acc.SetFinish(*choice.FinishReason)
		}
	}
	if chunk.Usage != nil {
		n.acc.SetUsage(chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens, chunk.Usage.TotalTokens)
	}

	n.rewrite(&chunk)
	return []*api.ChatResponse{&chunk}, false
}

func (n *Normalizer) Stats() upstream.Stats {
	return n.acc.Stats()
}

func (n *Normalizer) rewrite(resp *api.ChatResponse) {
	if resp.ID == "" {
		resp.ID = n.requestID
	}
	resp.ID = upstream.CompletionID(resp.ID)
	resp.Model = n.clientModel
}
