package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/proapi/proapi/internal/upstream"
	"github.com/proapi/proapi/pkg/api"
)

type response struct {
	Candidates []struct {
		Content struct {
			Role  string `json:"role"`
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Normalizer converts generateContent payloads into canonical chunks. Usage
// metadata is re-read from every line because the upstream repeats it with
// growing candidate counts.
type Normalizer struct {
	acc upstream.Accumulator

	requestID   string
	clientModel string

	sentPrologue bool
	callIndex    int
}

func NewNormalizer(requestID, clientModel string) *Normalizer {
	return &Normalizer{requestID: requestID, clientModel: clientModel}
}

func (n *Normalizer) HandleFullResponse(body []byte) (*api.ChatResponse, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	n.absorb(&resp, nil)
	return upstream.FullResponse(n.requestID, n.clientModel, n.acc.Stats()), nil
}

func (n *Normalizer) HandleStreamLine(line string) ([]*api.ChatResponse, bool) {
	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return nil, false
	}

	var resp response
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &resp); err != nil {
		return nil, false
	}

	var chunks []*api.ChatResponse
	if !n.sentPrologue {
		n.sentPrologue = true
		chunks = append(chunks, upstream.PrologueChunk(n.requestID, n.clientModel))
	}

	done := false
	n.absorb(&resp, func(p part) {
		if p.Text != "" {
			chunks = append(chunks, upstream.ContentChunk(n.requestID, n.clientModel, p.Text))
		}
		if p.FunctionCall != nil {
			chunks = append(chunks, upstream.ToolCallChunk(n.requestID, n.clientModel, []api.ToolCall{n.toolFragment(p)}))
		}
	})
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		done = true
		chunks = append(chunks, upstream.StopChunk(n.requestID, n.clientModel, n.acc.Stats().FinishReason, n.acc.Stats()))
	}

	return chunks, done
}

func (n *Normalizer) Stats() upstream.Stats {
	return n.acc.Stats()
}

// absorb accumulates one payload; emit, when set, observes each part before
// it lands in the accumulator.
func (n *Normalizer) absorb(resp *response, emit func(part)) {
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		for _, p := range cand.Content.Parts {
			if emit != nil {
				emit(p)
			}
			if p.Text != "" {
				n.acc.AddText(p.Text)
			}
			if p.FunctionCall != nil {
				frag := n.toolFragment(p)
				n.acc.AddCall(frag)
				n.callIndex++
			}
		}
		if cand.FinishReason != "" {
			n.acc.SetFinish(mapFinish(cand.FinishReason))
		}
	}
	if resp.UsageMetadata != nil {
		n.acc.SetUsage(resp.UsageMetadata.PromptTokenCount,
			resp.UsageMetadata.CandidatesTokenCount,
			resp.UsageMetadata.TotalTokenCount)
	}
}

func (n *Normalizer) toolFragment(p part) api.ToolCall {
	args, _ := json.Marshal(p.FunctionCall.Args)
	index := n.callIndex
	return api.ToolCall{
		ID:       fmt.Sprintf("call_%d", index),
		Type:     "function",
		Index:    &index,
		Function: api.FunctionCall{Name: p.FunctionCall.Name, Arguments: string(args)},
	}
}

func mapFinish(reason string) string {
	switch reason {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return "content_filter"
	case "MALFORMED_FUNCTION_CALL":
		return "tool_calls"
	default:
		return strings.ToLower(reason)
	}
}
