package claude

import (
	"encoding/json"
	"strings"

	"github.com/proapi/proapi/internal/upstream"
	"github.com/proapi/proapi/pkg/api"
)

type event struct {
	Type string `json:"type"`

	Message *struct {
		ID      string  `json:"id"`
		Model   string  `json:"model"`
		Content []block `json:"content"`
		Usage   *usage  `json:"usage"`
	} `json:"message"`

	Index        int    `json:"index"`
	ContentBlock *block `json:"content_block"`

	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`

	Usage *usage `json:"usage"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// buffered (non-streaming) messages response
type response struct {
	ID         string  `json:"id"`
	Model      string  `json:"model"`
	Content    []block `json:"content"`
	StopReason string  `json:"stop_reason"`
	Usage      *usage  `json:"usage"`
}

// Normalizer converts Anthropic message events into canonical chunks. The
// upstream message id becomes the completion id; tool names arrive on
// content_block_start, their arguments trickle in as input_json_delta
// fragments.
type Normalizer struct {
	acc upstream.Accumulator

	requestID   string
	clientModel string

	id        string
	callIndex int
	openCall  string // tool_use id of the block currently streaming
}

func NewNormalizer(requestID, clientModel string) *Normalizer {
	return &Normalizer{requestID: requestID, clientModel: clientModel, id: requestID}
}

func (n *Normalizer) HandleFullResponse(body []byte) (*api.ChatResponse, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp.ID != "" {
		n.id = resp.ID
	}

	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			n.acc.AddText(b.Text)
		case "tool_use":
			args, _ := json.Marshal(b.Input)
			n.acc.AddCall(api.ToolCall{
				ID:       b.ID,
				Type:     "function",
				Function: api.FunctionCall{Name: b.Name, Arguments: string(args)},
			})
		}
	}
	n.acc.SetFinish(mapStopReason(resp.StopReason))
	if resp.Usage != nil {
		n.acc.SetUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens, 0)
	}

	return upstream.FullResponse(n.id, n.clientModel, n.acc.Stats()), nil
}

func (n *Normalizer) HandleStreamLine(line string) ([]*api.ChatResponse, bool) {
	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		// "event: ..." framing lines carry no payload
		return nil, false
	}

	var ev event
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &ev); err != nil {
		return nil, false
	}

	switch ev.Type {
	case "message_start":
		if ev.Message != nil {
			if ev.Message.ID != "" {
				n.id = ev.Message.ID
			}
			if ev.Message.Usage != nil {
				n.acc.SetUsage(ev.Message.Usage.InputTokens, 0, 0)
			}
		}
		return []*api.ChatResponse{upstream.PrologueChunk(n.id, n.clientModel)}, false

	case "content_block_start":
		if ev.ContentBlock == nil || ev.ContentBlock.Type != "tool_use" {
			return nil, false
		}
		n.openCall = ev.ContentBlock.ID
		frag := api.ToolCall{
			ID:       ev.ContentBlock.ID,
			Type:     "function",
			Index:    intPtr(n.callIndex),
			Function: api.FunctionCall{Name: ev.ContentBlock.Name},
		}
		n.callIndex++
		n.acc.AddCall(frag)
		return []*api.ChatResponse{upstream.ToolCallChunk(n.id, n.clientModel, []api.ToolCall{frag})}, false

	case "content_block_delta":
		if ev.Delta == nil {
			return nil, false
		}
		switch ev.Delta.Type {
		case "text_delta":
			n.acc.AddText(ev.Delta.Text)
			return []*api.ChatResponse{upstream.ContentChunk(n.id, n.clientModel, ev.Delta.Text)}, false
		case "input_json_delta":
			frag := api.ToolCall{
				ID:       n.openCall,
				Function: api.FunctionCall{Arguments: ev.Delta.PartialJSON},
			}
			n.acc.AddCall(frag)
			return []*api.ChatResponse{upstream.ToolCallChunk(n.id, n.clientModel, []api.ToolCall{frag})}, false
		}
		return nil, false

	case "content_block_stop":
		n.openCall = ""
		return nil, false

	case "message_delta":
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			n.acc.SetFinish(mapStopReason(ev.Delta.StopReason))
		}
		if ev.Usage != nil {
			stats := n.acc.Stats()
			n.acc.SetUsage(stats.PromptTokens, ev.Usage.OutputTokens, 0)
		}
		return nil, false

	case "message_stop":
		stats := n.acc.Stats()
		if stats.FinishReason == "" {
			// some streams end without a message_delta stop_reason
			stats.FinishReason = mapStopReason("")
		}
		return []*api.ChatResponse{upstream.StopChunk(n.id, n.clientModel, stats.FinishReason, stats)}, true
	}

	return nil, false
}

func (n *Normalizer) Stats() upstream.Stats {
	return n.acc.Stats()
}

func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence", "":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return reason
	}
}

func intPtr(i int) *int { return &i }
