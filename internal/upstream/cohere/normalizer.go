package cohere

import (
	"encoding/json"
	"strings"

	"github.com/proapi/proapi/internal/upstream"
	"github.com/proapi/proapi/pkg/api"
)

type streamEvent struct {
	EventType    string `json:"event_type"`
	Text         string `json:"text"`
	GenerationID string `json:"generation_id"`
	FinishReason string `json:"finish_reason"`
	Response     *chat  `json:"response"`
}

type chat struct {
	Text         string `json:"text"`
	GenerationID string `json:"generation_id"`
	FinishReason string `json:"finish_reason"`
	Meta         *struct {
		BilledUnits *struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"billed_units"`
	} `json:"meta"`
}

// Normalizer converts Cohere chat events into canonical chunks. Usage only
// appears in the terminal stream-end event.
type Normalizer struct {
	acc upstream.Accumulator

	requestID   string
	clientModel string

	id           string
	sentPrologue bool
}

func NewNormalizer(requestID, clientModel string) *Normalizer {
	return &Normalizer{requestID: requestID, clientModel: clientModel, id: requestID}
}

func (n *Normalizer) HandleFullResponse(body []byte) (*api.ChatResponse, error) {
	var resp chat
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp.GenerationID != "" {
		n.id = resp.GenerationID
	}

	n.acc.AddText(resp.Text)
	n.acc.SetFinish(mapFinish(resp.FinishReason))
	n.absorbUsage(&resp)

	return upstream.FullResponse(n.id, n.clientModel, n.acc.Stats()), nil
}

func (n *Normalizer) HandleStreamLine(line string) ([]*api.ChatResponse, bool) {
	var ev streamEvent
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &ev); err != nil {
		return nil, false
	}

	switch ev.EventType {
	case "stream-start":
		if ev.GenerationID != "" {
			n.id = ev.GenerationID
		}
		n.sentPrologue = true
		return []*api.ChatResponse{upstream.PrologueChunk(n.id, n.clientModel)}, false

	case "text-generation":
		var chunks []*api.ChatResponse
		if !n.sentPrologue {
			n.sentPrologue = true
			chunks = append(chunks, upstream.PrologueChunk(n.id, n.clientModel))
		}
		n.acc.AddText(ev.Text)
		return append(chunks, upstream.ContentChunk(n.id, n.clientModel, ev.Text)), false

	case "stream-end":
		n.acc.SetFinish(mapFinish(ev.FinishReason))
		if ev.Response != nil {
			n.absorbUsage(ev.Response)
		}
		return []*api.ChatResponse{upstream.StopChunk(n.id, n.clientModel, n.acc.Stats().FinishReason, n.acc.Stats())}, true
	}

	return nil, false
}

func (n *Normalizer) Stats() upstream.Stats {
	return n.acc.Stats()
}

func (n *Normalizer) absorbUsage(resp *chat) {
	if resp.Meta == nil || resp.Meta.BilledUnits == nil {
		return
	}
	n.acc.SetUsage(resp.Meta.BilledUnits.InputTokens, resp.Meta.BilledUnits.OutputTokens, 0)
}

func mapFinish(reason string) string {
	switch reason {
	case "COMPLETE", "":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	default:
		return strings.ToLower(reason)
	}
}
