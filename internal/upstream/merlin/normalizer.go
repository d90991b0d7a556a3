package merlin

import (
	"encoding/json"
	"strings"

	"github.com/proapi/proapi/internal/upstream"
	"github.com/proapi/proapi/pkg/api"
)

type streamEvent struct {
	Status string `json:"status"`
	Data   struct {
		Content   string `json:"content"`
		EventType string `json:"eventType"`
	} `json:"data"`
}

// Normalizer converts unified-thread events into canonical chunks. The
// upstream reports no token usage at all.
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
	n.acc.AddText(string(body))
	n.acc.SetFinish("stop")
	return upstream.FullResponse(n.requestID, n.clientModel, n.acc.Stats()), nil
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

	var ev streamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return nil, false
	}

	if ev.Data.Content != "" {
		var chunks []*api.ChatResponse
		if !n.sentPrologue {
			n.sentPrologue = true
			chunks = append(chunks, upstream.PrologueChunk(n.requestID, n.clientModel))
		}
		n.acc.AddText(ev.Data.Content)
		return append(chunks, upstream.ContentChunk(n.requestID, n.clientModel, ev.Data.Content)), false
	}

	if ev.Data.EventType == "DONE" {
		n.acc.SetFinish("stop")
		return []*api.ChatResponse{upstream.StopChunk(n.requestID, n.clientModel, "stop", n.acc.Stats())}, true
	}

	return nil, false
}

func (n *Normalizer) Stats() upstream.Stats {
	return n.acc.Stats()
}
