package claude

import (
	"encoding/json"
	"strings"

	"github.com/proapi/proapi/pkg/api"
)

const defaultMaxTokens = 4096

// Request is the Anthropic messages payload. Model is cleared and
// AnthropicVersion set when the request travels through Vertex, where the
// model lives in the URL instead.
type Request struct {
	Model            string      `json:"model,omitempty"`
	AnthropicVersion string      `json:"anthropic_version,omitempty"`
	System           string      `json:"system,omitempty"`
	Messages         []message   `json:"messages"`
	MaxTokens        int         `json:"max_tokens"`
	Temperature      float64     `json:"temperature,omitempty"`
	TopP             float64     `json:"top_p,omitempty"`
	TopK             int         `json:"top_k,omitempty"`
	StopSequences    []string    `json:"stop_sequences,omitempty"`
	Stream           bool        `json:"stream,omitempty"`
	Tools            []toolParam `json:"tools,omitempty"`
}

type message struct {
	Role    string  `json:"role"`
	Content []block `json:"content"`
}

type block struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Source *imageSource `json:"source,omitempty"`

	// tool_use
	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type toolParam struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Translate converts a canonical request into an Anthropic messages body.
// System turns concatenate into the top-level system field.
func Translate(req *api.ChatRequest, upstreamModel string, stream bool) *Request {
	out := &Request{
		Model:       upstreamModel,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		Stream:      stream,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = defaultMaxTokens
	}
	if req.Stop != nil {
		out.StopSequences = req.Stop.Val
	}

	for _, m := range req.Messages {
		switch m.Role {
		case api.System:
			if out.System != "" {
				out.System += "\n"
			}
			out.System += m.Content.Text
		case api.Assistant, api.ModelAssistant:
			msg := message{Role: "assistant", Content: contentBlocks(m.Content)}
			for _, call := range m.ToolCalls {
				input := map[string]interface{}{}
				_ = json.Unmarshal([]byte(call.Function.Arguments), &input)
				msg.Content = append(msg.Content, block{
					Type:  "tool_use",
					ID:    call.ID,
					Name:  call.Function.Name,
					Input: input,
				})
			}
			out.Messages = append(out.Messages, msg)
		case api.ToolRole:
			out.Messages = append(out.Messages, message{Role: "user", Content: []block{{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.Content.Text,
			}}})
		default:
			out.Messages = append(out.Messages, message{Role: "user", Content: contentBlocks(m.Content)})
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, toolParam{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}

	return out
}

// decodeDataURL splits a `data:<mime>;base64,<payload>` url into an inline
// image source. Plain http urls cannot be forwarded and are dropped.
func decodeDataURL(url string) (*imageSource, bool) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return nil, false
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, false
	}
	return &imageSource{
		Type:      "base64",
		MediaType: strings.TrimSuffix(meta, ";base64"),
		Data:      payload,
	}, true
}

func contentBlocks(c api.Content) []block {
	if c.Parts == nil {
		if c.Text == "" {
			return nil
		}
		return []block{{Type: "text", Text: c.Text}}
	}
	var blocks []block
	for _, p := range c.Parts {
		switch p.Type {
		case "text":
			blocks = append(blocks, block{Type: "text", Text: p.Text})
		case "image_url":
			if p.ImageURL == nil {
				continue
			}
			if src, ok := decodeDataURL(p.ImageURL.URL); ok {
				blocks = append(blocks, block{Type: "image", Source: src})
			}
		}
	}
	return blocks
}
