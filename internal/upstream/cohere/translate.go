package cohere

import "github.com/proapi/proapi/pkg/api"

type request struct {
	Model       string        `json:"model"`
	Message     string        `json:"message"`
	ChatHistory []historyTurn `json:"chat_history,omitempty"`
	Preamble    string        `json:"preamble,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	P           float64       `json:"p,omitempty"`
	K           int           `json:"k,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type historyTurn struct {
	Role    string `json:"role"` // USER or CHATBOT
	Message string `json:"message"`
}

// Translate splits the conversation: every turn but the last becomes
// chat_history, the last user turn rides in message, and system turns merge
// into the preamble.
func Translate(req *api.ChatRequest, upstreamModel string, stream bool) *request {
	out := &request{
		Model:       upstreamModel,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		P:           req.TopP,
		K:           req.TopK,
		Stream:      stream,
	}

	var turns []historyTurn
	for _, m := range req.Messages {
		text := flatten(m.Content)
		switch m.Role {
		case api.System:
			if out.Preamble != "" {
				out.Preamble += "\n"
			}
			out.Preamble += text
		case api.Assistant, api.ModelAssistant:
			turns = append(turns, historyTurn{Role: "CHATBOT", Message: text})
		default:
			turns = append(turns, historyTurn{Role: "USER", Message: text})
		}
	}

	if len(turns) > 0 {
		out.Message = turns[len(turns)-1].Message
		out.ChatHistory = turns[:len(turns)-1]
		if len(out.ChatHistory) == 0 {
			out.ChatHistory = nil
		}
	}

	return out
}

func flatten(c api.Content) string {
	if c.Parts == nil {
		return c.Text
	}
	var text string
	for _, p := range c.Parts {
		if p.Type == "text" {
			text += p.Text
		}
	}
	return text
}
