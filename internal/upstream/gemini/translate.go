package gemini

import (
	"encoding/json"
	"strings"

	"github.com/proapi/proapi/pkg/api"
)

// Wire shapes for generateContent.
type request struct {
	Contents          []message       `json:"contents"`
	SystemInstruction *message        `json:"systemInstruction,omitempty"`
	Tools             []toolDecl      `json:"tools,omitempty"`
	SafetySettings    []safetySetting `json:"safetySettings,omitempty"`
	GenerationConfig  *generationConf `json:"generationConfig,omitempty"`
}

type message struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text             string            `json:"text,omitempty"`
	InlineData       *inlineData       `json:"inline_data,omitempty"`
	FunctionCall     *functionCall     `json:"functionCall,omitempty"`
	FunctionResponse *functionResponse `json:"functionResponse,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type functionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type functionResponse struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

type toolDecl struct {
	FunctionDeclarations []api.FunctionDescription `json:"function_declarations"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generationConf struct {
	Temperature     float64  `json:"temperature,omitempty"`
	TopP            float64  `json:"topP,omitempty"`
	TopK            int      `json:"topK,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

// Every category is disabled: filtering decisions belong to the caller, not
// the proxy.
var permissiveSafety = []safetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
}

// Translate converts a canonical chat request into the generateContent
// shape. System messages are hoisted into systemInstruction and assistant
// turns become the "model" role.
func Translate(req *api.ChatRequest) *request {
	out := &request{SafetySettings: permissiveSafety}

	var systemParts []part
	for _, m := range req.Messages {
		switch m.Role {
		case api.System:
			systemParts = append(systemParts, textParts(m.Content)...)
		case api.Assistant, api.ModelAssistant:
			msg := message{Role: "model", Parts: contentParts(m.Content)}
			for _, call := range m.ToolCalls {
				msg.Parts = append(msg.Parts, part{FunctionCall: &functionCall{
					Name: call.Function.Name,
					Args: decodeArgs(call.Function.Arguments),
				}})
			}
			out.Contents = append(out.Contents, msg)
		case api.ToolRole:
			name := m.Name
			if name == "" {
				name = m.ToolCallID
			}
			out.Contents = append(out.Contents, message{Role: "user", Parts: []part{{
				FunctionResponse: &functionResponse{
					Name:     name,
					Response: map[string]interface{}{"content": m.Content.Text},
				},
			}}})
		default:
			out.Contents = append(out.Contents, message{Role: "user", Parts: contentParts(m.Content)})
		}
	}
	if len(systemParts) > 0 {
		out.SystemInstruction = &message{Parts: systemParts}
	}

	if len(req.Tools) > 0 {
		decl := toolDecl{}
		for _, t := range req.Tools {
			decl.FunctionDeclarations = append(decl.FunctionDeclarations, t.Function)
		}
		out.Tools = []toolDecl{decl}
	}

	conf := &generationConf{
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		TopK:            req.TopK,
		MaxOutputTokens: req.MaxTokens,
	}
	if req.Stop != nil {
		conf.StopSequences = req.Stop.Val
	}
	if conf.Temperature != 0 || conf.TopP != 0 || conf.TopK != 0 ||
		conf.MaxOutputTokens != 0 || len(conf.StopSequences) > 0 {
		out.GenerationConfig = conf
	}

	return out
}

func decodeArgs(raw string) map[string]interface{} {
	args := map[string]interface{}{}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &args)
	}
	return args
}

func textParts(c api.Content) []part {
	var parts []part
	if c.Text != "" {
		parts = append(parts, part{Text: c.Text})
	}
	for _, p := range c.Parts {
		if p.Type == "text" && p.Text != "" {
			parts = append(parts, part{Text: p.Text})
		}
	}
	return parts
}

func contentParts(c api.Content) []part {
	if c.Parts == nil {
		return []part{{Text: c.Text}}
	}
	var parts []part
	for _, p := range c.Parts {
		switch p.Type {
		case "text":
			parts = append(parts, part{Text: p.Text})
		case "image_url":
			if p.ImageURL == nil {
				continue
			}
			if data, ok := decodeDataURL(p.ImageURL.URL); ok {
				parts = append(parts, part{InlineData: data})
			}
		}
	}
	return parts
}

// decodeDataURL splits a `data:<mime>;base64,<payload>` url into inline
// data. Plain http urls cannot be forwarded to this dialect and are dropped.
func decodeDataURL(url string) (*inlineData, bool) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return nil, false
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, false
	}
	mime := strings.TrimSuffix(meta, ";base64")
	return &inlineData{MimeType: mime, Data: payload}, true
}
