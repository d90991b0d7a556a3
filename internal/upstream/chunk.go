package upstream

import (
	"strings"
	"time"

	"github.com/proapi/proapi/pkg/api"
)

const (
	ObjectChunk      = "chat.completion.chunk"
	ObjectCompletion = "chat.completion"

	idPrefix = "chatcmpl-"
)

// CompletionID normalizes an upstream or locally generated id into the
// canonical chatcmpl- form.
func CompletionID(id string) string {
	if strings.HasPrefix(id, idPrefix) {
		return id
	}
	return idPrefix + id
}

// PrologueChunk is the first chunk of every stream: it announces the
// assistant role with empty content.
func PrologueChunk(id, model string) *api.ChatResponse {
	empty := ""
	return chunk(id, model, api.Choice{
		Index: 0,
		Delta: &api.Delta{Role: api.Assistant, Content: &empty},
	})
}

// ContentChunk wraps one text fragment.
func ContentChunk(id, model, text string) *api.ChatResponse {
	return chunk(id, model, api.Choice{
		Index: 0,
		Delta: &api.Delta{Content: &text},
	})
}

// ToolCallChunk wraps incremental tool-call fragments.
func ToolCallChunk(id, model string, calls []api.ToolCall) *api.ChatResponse {
	return chunk(id, model, api.Choice{
		Index: 0,
		Delta: &api.Delta{ToolCalls: calls},
	})
}

// StopChunk closes a stream: empty delta, finish reason, and usage when the
// upstream reported any.
func StopChunk(id, model, finishReason string, stats Stats) *api.ChatResponse {
	c := chunk(id, model, api.Choice{
		Index:        0,
		Delta:        &api.Delta{},
		FinishReason: &finishReason,
	})
	if stats.TotalTokens > 0 {
		c.Usage = &api.ResponseUsage{
			PromptTokens:     stats.PromptTokens,
			CompletionTokens: stats.CompletionTokens,
			TotalTokens:      stats.TotalTokens,
		}
	}
	return c
}

// FullResponse builds one buffered canonical completion from terminal stats.
func FullResponse(id, model string, stats Stats) *api.ChatResponse {
	finish := stats.FinishReason
	if finish == "" {
		finish = "stop"
	}
	msg := &api.ChatMessage{
		Role:      api.Assistant,
		Content:   api.Content{Text: stats.Content},
		ToolCalls: stats.ToolCalls,
	}
	return &api.ChatResponse{
		ID:      CompletionID(id),
		Object:  ObjectCompletion,
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []api.Choice{{Index: 0, Message: msg, FinishReason: &finish}},
		Usage: &api.ResponseUsage{
			PromptTokens:     stats.PromptTokens,
			CompletionTokens: stats.CompletionTokens,
			TotalTokens:      stats.TotalTokens,
		},
	}
}

func chunk(id, model string, choice api.Choice) *api.ChatResponse {
	return &api.ChatResponse{
		ID:      CompletionID(id),
		Object:  ObjectChunk,
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []api.Choice{choice},
	}
}
