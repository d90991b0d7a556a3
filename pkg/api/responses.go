package api

type ChatResponse struct {
	ID                string         `json:"id"`
	Choices           []Choice       `json:"choices"`
	Created           int64          `json:"created"`
	Model             string         `json:"model"`
	Object            string         `json:"object"` // "chat.completion" or "chat.completion.chunk"
	SystemFingerprint string         `json:"system_fingerprint,omitempty"`
	Usage             *ResponseUsage `json:"usage,omitempty"`

	Error *ErrorResponse `json:"error,omitempty"`
}

type Choice struct {
	Index        int            `json:"index"`
	Message      *ChatMessage   `json:"message,omitempty"` // For non-streaming
	Delta        *Delta         `json:"delta,omitempty"`   // For streaming
	FinishReason *string        `json:"finish_reason"`
	Error        *ErrorResponse `json:"error,omitempty"`
}

// Delta is the incremental message fragment carried by a streaming chunk.
// Role is only set on the prologue chunk; Content and ToolCalls are
// mutually exclusive in practice.
type Delta struct {
	Role      string     `json:"role,omitempty"`
	Content   *string    `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type ResponseUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ErrorResponse struct {
	Code     interface{}            `json:"code,omitempty"`
	Message  string                 `json:"message"`
	Type     string                 `json:"type,omitempty"`
	Param    interface{}            `json:"param,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (e *ErrorResponse) Error() string {
	return e.Message
}

type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Index    *int         `json:"index,omitempty"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"` // JSON string, possibly partial mid-stream
}

// Model is one entry of the /v1/models listing.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"` // always "model"
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by"`
}

type ModelList struct {
	Object string  `json:"object"` // "list"
	Data   []Model `json:"data"`
}
