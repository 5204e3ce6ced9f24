// Package llm holds the provider-neutral conversation types shared by the
// agent loop and the API clients.
package llm

import "encoding/json"

// ChatMessage is one conversation turn. Assistant turns may carry tool
// calls; the following user turn answers them with tool results.
type ChatMessage struct {
	Role        string
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult feeds one tool call's outcome back to the model.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// Tool describes a callable tool with its JSON schema.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Usage mirrors the provider's token accounting, cache categories included.
type Usage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadTokens     int64 `json:"cache_read_input_tokens"`
}

// Add accumulates another usage record, e.g. across tool-loop iterations.
func (u *Usage) Add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.CacheCreationTokens += o.CacheCreationTokens
	u.CacheReadTokens += o.CacheReadTokens
}

// ChatResponse is the model's reply for one request.
type ChatResponse struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
	Usage      Usage
}
