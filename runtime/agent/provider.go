// Package agent implements the tool-calling agent: it projects the module
// registry into LLM-callable tools and drives a reasoning loop that lets the
// model select and chain them across turns, optionally streaming progress.
package agent

import (
	"context"
	"encoding/json"
)

// Message roles exchanged with a chat provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in the conversation history sent to the provider.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on tool-result messages
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolSchema is the provider-facing description of a callable tool.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema object
}

// Usage accumulates token counts across the reasoning loop.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// ChatRequest carries the accumulated history plus the active tool set.
type ChatRequest struct {
	System      string       `json:"system,omitempty"`
	Messages    []Message    `json:"messages"`
	Tools       []ToolSchema `json:"tools,omitempty"`
	Temperature float32      `json:"temperature,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
}

// ChatResponse is a completed model turn: final text, or one or more
// requested tool calls, or both.
type ChatResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

// StreamChunk is one increment of a streamed model turn. ToolCalls and
// FinishReason are only set on the final chunk.
type StreamChunk struct {
	Delta        string     `json:"delta,omitempty"`
	Content      string     `json:"content,omitempty"` // accumulated content so far
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason *string    `json:"finish_reason,omitempty"`
	Usage        *Usage     `json:"usage,omitempty"`
	Err          error      `json:"-"`
}

// Provider is the language-model boundary. Implementations must be safe for
// concurrent use; the agent never retries a provider call.
type Provider interface {
	ID() string
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
}
