// Package llm defines the Provider interface for Large Language Model backends.
//
// A provider wraps a remote or local chat-completion API (OpenAI, Anthropic,
// Gemini, a local Ollama instance, …) and exposes the one operation the
// interviewer turn driver and the feedback generator need: a non-streaming
// completion with optional tool calling.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single entry in a conversation.
type Message struct {
	// Role is one of the Role* constants.
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content,omitempty"`

	// ToolCalls contains tool invocations requested by the assistant.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is set when Role is "tool", identifying the call answered.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	// ID is the provider-assigned identifier.
	ID string `json:"id"`

	// Name is the tool name.
	Name string `json:"name"`

	// Arguments is the JSON-encoded argument object.
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a tool that can be offered to a model.
type ToolDefinition struct {
	Name        string
	Description string

	// Parameters is the JSON Schema describing the tool's input object.
	Parameters map[string]any
}

// Request carries everything the model needs to produce a reply.
type Request struct {
	// SystemPrompt is sent ahead of Messages in the provider's native way.
	SystemPrompt string

	// Messages is the ordered conversation history. Must be non-empty.
	Messages []Message

	// Tools offered to the model. May be empty.
	Tools []ToolDefinition

	// Temperature in [0, 2]. Zero uses the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero uses the provider default.
	MaxTokens int
}

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the model's reply.
type Response struct {
	// Content is the assistant text. Empty when the model only calls tools.
	Content string

	// ToolCalls lists requested tool invocations. The caller executes them and
	// appends the results to the conversation.
	ToolCalls []ToolCall

	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req and waits for the full reply. It returns promptly
	// when ctx is cancelled.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Model returns the configured model name.
	Model() string
}

// EstimateTokens approximates the context-window cost of msgs at roughly
// four characters per token plus a small per-message overhead. It never
// undercounts badly enough to matter for history trimming.
func EstimateTokens(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += (len(m.Content) + 3) / 4
		for _, tc := range m.ToolCalls {
			total += (len(tc.Name) + len(tc.Arguments) + 3) / 4
		}
		total += 4
	}
	return total
}
