package completion

import "context"

// MessageRole represents the role of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ChatMessage is the provider-agnostic message shape used for one completion
// exchange. It is transient: never stored in a session and never persisted.
type ChatMessage struct {
	Role    MessageRole
	Content string
	// ToolCallID references the originating tool call for tool-result messages.
	ToolCallID string
	// ToolCalls stores the tool calls carried by an assistant message, so the
	// second request of the tool-calling exchange can replay them verbatim.
	ToolCalls []ToolCall
}

// ToolCall represents a function invocation the model requested.
// Arguments is kept as the raw JSON-encoded string the provider returned;
// decoding happens at the point of use so malformed payloads can be surfaced
// with KindInvalidToolArguments rather than silently dropped.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolSchema declares one callable tool to the provider.
type ToolSchema struct {
	Name        string
	Description string
	JSONSchema  string // raw JSON schema for the tool parameters
}

// ChatOptions keeps the knobs forwarded to the provider SDK.
type ChatOptions struct {
	Temperature     float32
	MaxOutputTokens int
}

// ChatResult is a normalized result of one chat call.
type ChatResult struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string // "stop" | "length" | "tool_calls" | "content_filter"
}

// FinishReasonToolCalls is the finish reason signaling that the model wants a
// tool executed before it produces a final answer.
const FinishReasonToolCalls = "tool_calls"

// Provider abstracts the chosen chat-completion SDK (OpenAI, Anthropic, ...).
// A single call issues one request and normalizes the response; failures are
// reported as *Error values carrying the taxonomy kind.
type Provider interface {
	Chat(ctx context.Context, messages []ChatMessage, tools []ToolSchema, opts ChatOptions) (ChatResult, error)
}
