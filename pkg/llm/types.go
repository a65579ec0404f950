// Package llm implements the conversation turn engine:
// system-prompt composition, chat-history bookkeeping, and tool-call
// auto-invocation against a pluggable chat-completion Provider.
package llm

import "context"

// Role tags one ChatTurn's position in the history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a structured request emitted by the model naming a registered
// tool and its arguments.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON object, string->string
}

// ChatTurn is one tagged entry in a ChatHistory. ToolCalls is populated only
// on assistant turns that invoke tools; ToolCallID is populated only on tool
// turns, linking the result back to the call that produced it.
type ChatTurn struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolParameter describes one named argument accepted by a tool, matching
// the OpenAPI-style parameters block the chat-completion API expects.
type ToolParameter struct {
	Name        string
	Type        string // "string" unless the operator configured otherwise
	Description string
	Required    bool
	Default     string
}

// ToolDefinition is a tool's LLM-facing schema: name, description, and
// parameter list. Declared as configuration.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  []ToolParameter
}

// CompletionRequest is one chat-completion call: the full ordered history
// plus the tool schema to advertise (empty disables auto-invoke).
type CompletionRequest struct {
	History     []ChatTurn
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
}

// CompletionResponse is one model turn: either speakable Content, or one or
// more ToolCalls the engine must execute before re-querying the model.
type CompletionResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// Provider is the chat-completion endpoint contract, compatible with the
// OpenAI wire format. Implementations are
// single-instance and may be shared across calls; they hold no
// conversation state themselves.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	Name() string
}
