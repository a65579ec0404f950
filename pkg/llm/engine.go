package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lokutor-ai/telephony-voiceagent/pkg/logging"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1024

	// maxToolInvocations bounds the auto-invoke loop so a misbehaving model
	// emitting tool-calls forever cannot hang a turn indefinitely.
	maxToolInvocations = 8
)

// ToolFunc is one registered tool: its LLM-facing schema plus the handler
// the engine dispatches to by name when the model emits a matching
// ToolCall. Handlers receive already-decoded named string arguments and
// return a JSON-serialized result string.
type ToolFunc struct {
	Definition ToolDefinition
	Handle     func(ctx context.Context, args map[string]string) (string, error)
}

// Extension is one transfer-target entry used to expand the
// "{extensions}" placeholder in the configured tool-guidance template.
type Extension struct {
	Name        string
	Number      string
	Description string
}

// Config configures the system prompt composed once at construction.
type Config struct {
	InstructionsText       string
	InstructionsAddendum   string
	ToolGuidanceTemplate   string // literal "{extensions}" is replaced
	Extensions             []Extension
	Temperature            float64
	MaxTokens              int
}

func (c Config) withDefaults() Config {
	if c.Temperature == 0 {
		c.Temperature = defaultTemperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaultMaxTokens
	}
	return c
}

// Engine drives one conversation against a chat-completion model: it owns the
// ChatHistory exclusively. It does no locking of its own: the caller,
// normally the Conversation Controller, must not call ProcessMessage
// concurrently.
type Engine struct {
	provider Provider
	logger   logging.Logger
	tools    []ToolFunc
	cfg      Config

	systemPrompt string
	history      []ChatTurn
}

// NewEngine composes the system prompt once from cfg and the registered
// tools, and creates an Engine with an empty history. Tool parameters
// declared with a non-string type are logged as a startup warning, since
// the provider rejects non-string required parameters.
func NewEngine(provider Provider, tools []ToolFunc, cfg Config, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	cfg = cfg.withDefaults()

	for _, t := range tools {
		for _, p := range t.Definition.Parameters {
			if p.Type != "" && p.Type != "string" {
				logger.Warn("llm: tool parameter declared with non-string type, provider will reject it",
					"tool", t.Definition.Name, "param", p.Name, "type", p.Type)
			}
		}
	}

	e := &Engine{
		provider: provider,
		logger:   logger,
		tools:    tools,
		cfg:      cfg,
	}
	e.systemPrompt = e.composeSystemPrompt()
	e.ClearHistory()
	return e
}

// composeSystemPrompt builds InstructionsText ++ InstructionsAddendum ++
// ToolGuidance, with "{extensions}" replaced by the rendered extensions
// list, and an additional block enumerating every registered tool's
// schema when at least one tool is registered.
func (e *Engine) composeSystemPrompt() string {
	var b strings.Builder
	b.WriteString(e.cfg.InstructionsText)
	if e.cfg.InstructionsAddendum != "" {
		b.WriteString(e.cfg.InstructionsAddendum)
	}

	guidance := strings.ReplaceAll(e.cfg.ToolGuidanceTemplate, "{extensions}", renderExtensions(e.cfg.Extensions))
	b.WriteString(guidance)

	if len(e.tools) > 0 {
		b.WriteString("\n\nAvailable tools:\n")
		for _, t := range e.tools {
			fmt.Fprintf(&b, "- %s: %s\n", t.Definition.Name, t.Definition.Description)
			for _, p := range t.Definition.Parameters {
				req := "optional"
				if p.Required {
					req = "required"
				}
				fmt.Fprintf(&b, "    %s (%s, %s): %s", p.Name, p.Type, req, p.Description)
				if p.Default != "" {
					fmt.Fprintf(&b, " [default: %s]", p.Default)
				}
				b.WriteString("\n")
			}
		}
	}

	return b.String()
}

func renderExtensions(exts []Extension) string {
	parts := make([]string, 0, len(exts))
	for _, e := range exts {
		parts = append(parts, fmt.Sprintf("%s (%s) - %s", e.Name, e.Number, e.Description))
	}
	return "Transfer extensions: " + strings.Join(parts, ", ")
}

// ClearHistory empties the chat history and re-appends the system turn,
// preserving the invariant that chat_history always begins with exactly
// one system turn.
func (e *Engine) ClearHistory() {
	e.history = []ChatTurn{{Role: RoleSystem, Content: e.systemPrompt}}
}

// AddAssistantMessage appends an assistant turn directly without invoking
// the model, used to seed the welcome line.
func (e *Engine) AddAssistantMessage(text string) {
	e.history = append(e.history, ChatTurn{Role: RoleAssistant, Content: text})
}

// History returns a copy of the current chat history.
func (e *Engine) History() []ChatTurn {
	out := make([]ChatTurn, len(e.history))
	copy(out, e.history)
	return out
}

// ProcessMessage appends userText as a user turn, queries the model
// (auto-invoking tools as needed), and returns the final speakable
// assistant text. Any error from the model is caught and surfaced as a
// fallback assistant response so the caller always receives a speakable
// string.
func (e *Engine) ProcessMessage(ctx context.Context, userText string) string {
	e.history = append(e.history, ChatTurn{Role: RoleUser, Content: userText})

	text, err := e.runToolLoop(ctx)
	if err != nil {
		fallback := fmt.Sprintf("Error in processing: %s. Falling back to basic chat.", err)
		e.history = append(e.history, ChatTurn{Role: RoleAssistant, Content: fallback})
		e.logger.Error("llm: turn failed, using fallback response", "error", err)
		return fallback
	}
	return text
}

func (e *Engine) runToolLoop(ctx context.Context) (string, error) {
	var toolDefs []ToolDefinition
	if len(e.tools) > 0 {
		for _, t := range e.tools {
			toolDefs = append(toolDefs, t.Definition)
		}
	}

	for i := 0; i < maxToolInvocations; i++ {
		resp, err := e.provider.Complete(ctx, CompletionRequest{
			History:     e.History(),
			Tools:       toolDefs,
			Temperature: e.cfg.Temperature,
			MaxTokens:   e.cfg.MaxTokens,
		})
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrLLMFailure, err)
		}

		if len(resp.ToolCalls) == 0 {
			e.history = append(e.history, ChatTurn{Role: RoleAssistant, Content: resp.Content})
			return resp.Content, nil
		}

		e.history = append(e.history, ChatTurn{Role: RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			result := e.invokeTool(ctx, call)
			e.history = append(e.history, ChatTurn{Role: RoleTool, Content: result, ToolCallID: call.ID})
		}
	}

	return "", fmt.Errorf("%w: exceeded %d chained tool invocations", ErrLLMFailure, maxToolInvocations)
}

func (e *Engine) invokeTool(ctx context.Context, call ToolCall) string {
	for _, t := range e.tools {
		if t.Definition.Name != call.Name {
			continue
		}
		args := map[string]string{}
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				e.logger.Warn("llm: tool call arguments not valid JSON object", "tool", call.Name, "error", err)
				return fmt.Sprintf(`{"error":"invalid_arguments","details":%q}`, err.Error())
			}
		}
		result, err := t.Handle(ctx, args)
		if err != nil {
			e.logger.Warn("llm: tool invocation failed", "tool", call.Name, "error", err)
			return fmt.Sprintf(`{"error":"tool_failed","details":%q}`, err.Error())
		}
		return result
	}
	e.logger.Warn("llm: model invoked unknown tool", "tool", call.Name)
	return fmt.Sprintf(`{"error":"unknown_tool","details":%q}`, call.Name)
}
