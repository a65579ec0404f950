package llm

import (
	"context"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// OpenAIProvider implements Provider against the real OpenAI chat-completion
// wire format, including function-calling tool schemas, matching spec
// section 6's "OpenAI wire format" requirement.
type OpenAIProvider struct {
	client oai.Client
	model  string
}

// NewOpenAIProvider constructs a Provider backed by the given API key and
// model (e.g. "gpt-4o"). baseURL overrides the default OpenAI endpoint when
// non-empty, for OpenAI-compatible gateways.
func NewOpenAIProvider(apiKey, model, baseURL string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: openai api key must not be empty")
	}
	if model == "" {
		model = "gpt-4o"
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIProvider{client: oai.NewClient(opts...), model: model}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("llm: build openai params: %w", err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("llm: openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return CompletionResponse{}, fmt.Errorf("llm: empty choices in openai response")
	}

	msg := resp.Choices[0].Message
	out := CompletionResponse{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func (p *OpenAIProvider) buildParams(req CompletionRequest) (oai.ChatCompletionNewParams, error) {
	var messages []oai.ChatCompletionMessageParamUnion
	for _, turn := range req.History {
		msg, err := convertTurn(turn)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	for _, td := range req.Tools {
		schema := toolParameterSchema(td)
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        td.Name,
				Description: param.NewOpt(td.Description),
				Parameters:  shared.FunctionParameters(schema),
			},
		})
	}

	return params, nil
}

func convertTurn(t ChatTurn) (oai.ChatCompletionMessageParamUnion, error) {
	switch t.Role {
	case RoleSystem:
		return oai.SystemMessage(t.Content), nil
	case RoleUser:
		return oai.UserMessage(t.Content), nil
	case RoleAssistant:
		asst := oai.ChatCompletionAssistantMessageParam{}
		if t.Content != "" {
			asst.Content.OfString = oai.String(t.Content)
		}
		for _, tc := range t.ToolCalls {
			asst.ToolCalls = append(asst.ToolCalls, oai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: oai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil
	case RoleTool:
		return oai.ToolMessage(t.Content, t.ToolCallID), nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("llm: unknown chat turn role %q", t.Role)
	}
}

// toolParameterSchema renders a ToolDefinition's parameters as a JSON
// Schema "object" shape, the format the function-calling wire format
// requires.
func toolParameterSchema(td ToolDefinition) map[string]interface{} {
	properties := map[string]interface{}{}
	var required []string
	for _, p := range td.Parameters {
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		prop := map[string]interface{}{
			"type":        typ,
			"description": p.Description,
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
