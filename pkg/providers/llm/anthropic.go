package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lokutor-ai/telephony-voiceagent/pkg/llm"
)

// AnthropicProvider speaks the Anthropic messages API, mapping the engine's
// ChatHistory onto system/user/assistant messages with tool_use and
// tool_result content blocks.
type AnthropicProvider struct {
	apiKey string
	url    string
	model  string
}

func NewAnthropicProvider(apiKey string, model string) *AnthropicProvider {
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}
	return &AnthropicProvider{
		apiKey: apiKey,
		url:    "https://api.anthropic.com/v1/messages",
		model:  model,
	}
}

func (l *AnthropicProvider) Name() string {
	return "anthropic-llm"
}

func (l *AnthropicProvider) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	var system string
	var messages []map[string]interface{}

	for _, turn := range req.History {
		switch turn.Role {
		case llm.RoleSystem:
			system = turn.Content
		case llm.RoleUser:
			messages = append(messages, map[string]interface{}{
				"role":    "user",
				"content": turn.Content,
			})
		case llm.RoleAssistant:
			var content []map[string]interface{}
			if turn.Content != "" {
				content = append(content, map[string]interface{}{
					"type": "text",
					"text": turn.Content,
				})
			}
			for _, tc := range turn.ToolCalls {
				var input map[string]interface{}
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						input = map[string]interface{}{}
					}
				} else {
					input = map[string]interface{}{}
				}
				content = append(content, map[string]interface{}{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": input,
				})
			}
			messages = append(messages, map[string]interface{}{
				"role":    "assistant",
				"content": content,
			})
		case llm.RoleTool:
			messages = append(messages, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{{
					"type":        "tool_result",
					"tool_use_id": turn.ToolCallID,
					"content":     turn.Content,
				}},
			})
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	payload := map[string]interface{}{
		"model":      l.model,
		"messages":   messages,
		"max_tokens": maxTokens,
	}
	if system != "" {
		payload["system"] = system
	}
	if req.Temperature != 0 {
		payload["temperature"] = req.Temperature
	}
	if tools := anthropicWireTools(req.Tools); len(tools) > 0 {
		payload["tools"] = tools
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", l.url, bytes.NewReader(body))
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", l.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return llm.CompletionResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return llm.CompletionResponse{}, fmt.Errorf("anthropic llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Content []struct {
			Type  string          `json:"type"`
			Text  string          `json:"text"`
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return llm.CompletionResponse{}, err
	}

	if len(result.Content) == 0 {
		return llm.CompletionResponse{}, fmt.Errorf("no content returned from anthropic")
	}

	var out llm.CompletionResponse
	for _, block := range result.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	return out, nil
}

func anthropicWireTools(tools []llm.ToolDefinition) []map[string]interface{} {
	var out []map[string]interface{}
	for _, td := range tools {
		properties := map[string]interface{}{}
		var required []string
		for _, p := range td.Parameters {
			typ := p.Type
			if typ == "" {
				typ = "string"
			}
			properties[p.Name] = map[string]interface{}{
				"type":        typ,
				"description": p.Description,
			}
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
		out = append(out, map[string]interface{}{
			"name":         td.Name,
			"description":  td.Description,
			"input_schema": schema,
		})
	}
	return out
}
