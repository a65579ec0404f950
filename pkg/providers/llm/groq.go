// Package llm holds alternate chat-completion Provider implementations
// consumed by pkg/llm.Engine, alongside the primary openai-go-backed
// provider in pkg/llm.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lokutor-ai/telephony-voiceagent/pkg/llm"
)

// GroqProvider speaks the OpenAI-compatible chat-completion wire format
// against the Groq endpoint, including function-calling tool schemas.
type GroqProvider struct {
	apiKey string
	url    string
	model  string
}

func NewGroqProvider(apiKey string, model string) *GroqProvider {
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return &GroqProvider{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/chat/completions",
		model:  model,
	}
}

func (l *GroqProvider) Name() string {
	return "groq-llm"
}

func (l *GroqProvider) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	payload := map[string]interface{}{
		"model":    l.model,
		"messages": openAIWireMessages(req.History),
	}
	if req.Temperature != 0 {
		payload["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if tools := openAIWireTools(req.Tools); len(tools) > 0 {
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
	httpReq.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return llm.CompletionResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return llm.CompletionResponse{}, fmt.Errorf("groq llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return llm.CompletionResponse{}, err
	}

	if len(result.Choices) == 0 {
		return llm.CompletionResponse{}, fmt.Errorf("no choices returned from groq")
	}

	msg := result.Choices[0].Message
	out := llm.CompletionResponse{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// openAIWireMessages renders a ChatHistory as OpenAI-wire-format message
// objects, including tool_calls on assistant turns and tool_call_id on tool
// result turns.
func openAIWireMessages(history []llm.ChatTurn) []map[string]interface{} {
	messages := make([]map[string]interface{}, 0, len(history))
	for _, turn := range history {
		msg := map[string]interface{}{
			"role":    string(turn.Role),
			"content": turn.Content,
		}
		if len(turn.ToolCalls) > 0 {
			var calls []map[string]interface{}
			for _, tc := range turn.ToolCalls {
				calls = append(calls, map[string]interface{}{
					"id":   tc.ID,
					"type": "function",
					"function": map[string]interface{}{
						"name":      tc.Name,
						"arguments": tc.Arguments,
					},
				})
			}
			msg["tool_calls"] = calls
		}
		if turn.ToolCallID != "" {
			msg["tool_call_id"] = turn.ToolCallID
		}
		messages = append(messages, msg)
	}
	return messages
}

// openAIWireTools renders tool definitions as OpenAI-wire-format function
// declarations with a JSON Schema parameters object.
func openAIWireTools(tools []llm.ToolDefinition) []map[string]interface{} {
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
			"type": "function",
			"function": map[string]interface{}{
				"name":        td.Name,
				"description": td.Description,
				"parameters":  schema,
			},
		})
	}
	return out
}
