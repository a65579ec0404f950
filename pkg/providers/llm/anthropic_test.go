package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lokutor-ai/telephony-voiceagent/pkg/llm"
)

func TestAnthropicProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if payload["system"] != "be brief" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		resp := map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": "hello from anthropic"},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	l := &AnthropicProvider{
		apiKey: "test-key",
		url:    server.URL,
		model:  "claude-3-5-sonnet",
	}

	resp, err := l.Complete(context.Background(), llm.CompletionRequest{
		History: []llm.ChatTurn{
			{Role: llm.RoleSystem, Content: "be brief"},
			{Role: llm.RoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != "hello from anthropic" {
		t.Errorf("expected 'hello from anthropic', got '%s'", resp.Content)
	}

	if l.Name() != "anthropic-llm" {
		t.Errorf("expected anthropic-llm, got %s", l.Name())
	}
}

func TestAnthropicProviderParsesToolUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": "One moment."},
				{"type": "tool_use", "id": "toolu_1", "name": "end_conversation", "input": map[string]string{"reason": "user ended call"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	l := &AnthropicProvider{apiKey: "k", url: server.URL, model: "claude-3-5-sonnet"}

	resp, err := l.Complete(context.Background(), llm.CompletionRequest{
		History: []llm.ChatTurn{{Role: llm.RoleUser, Content: "goodbye"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != "One moment." {
		t.Errorf("unexpected content: %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.Name != "end_conversation" || tc.ID != "toolu_1" {
		t.Errorf("unexpected tool call: %+v", tc)
	}

	var args map[string]string
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		t.Fatalf("arguments not valid JSON: %v", err)
	}
	if args["reason"] != "user ended call" {
		t.Errorf("unexpected arguments: %v", args)
	}
}
