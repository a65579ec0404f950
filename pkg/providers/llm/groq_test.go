package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lokutor-ai/telephony-voiceagent/pkg/llm"
)

func TestGroqProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if payload["model"] != "llama3-70b" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": "hello from groq"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	l := &GroqProvider{
		apiKey: "test-key",
		url:    server.URL,
		model:  "llama3-70b",
	}

	resp, err := l.Complete(context.Background(), llm.CompletionRequest{
		History: []llm.ChatTurn{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != "hello from groq" {
		t.Errorf("expected 'hello from groq', got '%s'", resp.Content)
	}

	if l.Name() != "groq-llm" {
		t.Errorf("expected groq-llm, got %s", l.Name())
	}
}

func TestGroqProviderParsesToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		json.NewDecoder(r.Body).Decode(&payload)
		if _, ok := payload["tools"]; !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{
					"content": "",
					"tool_calls": []map[string]interface{}{
						{
							"id": "call_1",
							"function": map[string]interface{}{
								"name":      "transfer_conversation",
								"arguments": `{"extension":"personal"}`,
							},
						},
					},
				}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	l := &GroqProvider{apiKey: "k", url: server.URL, model: "llama3-70b"}

	resp, err := l.Complete(context.Background(), llm.CompletionRequest{
		History: []llm.ChatTurn{{Role: llm.RoleUser, Content: "connect me to caleb"}},
		Tools: []llm.ToolDefinition{{
			Name:        "transfer_conversation",
			Description: "Transfer the call",
			Parameters:  []llm.ToolParameter{{Name: "extension", Type: "string", Required: true}},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Name != "transfer_conversation" {
		t.Errorf("unexpected tool call: %+v", resp.ToolCalls[0])
	}
	if resp.ToolCalls[0].Arguments != `{"extension":"personal"}` {
		t.Errorf("unexpected arguments: %s", resp.ToolCalls[0].Arguments)
	}
}
