package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lokutor-ai/telephony-voiceagent/pkg/llm"
)

// GoogleProvider speaks the Gemini generateContent API. It is text-only: tool
// schemas in the request are ignored, so the engine's auto-invoke loop never
// triggers with this provider.
type GoogleProvider struct {
	apiKey string
	url    string
	model  string
}

func NewGoogleProvider(apiKey string, model string) *GoogleProvider {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GoogleProvider{
		apiKey: apiKey,
		url:    "https://generativelanguage.googleapis.com/v1beta/models/" + model + ":generateContent",
		model:  model,
	}
}

func (l *GoogleProvider) Name() string {
	return "google-llm"
}

func (l *GoogleProvider) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	type googlePart struct {
		Text string `json:"text"`
	}
	type googleMessage struct {
		Role  string       `json:"role"`
		Parts []googlePart `json:"parts"`
	}

	var system string
	var contents []googleMessage
	for _, turn := range req.History {
		switch turn.Role {
		case llm.RoleSystem:
			system = turn.Content
			continue
		case llm.RoleTool:
			// Rendered as user text since this provider carries no tool wire
			// format; the engine never reaches this path with GoogleProvider
			// because it cannot emit tool calls.
			contents = append(contents, googleMessage{Role: "user", Parts: []googlePart{{Text: turn.Content}}})
			continue
		}
		role := "user"
		if turn.Role == llm.RoleAssistant {
			role = "model"
		}
		contents = append(contents, googleMessage{Role: role, Parts: []googlePart{{Text: turn.Content}}})
	}

	payload := map[string]interface{}{
		"contents": contents,
	}
	if system != "" {
		payload["systemInstruction"] = googleMessage{Parts: []googlePart{{Text: system}}}
	}
	genConfig := map[string]interface{}{}
	if req.Temperature != 0 {
		genConfig["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		genConfig["maxOutputTokens"] = req.MaxTokens
	}
	if len(genConfig) > 0 {
		payload["generationConfig"] = genConfig
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", l.url+"?key="+l.apiKey, bytes.NewReader(body))
	if err != nil {
		return llm.CompletionResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return llm.CompletionResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return llm.CompletionResponse{}, fmt.Errorf("google llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return llm.CompletionResponse{}, err
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return llm.CompletionResponse{}, fmt.Errorf("no response from google llm")
	}

	return llm.CompletionResponse{Content: result.Candidates[0].Content.Parts[0].Text}, nil
}
