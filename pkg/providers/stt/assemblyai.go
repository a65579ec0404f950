package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lokutor-ai/telephony-voiceagent/pkg/stt"
)

type AssemblyAIRecognizer struct {
	apiKey  string
	baseURL string
}

func NewAssemblyAIRecognizer(apiKey string) *AssemblyAIRecognizer {
	return &AssemblyAIRecognizer{
		apiKey:  apiKey,
		baseURL: "https://api.assemblyai.com",
	}
}

func (s *AssemblyAIRecognizer) Name() string {
	return "assemblyai-stt"
}

// Recognize uploads the utterance, submits a transcription job, and polls
// until it completes. AssemblyAI is a batch API, so the result is one
// segment covering the whole utterance.
func (s *AssemblyAIRecognizer) Recognize(ctx context.Context, pcm []byte) ([]stt.Segment, error) {
	uploadURL, err := s.upload(ctx, pcm)
	if err != nil {
		return nil, err
	}

	transcriptID, err := s.submit(ctx, uploadURL)
	if err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
			text, status, err := s.getTranscript(ctx, transcriptID)
			if err != nil {
				return nil, err
			}
			if status == "completed" {
				if text == "" {
					return nil, nil
				}
				return []stt.Segment{{Text: text, ProcessedAt: time.Now().UnixMilli()}}, nil
			}
			if status == "error" {
				return nil, fmt.Errorf("assemblyai transcription failed")
			}
		}
	}
}

func (s *AssemblyAIRecognizer) upload(ctx context.Context, pcm []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/v2/upload", bytes.NewReader(pcm))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", s.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.UploadURL, nil
}

func (s *AssemblyAIRecognizer) submit(ctx context.Context, uploadURL string) (string, error) {
	payload := map[string]interface{}{
		"audio_url":     uploadURL,
		"language_code": "en",
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.ID, nil
}

func (s *AssemblyAIRecognizer) getTranscript(ctx context.Context, id string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"/v2/transcript/"+id, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", s.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	var result struct {
		Status string `json:"status"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", err
	}
	return result.Text, result.Status, nil
}
