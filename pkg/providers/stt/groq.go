package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/lokutor-ai/telephony-voiceagent/pkg/audio"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/stt"
)

type GroqRecognizer struct {
	apiKey     string
	url        string
	model      string
	language   string
	sampleRate int
}

func NewGroqRecognizer(apiKey string, model string) *GroqRecognizer {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &GroqRecognizer{
		apiKey:     apiKey,
		url:        "https://api.groq.com/openai/v1/audio/transcriptions",
		model:      model,
		language:   "en",
		sampleRate: 16000,
	}
}

func (s *GroqRecognizer) SetSampleRate(rate int) {
	s.sampleRate = rate
}

func (s *GroqRecognizer) Name() string {
	return "groq-stt"
}

func (s *GroqRecognizer) Recognize(ctx context.Context, pcm []byte) ([]stt.Segment, error) {
	wavData := audio.NewWavBuffer(pcm, s.sampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", s.model); err != nil {
		return nil, err
	}
	if err := writer.WriteField("language", s.language); err != nil {
		return nil, err
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, err
	}

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, bytes.NewReader(wavData)); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.url, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return nil, fmt.Errorf("groq stt error (status %d): %v", resp.StatusCode, errResp)
	}

	var result verboseJSONResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return result.toSegments(), nil
}
