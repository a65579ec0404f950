// Package stt holds cloud-backed Recognizer implementations consumed by
// pkg/stt.Streamer, as alternates to the local whisper-server recognizer.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/lokutor-ai/telephony-voiceagent/pkg/audio"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/stt"
)

type OpenAIRecognizer struct {
	apiKey     string
	url        string
	model      string
	language   string
	sampleRate int
}

func NewOpenAIRecognizer(apiKey string, model string) *OpenAIRecognizer {
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAIRecognizer{
		apiKey:     apiKey,
		url:        "https://api.openai.com/v1/audio/transcriptions",
		model:      model,
		language:   "en",
		sampleRate: 16000,
	}
}

func (s *OpenAIRecognizer) SetSampleRate(rate int) {
	s.sampleRate = rate
}

func (s *OpenAIRecognizer) Name() string {
	return "openai-stt"
}

func (s *OpenAIRecognizer) Recognize(ctx context.Context, pcm []byte) ([]stt.Segment, error) {
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
	if _, err := part.Write(wavData); err != nil {
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
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai stt error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result verboseJSONResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return result.toSegments(), nil
}

// verboseJSONResult is the whisper-style verbose_json transcription response
// shared by the OpenAI and Groq endpoints.
type verboseJSONResult struct {
	Text     string `json:"text"`
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"segments"`
}

// toSegments converts the response to stt.Segments, falling back to one
// segment of the top-level text when the endpoint omits the segments array.
func (r verboseJSONResult) toSegments() []stt.Segment {
	now := time.Now().UnixMilli()
	if len(r.Segments) == 0 {
		if r.Text == "" {
			return nil
		}
		return []stt.Segment{{Text: r.Text, ProcessedAt: now}}
	}
	segments := make([]stt.Segment, 0, len(r.Segments))
	for _, seg := range r.Segments {
		segments = append(segments, stt.Segment{
			Text:          seg.Text,
			StartOffsetMs: int(seg.Start * 1000),
			EndOffsetMs:   int(seg.End * 1000),
			ProcessedAt:   now,
		})
	}
	return segments
}
