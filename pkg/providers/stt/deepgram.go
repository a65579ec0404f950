package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/lokutor-ai/telephony-voiceagent/pkg/stt"
)

type DeepgramRecognizer struct {
	apiKey     string
	url        string
	language   string
	sampleRate int
}

func NewDeepgramRecognizer(apiKey string) *DeepgramRecognizer {
	return &DeepgramRecognizer{
		apiKey:     apiKey,
		url:        "https://api.deepgram.com/v1/listen",
		language:   "en",
		sampleRate: 16000,
	}
}

func (s *DeepgramRecognizer) SetSampleRate(rate int) {
	s.sampleRate = rate
}

func (s *DeepgramRecognizer) Name() string {
	return "deepgram-stt"
}

func (s *DeepgramRecognizer) Recognize(ctx context.Context, pcm []byte) ([]stt.Segment, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return nil, err
	}

	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	params.Set("language", s.language)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(pcm))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Token "+s.apiKey)
	req.Header.Set("Content-Type", fmt.Sprintf("audio/l16; rate=%d; channels=1", s.sampleRate))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("deepgram error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return nil, nil
	}

	text := result.Results.Channels[0].Alternatives[0].Transcript
	if text == "" {
		return nil, nil
	}
	return []stt.Segment{{Text: text, ProcessedAt: time.Now().UnixMilli()}}, nil
}
