package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGroqRecognizer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		resp := map[string]interface{}{"text": "what time is it"}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	s := &GroqRecognizer{
		apiKey:     "test-key",
		url:        server.URL,
		model:      "whisper-large-v3-turbo",
		language:   "en",
		sampleRate: 16000,
	}

	segments, err := s.Recognize(context.Background(), make([]byte, 640))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(segments) != 1 || segments[0].Text != "what time is it" {
		t.Errorf("unexpected segments: %+v", segments)
	}

	if s.Name() != "groq-stt" {
		t.Errorf("expected groq-stt, got %s", s.Name())
	}
}
