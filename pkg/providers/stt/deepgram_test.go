package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDeepgramRecognizer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("model") != "nova-2" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		resp := map[string]interface{}{
			"results": map[string]interface{}{
				"channels": []map[string]interface{}{
					{"alternatives": []map[string]interface{}{{"transcript": "hello from deepgram"}}},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	s := &DeepgramRecognizer{apiKey: "test-key", url: server.URL, language: "en", sampleRate: 16000}

	segments, err := s.Recognize(context.Background(), make([]byte, 640))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(segments) != 1 || segments[0].Text != "hello from deepgram" {
		t.Errorf("unexpected segments: %+v", segments)
	}
}

func TestDeepgramRecognizerEmptyTranscript(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"results": map[string]interface{}{"channels": []map[string]interface{}{}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	s := &DeepgramRecognizer{apiKey: "k", url: server.URL, sampleRate: 16000}

	segments, err := s.Recognize(context.Background(), make([]byte, 640))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if segments != nil {
		t.Errorf("expected nil segments, got %+v", segments)
	}
}
