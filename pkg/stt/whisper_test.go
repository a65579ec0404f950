package stt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeTempModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.bin")
	if err := os.WriteFile(path, []byte("model-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWhisperRecognizerParsesSegments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		resp := map[string]interface{}{
			"text": "What time is it",
			"segments": []map[string]interface{}{
				{"text": "What time", "start": 0.0, "end": 1.1},
				{"text": "is it", "start": 1.1, "end": 2.1},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	rec, err := NewWhisperRecognizer(server.URL, writeTempModel(t), "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	segments, err := rec.Recognize(context.Background(), make([]byte, 640))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Text != "What time" || segments[1].Text != "is it" {
		t.Errorf("unexpected segment texts: %+v", segments)
	}
	if segments[0].EndOffsetMs != 1100 {
		t.Errorf("expected end offset 1100ms, got %d", segments[0].EndOffsetMs)
	}
}

func TestWhisperRecognizerFallsBackToTopLevelText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": "hello"})
	}))
	defer server.Close()

	rec, err := NewWhisperRecognizer(server.URL, writeTempModel(t), "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	segments, err := rec.Recognize(context.Background(), make([]byte, 640))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 1 || segments[0].Text != "hello" {
		t.Errorf("unexpected segments: %+v", segments)
	}
}

func TestEnsureModelDownloadsMissingFile(t *testing.T) {
	payload := make([]byte, 100*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "models", "whisper.bin")
	if err := EnsureModel(path, server.URL, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("model file not written: %v", err)
	}
	if len(data) != len(payload) {
		t.Errorf("expected %d bytes, got %d", len(payload), len(data))
	}
}

func TestEnsureModelMissingWithNoURLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.bin")
	if err := EnsureModel(path, "", nil); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestEnsureModelDownloadFailureWraps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "absent.bin")
	if err := EnsureModel(path, server.URL, nil); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("partial download left a model file behind")
	}
}
