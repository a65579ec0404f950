package tts

import (
	"context"
	"reflect"
	"sync"
	"testing"
)

func TestSplitSentencesBasic(t *testing.T) {
	got := SplitSentences("Hello there. How are you? Fine!")
	want := []string{"Hello there.", "How are you?", "Fine!"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSplitSentencesSkipsInitialsAndAbbreviations(t *testing.T) {
	got := SplitSentences("Please ask for A. Smith, e.g. at the front desk. He will help.")
	want := []string{"Please ask for A. Smith, e.g. at the front desk.", "He will help."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSplitSentencesEmpty(t *testing.T) {
	if got := SplitSentences("   "); got != nil {
		t.Fatalf("expected nil for blank input, got %q", got)
	}
}

type stubTTSProvider struct {
	mu    sync.Mutex
	calls []string
}

func (p *stubTTSProvider) Name() string { return "stub" }

func (p *stubTTSProvider) Abort(sessionID string) error { return nil }

// StreamSynthesize returns two bytes (one sample) of silent 16-bit PCM per
// call; one 22050Hz sample resamples to zero 8kHz samples, so every
// sentence yields one empty mu-law chunk downstream.
func (p *stubTTSProvider) StreamSynthesize(ctx context.Context, text string, onChunk func([]byte) error) error {
	p.mu.Lock()
	p.calls = append(p.calls, text)
	p.mu.Unlock()
	return onChunk([]byte{0x00, 0x00})
}

func TestStreamYieldsSentencesInOrder(t *testing.T) {
	provider := &stubTTSProvider{}
	streamer := New(provider, nil)

	var mu sync.Mutex
	var chunkCount int
	err := streamer.Stream(context.Background(), "sess-1", "One. Two. Three. Four.", func(chunk []byte) error {
		mu.Lock()
		chunkCount++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunkCount != 4 {
		t.Fatalf("expected 4 chunks (one per sentence), got %d", chunkCount)
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	if len(provider.calls) != 4 {
		t.Fatalf("expected 4 synthesis calls, got %d", len(provider.calls))
	}
}

func TestStreamEmptyTextYieldsNothing(t *testing.T) {
	provider := &stubTTSProvider{}
	streamer := New(provider, nil)

	called := false
	err := streamer.Stream(context.Background(), "sess-1", "   ", func(chunk []byte) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatal("expected no chunks for empty text")
	}
}
