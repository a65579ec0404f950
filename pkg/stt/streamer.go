package stt

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lokutor-ai/telephony-voiceagent/pkg/logging"
)

const (
	settlingDelay  = 100 * time.Millisecond
	settlingWindow = 2 * time.Second
	waitTimeout    = 10 * time.Second
)

type pendingSegment struct {
	text        string
	processedAt time.Time
}

// Streamer turns one utterance of audio into a settled transcript: it runs a
// Recognizer over a complete utterance, filters non-speakable segments,
// and aggregates speakable segments that settle within a 2-second window
// before firing TranscriptionComplete.
type Streamer struct {
	recognizer Recognizer
	logger     logging.Logger
	onComplete func(text string)

	mu      sync.Mutex
	pending []pendingSegment

	completeCh chan string
}

// New creates a Streamer. onComplete, if non-nil, is invoked synchronously
// whenever a transcript settles.
func New(recognizer Recognizer, logger logging.Logger, onComplete func(text string)) *Streamer {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Streamer{
		recognizer: recognizer,
		logger:     logger,
		onComplete: onComplete,
		completeCh: make(chan string, 8),
	}
}

// ProcessAudioChunk runs recognition over pcm (one utterance), enqueues
// every speakable segment with a wall-clock processed_at timestamp, then
// invokes the settling check after the settling delay.
func (s *Streamer) ProcessAudioChunk(ctx context.Context, pcm []byte) error {
	segments, err := s.recognizer.Recognize(ctx, pcm)
	if err != nil {
		return err
	}

	now := time.Now()
	s.mu.Lock()
	for _, seg := range segments {
		if !IsSpeakable(seg.Text) {
			continue
		}
		s.pending = append(s.pending, pendingSegment{text: strings.TrimSpace(seg.Text), processedAt: now})
	}
	s.mu.Unlock()

	timer := time.NewTimer(settlingDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.settle()
	return nil
}

// settle dequeues all segments within the settling window and, if any
// remain, concatenates them in enqueue order and fires TranscriptionComplete.
func (s *Streamer) settle() {
	cutoff := time.Now().Add(-settlingWindow)

	s.mu.Lock()
	var kept []pendingSegment
	var texts []string
	for _, seg := range s.pending {
		if seg.processedAt.Before(cutoff) {
			continue // discarded: too old
		}
		kept = append(kept, seg)
		texts = append(texts, seg.text)
	}
	s.pending = nil
	s.mu.Unlock()
	_ = kept

	if len(texts) == 0 {
		return
	}

	text := strings.Join(texts, " ")
	select {
	case s.completeCh <- text:
	default:
	}
	if s.onComplete != nil {
		s.onComplete(text)
	}
}

// WaitForComplete waits up to 10 seconds for the next TranscriptionComplete.
// On timeout, it returns the concatenation of segments still within a
// 10-second window (which may be empty).
func (s *Streamer) WaitForComplete(ctx context.Context) (string, error) {
	timer := time.NewTimer(waitTimeout)
	defer timer.Stop()

	select {
	case text := <-s.completeCh:
		return text, nil
	case <-timer.C:
		return s.recentWithinWindow(waitTimeout), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Streamer) recentWithinWindow(window time.Duration) string {
	cutoff := time.Now().Add(-window)
	s.mu.Lock()
	defer s.mu.Unlock()

	var texts []string
	for _, seg := range s.pending {
		if seg.processedAt.After(cutoff) {
			texts = append(texts, seg.text)
		}
	}
	return strings.Join(texts, " ")
}
