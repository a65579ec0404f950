// Package vad converts a stream of 16kHz mono PCM frames into discrete
// utterance byte buffers, with pre-roll, hangover, and max-length
// truncation, using a pluggable speech-probability Engine.
package vad

import (
	"bytes"
	"fmt"

	"github.com/lokutor-ai/telephony-voiceagent/pkg/logging"
)

// EventType identifies a Segmenter event.
type EventType int

const (
	SentenceBegin EventType = iota
	SentenceCompleted
)

// TerminalReason explains why SentenceCompleted fired.
type TerminalReason int

const (
	TerminalSilenceHangover TerminalReason = iota
	TerminalMaxLength
)

// Event is delivered synchronously to the Segmenter's subscriber.
type Event struct {
	Type     EventType
	Audio    []byte // populated only for SentenceCompleted
	Terminal TerminalReason
}

type state int

const (
	stateIdle state = iota
	stateJustStarted
	stateInUtterance
)

// Config tunes the Segmenter's thresholds. Zero values are replaced by the
// spec-defined defaults in New.
type Config struct {
	FrameLenMs       int
	StartThresholdMs int
	EndThresholdMs   int
	PreSpeechMs      int
	MaxSpeechMs      int
	Threshold        float64
}

func (c Config) withDefaults() Config {
	if c.FrameLenMs <= 0 {
		c.FrameLenMs = 20
	}
	if c.StartThresholdMs <= 0 {
		c.StartThresholdMs = 500
	}
	if c.EndThresholdMs <= 0 {
		c.EndThresholdMs = 550
	}
	if c.PreSpeechMs <= 0 {
		c.PreSpeechMs = 1200
	}
	if c.MaxSpeechMs <= 0 {
		c.MaxSpeechMs = 7000
	}
	if c.Threshold <= 0 {
		c.Threshold = 0.3
	}
	return c
}

func ceilDiv(ms, frameMs int) int {
	n := (ms + frameMs - 1) / frameMs
	if n < 1 {
		n = 1
	}
	return n
}

// Segmenter is the utterance-detection state machine. It is
// single-writer: PushFrame must be called sequentially, never concurrently.
type Segmenter struct {
	cfg    Config
	engine Engine
	logger logging.Logger

	onEvent func(Event)

	st state

	ring        *PreSpeechRing
	startCount  *FrameCounter
	endCount    *FrameCounter
	frameBytes  int
	maxBytes    int
	utterance   bytes.Buffer
	elapsedMs   int
	vadWindow   []byte
}

// New creates a Segmenter. onEvent is invoked synchronously from PushFrame
// whenever an event fires; it must not block for long.
func New(cfg Config, engine Engine, logger logging.Logger, onEvent func(Event)) *Segmenter {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logging.NopLogger{}
	}
	frameBytes := cfg.FrameLenMs * 32 // 16kHz * 2 bytes/sample * ms/1000 = ms*32

	s := &Segmenter{
		cfg:        cfg,
		engine:     engine,
		logger:     logger,
		onEvent:    onEvent,
		ring:       NewPreSpeechRing(ceilDiv(cfg.PreSpeechMs, cfg.FrameLenMs)),
		startCount: NewFrameCounter(ceilDiv(cfg.StartThresholdMs, cfg.FrameLenMs)),
		endCount:   NewFrameCounter(ceilDiv(cfg.EndThresholdMs, cfg.FrameLenMs)),
		frameBytes: frameBytes,
		maxBytes:   cfg.MaxSpeechMs * 32,
	}
	if engine != nil {
		engine.SetThreshold(cfg.Threshold)
	}
	return s
}

// PushFrame ingests one frame of 16-bit PCM at sampleRate Hz. sampleRate
// must be 16000. frameLenMs is the nominal duration the caller believes the
// frame represents; frames of the wrong byte count are resized to
// frameLenMs*32 bytes with a warning, and odd byte counts are trimmed first.
func (s *Segmenter) PushFrame(frame []byte, sampleRate int, frameLenMs int) error {
	if sampleRate != 16000 {
		return fmt.Errorf("vad: invalid sample rate %d, expected 16000", sampleRate)
	}
	expected := frameLenMs * 32
	if len(frame)%2 != 0 {
		s.logger.Warn("vad: odd frame byte count, trimming", "len", len(frame))
		frame = frame[:len(frame)-1]
	}
	if expected > 0 && len(frame) != expected {
		s.logger.Warn("vad: frame size mismatch, resizing", "got", len(frame), "want", expected)
		resized := make([]byte, expected)
		copy(resized, frame)
		frame = resized
	}

	s.ring.Push(frame)
	s.vadWindow = s.ring.Tail(s.engine.WindowBytes())

	result, err := s.engine.Infer(s.vadWindow)
	if err != nil {
		return fmt.Errorf("vad: inference: %w", err)
	}

	s.step(frame, result.IsSpeech)
	return nil
}

func (s *Segmenter) step(frame []byte, isSpeech bool) {
	switch s.st {
	case stateIdle:
		if isSpeech {
			if s.startCount.Trigger() {
				s.utterance.Reset()
				s.utterance.Write(s.ring.Drain())
				s.elapsedMs = 0
				s.endCount.Reset()
				s.emit(Event{Type: SentenceBegin})
				s.st = stateJustStarted
			}
		} else {
			s.startCount.Reset()
		}

	case stateJustStarted:
		// One-frame guard: the frame that triggered SentenceBegin was
		// already folded into the pre-speech ring drain above, so this
		// transition happens unconditionally without re-appending it.
		s.st = stateInUtterance

	case stateInUtterance:
		s.utterance.Write(frame)
		s.elapsedMs += s.cfg.FrameLenMs

		if isSpeech {
			s.endCount.Reset()
		} else if s.endCount.Trigger() {
			s.completeUtterance(TerminalSilenceHangover)
			return
		}

		if s.elapsedMs >= s.cfg.MaxSpeechMs {
			s.completeUtterance(TerminalMaxLength)
		}
	}
}

func (s *Segmenter) completeUtterance(reason TerminalReason) {
	audio := make([]byte, s.utterance.Len())
	copy(audio, s.utterance.Bytes())
	s.utterance.Reset()
	s.startCount.Reset()
	s.endCount.Reset()
	s.elapsedMs = 0
	s.st = stateIdle
	s.emit(Event{Type: SentenceCompleted, Audio: audio, Terminal: reason})
}

func (s *Segmenter) emit(e Event) {
	if s.onEvent != nil {
		s.onEvent(e)
	}
}

// Reset clears the state machine and the underlying engine's recurrent
// state. Callers decide whether to invoke this after every
// SentenceCompleted or hold state across the whole call; the Segmenter
// itself never calls it automatically.
func (s *Segmenter) Reset() {
	s.st = stateIdle
	s.utterance.Reset()
	s.startCount.Reset()
	s.endCount.Reset()
	s.elapsedMs = 0
	if s.engine != nil {
		s.engine.Reset()
	}
}

// Close releases the underlying engine's resources.
func (s *Segmenter) Close() error {
	if s.engine != nil {
		return s.engine.Close()
	}
	return nil
}
