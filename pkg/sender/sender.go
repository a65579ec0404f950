// Package sender implements the Paced Sender: a wall-clock-synchronized
// 20ms tick loop that drains an outbound mu-law frame queue, fills gaps
// with silence, and supports live filter injection for bot-ducking.
package sender

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lokutor-ai/telephony-voiceagent/pkg/audio"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/logging"
)

const (
	tickPeriod  = 20 * time.Millisecond
	frameBytes  = audio.FrameBytesMuLaw
	rtpDuration = 160
)

// Filter is a pure byte-to-byte transform applied to each outbound frame.
// Implementations are expected to return exactly len(frame) bytes.
type Filter func(frame []byte) []byte

// SendFunc is the injected outbound sink, invoked once per tick with the
// RTP duration unit and the frame bytes to send.
type SendFunc func(durationRTPUnits int, frame []byte)

// Sender paces outbound frames against the wall clock. The queue is
// multi-writer/single-reader; the filter slot is atomic-replace;
// hasAudioPending is written on Enqueue but cleared only on the tick
// goroutine.
type Sender struct {
	logger logging.Logger
	send   SendFunc

	mu    sync.Mutex
	queue [][]byte

	filter atomic.Pointer[Filter]

	hasAudioPending atomic.Bool
	onComplete      func()

	cancel    context.CancelFunc
	done      chan struct{}
	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a Sender. send is invoked from the tick goroutine for every
// 20ms slot, including silence-filled slots. onComplete, if non-nil, fires
// whenever the queue drains after a non-silence frame was sent (the
// SendingComplete event).
func New(send SendFunc, logger logging.Logger, onComplete func()) *Sender {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Sender{
		send:       send,
		logger:     logger,
		onComplete: onComplete,
		done:       make(chan struct{}),
	}
}

// Start begins the 20ms tick loop. Safe to call once; subsequent calls are
// no-ops.
func (s *Sender) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.started.Store(true)
		go s.run(runCtx)
	})
}

// Stop halts the tick loop. Idempotent and async-waitable: subsequent
// calls return immediately once the loop has exited.
func (s *Sender) Stop() {
	if !s.started.Load() {
		return
	}
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
	<-s.done
}

// Enqueue appends frame to the outbound queue. frame must be exactly 160
// bytes (one 20ms mu-law frame).
func (s *Sender) Enqueue(frame []byte) error {
	if len(frame) != frameBytes {
		return fmt.Errorf("sender: frame must be exactly %d bytes, got %d", frameBytes, len(frame))
	}
	s.hasAudioPending.Store(true)
	s.mu.Lock()
	s.queue = append(s.queue, frame)
	s.mu.Unlock()
	return nil
}

// ResetBuffer drains the queue and, if audio was pending, fires
// SendingComplete immediately (used by the controller to fully interrupt
// bot playback on barge-in).
func (s *Sender) ResetBuffer() {
	s.mu.Lock()
	s.queue = nil
	s.mu.Unlock()

	if s.hasAudioPending.CompareAndSwap(true, false) {
		if s.onComplete != nil {
			s.onComplete()
		}
	}
}

// ApplyFilter installs fn as the current filter, replacing any previous
// filter atomically.
func (s *Sender) ApplyFilter(fn Filter) {
	f := fn
	s.filter.Store(&f)
}

// ClearFilter removes the current filter, if any.
func (s *Sender) ClearFilter() {
	s.filter.Store(nil)
}

// IsPlaying reports whether the queue currently holds at least one frame.
// Silence ticks do not count as playing.
func (s *Sender) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) > 0
}

func (s *Sender) run(ctx context.Context) {
	defer close(s.done)

	expectedElapsed := time.Duration(0)
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, wasSilence := s.dequeue()
		frame = s.applyFilter(frame)

		if s.send != nil {
			s.send(rtpDuration, frame)
		}

		if !wasSilence {
			s.mu.Lock()
			empty := len(s.queue) == 0
			s.mu.Unlock()
			if empty && s.hasAudioPending.CompareAndSwap(true, false) {
				if s.onComplete != nil {
					s.onComplete()
				}
			}
		}

		// Absorb jitter without drift: advance the expected schedule by
		// exactly one tick period and sleep only the remainder. If we're
		// already behind schedule, loop immediately with no sleep.
		expectedElapsed += tickPeriod
		if actual := time.Since(start); actual < expectedElapsed {
			select {
			case <-ctx.Done():
				return
			case <-time.After(expectedElapsed - actual):
			}
		}
	}
}

func (s *Sender) dequeue() (frame []byte, wasSilence bool) {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return audio.SilenceFrameMuLaw(frameBytes), true
	}
	frame = s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()
	return frame, false
}

func (s *Sender) applyFilter(frame []byte) []byte {
	fp := s.filter.Load()
	if fp == nil || *fp == nil {
		return frame
	}
	out, ok := safeFilter(*fp, frame, s.logger)
	if !ok {
		return frame
	}
	return out
}

// safeFilter runs fn and recovers from a panic, logging and falling back
// to the unfiltered frame; filter errors never stop the tick loop, and the
// filter remains installed for subsequent frames.
func safeFilter(fn Filter, frame []byte, logger logging.Logger) (out []byte, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("sender: filter panicked, sending frame unfiltered", "recover", r)
			ok = false
		}
	}()
	out = fn(frame)
	if len(out) != len(frame) {
		logger.Warn("sender: filter returned wrong length, sending frame unfiltered", "got", len(out), "want", len(frame))
		return nil, false
	}
	return out, true
}
