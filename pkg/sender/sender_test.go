package sender

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSenderSendsSilenceWhenEmpty(t *testing.T) {
	var count atomic.Int32
	var lastLen atomic.Int32
	s := New(func(duration int, frame []byte) {
		count.Add(1)
		lastLen.Store(int32(len(frame)))
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(110 * time.Millisecond)
	cancel()
	s.Stop()

	n := count.Load()
	if n < 4 || n > 7 {
		t.Fatalf("expected roughly 5 ticks in 110ms, got %d", n)
	}
	if lastLen.Load() != 160 {
		t.Fatalf("expected 160-byte frames, got %d", lastLen.Load())
	}
}

func TestSenderEnqueueRejectsWrongSize(t *testing.T) {
	s := New(func(int, []byte) {}, nil, nil)
	if err := s.Enqueue(make([]byte, 159)); err == nil {
		t.Fatalf("expected error for wrong frame size")
	}
}

func TestSenderResetBufferFiresCompletion(t *testing.T) {
	var completed atomic.Bool
	s := New(func(int, []byte) {}, nil, func() { completed.Store(true) })

	if err := s.Enqueue(make([]byte, 160)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	s.ResetBuffer()

	if !completed.Load() {
		t.Fatalf("expected SendingComplete on reset of pending audio")
	}
	if s.IsPlaying() {
		t.Fatalf("expected queue empty after reset")
	}
}

func TestSenderResetBufferIdempotent(t *testing.T) {
	var completions atomic.Int32
	s := New(func(int, []byte) {}, nil, func() { completions.Add(1) })
	s.Enqueue(make([]byte, 160))
	s.ResetBuffer()
	s.ResetBuffer()
	s.ResetBuffer()
	if completions.Load() != 1 {
		t.Fatalf("expected exactly one completion across repeated resets, got %d", completions.Load())
	}
}

func TestSenderCompletionFiresAfterDrainingRealPlayback(t *testing.T) {
	var completed atomic.Bool
	var mu sync.Mutex
	var sent [][]byte
	s := New(func(duration int, frame []byte) {
		mu.Lock()
		sent = append(sent, frame)
		mu.Unlock()
	}, nil, func() { completed.Store(true) })

	s.Enqueue(make([]byte, 160))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	cancel()
	s.Stop()

	if !completed.Load() {
		t.Fatalf("expected SendingComplete after queue drained on tick loop")
	}
}

func TestSenderFilterAppliedAndClearable(t *testing.T) {
	var got []byte
	s := New(func(duration int, frame []byte) { got = frame }, nil, nil)
	s.Enqueue(make([]byte, 160))

	s.ApplyFilter(func(frame []byte) []byte {
		out := make([]byte, len(frame))
		for i := range out {
			out[i] = 0xAA
		}
		return out
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	s.Stop()

	if len(got) != 160 || got[0] != 0xAA {
		t.Fatalf("expected filter to be applied to sent frame")
	}
}

func TestSenderFilterPanicFallsBackUnfiltered(t *testing.T) {
	var got []byte
	s := New(func(duration int, frame []byte) { got = frame }, nil, nil)
	s.Enqueue(make([]byte, 160))
	s.ApplyFilter(func(frame []byte) []byte { panic("boom") })

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	s.Stop()

	if len(got) != 160 {
		t.Fatalf("expected unfiltered frame sent despite panicking filter")
	}
}

func TestSenderIsPlaying(t *testing.T) {
	s := New(func(int, []byte) {}, nil, nil)
	if s.IsPlaying() {
		t.Fatalf("expected not playing when queue empty")
	}
	s.Enqueue(make([]byte, 160))
	if !s.IsPlaying() {
		t.Fatalf("expected playing once a frame is enqueued")
	}
}

func TestSenderStopIdempotent(t *testing.T) {
	s := New(func(int, []byte) {}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()
	s.Stop()
	s.Stop()
}
