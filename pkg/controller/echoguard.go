package controller

import (
	"bytes"
	"math"
	"sync"
	"time"
)

const (
	playedBufMaxBytes  = 64000 // 2s of 16kHz 16-bit mono
	echoCorrelationMin = 0.55
	echoSilenceWindow  = 1200 * time.Millisecond
)

// echoGuard detects when an inbound 16kHz PCM frame is most likely the
// bot's own voice looping back through the telephony path rather than
// genuine caller speech, so the controller can drop that frame before it
// reaches the VAD and fires a false SentenceBegin. The decision is a
// correlation check against audio played within the last
// echoSilenceWindow: real barge-in speech correlates poorly with recently
// played audio and still passes through.
type echoGuard struct {
	mu       sync.Mutex
	played   bytes.Buffer
	lastPlay time.Time
}

func newEchoGuard() *echoGuard {
	return &echoGuard{}
}

// recordPlayed appends pcm16 (16kHz mono) to the rolling reference buffer
// of audio the sender just emitted.
func (g *echoGuard) recordPlayed(pcm16 []byte) {
	if len(pcm16) == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.played.Write(pcm16)
	g.lastPlay = time.Now()

	if g.played.Len() > playedBufMaxBytes {
		data := g.played.Bytes()
		trimmed := data[len(data)-playedBufMaxBytes:]
		g.played.Reset()
		g.played.Write(trimmed)
	}
}

// reset drops the reference buffer, used when the controller clears
// playback on barge-in.
func (g *echoGuard) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.played.Reset()
}

// likelyEcho reports whether frame correlates strongly enough with the
// tail of the recently played reference buffer to be treated as echo
// rather than caller speech.
func (g *echoGuard) likelyEcho(frame []byte) bool {
	if len(frame) == 0 {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if time.Since(g.lastPlay) > echoSilenceWindow {
		return false
	}
	reference := g.played.Bytes()
	if len(reference) == 0 {
		return false
	}

	return correlate(frame, reference) > echoCorrelationMin
}

// correlate computes the normalized cross-correlation between input and
// the tail of reference matching input's length. The two are compared at a
// single alignment; no lag search is made for playback-to-input latency.
func correlate(input, reference []byte) float64 {
	in := samplesOf(input)
	ref := samplesOf(reference)
	if len(in) == 0 || len(ref) == 0 {
		return 0
	}

	compareLen := len(in)
	if compareLen > len(ref) {
		compareLen = len(ref)
	}
	refTail := ref[len(ref)-compareLen:]
	inHead := in[:compareLen]

	inEnergy := energyOf(inHead)
	refEnergy := energyOf(refTail)
	if inEnergy == 0 || refEnergy == 0 {
		return 0
	}

	dot := 0.0
	for i := range inHead {
		dot += inHead[i] * refTail[i]
	}

	norm := math.Sqrt(inEnergy * refEnergy)
	if norm == 0 {
		return 0
	}
	corr := dot / norm
	if corr < 0 {
		return 0
	}
	if corr > 1 {
		return 1
	}
	return corr
}

func samplesOf(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		s := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		out[i] = float64(s) / 32768.0
	}
	return out
}

func energyOf(samples []float64) float64 {
	e := 0.0
	for _, s := range samples {
		e += s * s
	}
	return e
}
