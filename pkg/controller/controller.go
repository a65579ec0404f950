// Package controller implements the Conversation Controller: it wires the
// VAD Segmenter, STT Streamer, LLM Turn Engine, TTS Streamer, and Paced
// Sender into a turn-taking conversation with barge-in ducking and
// full-interrupt on a new transcript.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lokutor-ai/telephony-voiceagent/pkg/audio"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/llm"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/logging"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/sender"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/stt"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/tts"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/vad"
)

const duckGainDefault = 0.35

// TurnLatency carries the per-turn instrumentation timestamps:
// utterance-closed, transcript-complete, LLM completion (the engine has no
// token-streaming API, so LLMCompleteAt stands in for "LLM-first-token"),
// TTS-first-chunk, and sender-first-frame.
type TurnLatency struct {
	UtteranceClosedAt    time.Time
	TranscriptCompleteAt time.Time
	LLMCompleteAt        time.Time
	TTSFirstChunkAt      time.Time
	SenderFirstFrameAt   time.Time
}

// Config configures a Controller's welcome message, ducking gain, and
// optional latency instrumentation sink.
type Config struct {
	SessionID          string
	WelcomeText        string   // appended as an assistant turn with no model call
	WelcomeAudioFrames [][]byte // pre-rendered mu-law 160-byte frames, already silence-prefixed
	DuckGain           float64  // gain applied to ducked frames; default 0.35
	OnTurnLatency      func(TurnLatency)
}

func (c Config) withDefaults() Config {
	if c.DuckGain == 0 {
		c.DuckGain = duckGainDefault
	}
	return c
}

// Controller is the Conversation Controller. Owned state: is_processing_transcription
// and volume_filter_active, both guarded by mu, plus the single
// cancellation token for the in-flight turn.
type Controller struct {
	cfg    Config
	logger logging.Logger

	vadEngine   vad.Engine
	segmenter   *vad.Segmenter
	sttStreamer *stt.Streamer
	engine      *llm.Engine
	ttsProvider tts.Provider
	ttsStreamer *tts.Streamer
	sender      *sender.Sender
	echoGuard   *echoGuard

	ctx    context.Context
	cancel context.CancelFunc

	mu                        sync.Mutex
	isProcessingTranscription bool
	volumeFilterActive        bool
	turnCancel                context.CancelFunc
	utteranceClosedAt         time.Time

	closeOnce sync.Once
}

// New builds a Controller. send is the outbound RTP sink; vadEngine and
// recognizer back the Segmenter and STT Streamer respectively; ttsProvider
// backs the TTS Streamer. engine must already be constructed with its tool
// registry.
func New(
	parentCtx context.Context,
	vadEngine vad.Engine,
	vadCfg vad.Config,
	recognizer stt.Recognizer,
	engine *llm.Engine,
	ttsProvider tts.Provider,
	send sender.SendFunc,
	cfg Config,
	logger logging.Logger,
) *Controller {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(parentCtx)
	c := &Controller{
		cfg:         cfg,
		logger:      logger,
		vadEngine:   vadEngine,
		engine:      engine,
		ttsProvider: ttsProvider,
		ttsStreamer: tts.New(ttsProvider, logger),
		echoGuard:   newEchoGuard(),
		ctx:         ctx,
		cancel:      cancel,
	}

	c.sender = sender.New(c.wrapSend(send), logger, c.handleSendingComplete)
	c.sttStreamer = stt.New(recognizer, logger, c.handleTranscriptionComplete)
	c.segmenter = vad.New(vadCfg, vadEngine, logger, c.handleVADEvent)

	return c
}

// wrapSend records every emitted frame into the echo guard's rolling
// reference buffer before forwarding it to the real outbound sink, so
// HandleInboundFrame can tell genuine barge-in speech from the bot's own
// voice looping back through the telephony path.
func (c *Controller) wrapSend(send sender.SendFunc) sender.SendFunc {
	return func(durationRTPUnits int, frame []byte) {
		pcm16 := audio.Resample8to16(audio.DecodeMuLaw(frame))
		c.echoGuard.recordPlayed(pcm16)
		if send != nil {
			send(durationRTPUnits, frame)
		}
	}
}

// HandleInboundFrame decodes one inbound 8kHz mu-law RTP frame, resamples
// it to 16kHz, and forwards it to the VAD Segmenter. Frames with the wrong
// payload type or length are dropped. Frames that correlate
// strongly with recently played audio are dropped as echo before reaching
// the Segmenter.
func (c *Controller) HandleInboundFrame(payloadType int, payload []byte) error {
	if payloadType != 0 || len(payload) != audio.FrameBytesMuLaw {
		c.logger.Warn("controller: dropping malformed inbound frame", "payload_type", payloadType, "len", len(payload))
		return fmt.Errorf("%w: payload_type=%d len=%d", ErrAudioFormatError, payloadType, len(payload))
	}

	pcm16 := audio.Resample8to16(audio.DecodeMuLaw(payload))
	if c.echoGuard.likelyEcho(pcm16) {
		return nil
	}

	return c.segmenter.PushFrame(pcm16, 16000, 20)
}

// handleVADEvent ducks the bot on SentenceBegin and hands completed
// utterances to the STT Streamer.
func (c *Controller) handleVADEvent(e vad.Event) {
	switch e.Type {
	case vad.SentenceBegin:
		c.mu.Lock()
		if c.sender.IsPlaying() && !c.volumeFilterActive {
			c.sender.ApplyFilter(duckFilter(c.cfg.DuckGain))
			c.volumeFilterActive = true
			c.vadEngine.SetAdaptiveMode(false)
		}
		c.mu.Unlock()

	case vad.SentenceCompleted:
		c.mu.Lock()
		if c.volumeFilterActive {
			c.sender.ClearFilter()
			c.volumeFilterActive = false
			c.vadEngine.SetAdaptiveMode(true)
		}
		c.utteranceClosedAt = time.Now()
		c.mu.Unlock()

		audioBytes := e.Audio
		go func() {
			if err := c.sttStreamer.ProcessAudioChunk(c.ctx, audioBytes); err != nil && c.ctx.Err() == nil {
				c.logger.Warn("controller: stt processing failed", "error", err)
			}
		}()
	}
}

// duckFilter returns a sender.Filter that attenuates a mu-law frame's
// amplitude by gain, the "duck the bot" signal.
func duckFilter(gain float64) sender.Filter {
	return func(frame []byte) []byte {
		pcm := audio.DecodeMuLaw(frame)
		out := make([]byte, len(pcm))
		for i := 0; i+1 < len(pcm); i += 2 {
			s := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
			scaled := int16(float64(s) * gain)
			out[i] = byte(uint16(scaled))
			out[i+1] = byte(uint16(scaled) >> 8)
		}
		return audio.EncodeMuLaw(out)
	}
}

// handleTranscriptionComplete starts a fresh turn. A turn already in
// flight causes the new transcript to be dropped, not queued.
func (c *Controller) handleTranscriptionComplete(text string) {
	c.mu.Lock()
	if c.isProcessingTranscription {
		c.mu.Unlock()
		c.logger.Debug("controller: dropping transcript, turn already in flight")
		return
	}
	c.isProcessingTranscription = true

	if c.turnCancel != nil {
		c.turnCancel()
		if err := c.ttsProvider.Abort(c.cfg.SessionID); err != nil {
			c.logger.Warn("controller: tts abort failed", "error", err)
		}
	}
	turnCtx, cancel := context.WithCancel(c.ctx)
	c.turnCancel = cancel
	closedAt := c.utteranceClosedAt
	c.mu.Unlock()

	go c.runTurn(turnCtx, text, closedAt)
}

// runTurn asks the LLM for a response, fully interrupts any in-progress
// playback, then streams the new response through TTS into the sender.
func (c *Controller) runTurn(ctx context.Context, text string, closedAt time.Time) {
	defer func() {
		c.mu.Lock()
		c.isProcessingTranscription = false
		c.mu.Unlock()
	}()

	lat := TurnLatency{UtteranceClosedAt: closedAt, TranscriptCompleteAt: time.Now()}

	reply := c.engine.ProcessMessage(ctx, text)
	lat.LLMCompleteAt = time.Now()

	c.sender.ResetBuffer()
	c.echoGuard.reset()

	firstChunk := true
	firstFrame := true
	err := c.ttsStreamer.Stream(ctx, c.cfg.SessionID, reply, func(chunk []byte) error {
		if firstChunk {
			lat.TTSFirstChunkAt = time.Now()
			firstChunk = false
		}
		for _, frame := range audio.SplitFrames(chunk, audio.FrameBytesMuLaw) {
			if firstFrame {
				lat.SenderFirstFrameAt = time.Now()
				firstFrame = false
			}
			if err := c.sender.Enqueue(frame); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		c.logger.Warn("controller: tts streaming failed", "error", err)
	}

	if c.cfg.OnTurnLatency != nil {
		c.cfg.OnTurnLatency(lat)
	}
}

func (c *Controller) handleSendingComplete() {
	c.logger.Debug("controller: sending complete")
}

// Start begins the sender's tick loop and delivers the welcome message:
// the welcome text is appended to the engine's history as an assistant
// turn with no model call, and the pre-rendered (silence-prefixed) welcome
// audio is enqueued for playback.
func (c *Controller) Start() {
	c.sender.Start(c.ctx)

	if c.cfg.WelcomeText != "" {
		c.engine.AddAssistantMessage(c.cfg.WelcomeText)
	}
	for _, frame := range c.cfg.WelcomeAudioFrames {
		if err := c.sender.Enqueue(frame); err != nil {
			c.logger.Warn("controller: failed to enqueue welcome frame", "error", err)
		}
	}
}

// Shutdown cancels the current turn, stops the sender, and releases the
// VAD engine's resources. Idempotent: safe to call more than once.
func (c *Controller) Shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.turnCancel != nil {
			c.turnCancel()
			if err := c.ttsProvider.Abort(c.cfg.SessionID); err != nil {
				c.logger.Warn("controller: tts abort failed", "error", err)
			}
		}
		c.mu.Unlock()

		c.cancel()
		c.sender.Stop()
		if err := c.segmenter.Close(); err != nil {
			c.logger.Warn("controller: vad engine close failed", "error", err)
		}
	})
}
