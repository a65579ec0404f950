// Command phoneagent runs the voice-agent pipeline against the local
// microphone and speakers, standing in for a live SIP/RTP call: captured
// audio is framed into 20ms mu-law frames and fed to the Conversation
// Controller, and the Paced Sender's output plays back through the speakers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gen2brain/malgo"
	"github.com/joho/godotenv"

	"github.com/lokutor-ai/telephony-voiceagent/pkg/audio"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/config"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/controller"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/llm"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/logging"
	llmProvider "github.com/lokutor-ai/telephony-voiceagent/pkg/providers/llm"
	sttProvider "github.com/lokutor-ai/telephony-voiceagent/pkg/providers/stt"
	ttsProvider "github.com/lokutor-ai/telephony-voiceagent/pkg/providers/tts"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/stt"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/tools"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/tts"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/vad"
)

const (
	sampleRate     = 8000
	frameSamples   = 160 // 20ms at 8kHz
	welcomeSilence = 100 // frames: 2s of leading mu-law silence
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	profileName := flag.String("profile", "", "profile name (falls back to BOT_PROFILE)")
	flag.Parse()

	logger := logging.NewSlog(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	profile, name, err := cfg.SelectProfile(*profileName)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	logger.Info("profile selected", "profile", name)

	recognizer, err := buildRecognizer(cfg, logger)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	provider, err := buildLLMProvider(profile)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	lokutorKey := os.Getenv("LOKUTOR_API_KEY")
	if lokutorKey == "" {
		log.Fatal("Error: LOKUTOR_API_KEY must be set.")
	}
	synth := ttsProvider.NewLokutorProvider(lokutorKey, os.Getenv("LOKUTOR_VOICE"), "en")

	vadEngine, err := newVADEngine()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	toolFuncs := buildTools(cfg, profile, logger, cancel)
	engine := llm.NewEngine(provider, toolFuncs, llm.Config{
		InstructionsText:     profile.Instructions,
		InstructionsAddendum: profile.InstructionsAddendum,
		ToolGuidanceTemplate: profile.ToolGuidance,
		Extensions:           llmExtensions(profile.Extensions),
		Temperature:          profile.Temperature,
		MaxTokens:            profile.MaxTokens,
	}, logger)

	welcomeFrames, err := welcomeAudio(ctx, profile, synth, logger)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	// Playback buffer bridging the Paced Sender to the malgo output stream.
	var playbackMu sync.Mutex
	var playbackBytes []byte

	send := func(durationRTPUnits int, frame []byte) {
		pcm := audio.DecodeMuLaw(frame)
		playbackMu.Lock()
		playbackBytes = append(playbackBytes, pcm...)
		playbackMu.Unlock()
	}

	ctrl := controller.New(ctx, vadEngine, vad.Config{}, recognizer, engine, synth, send, controller.Config{
		SessionID:          "local",
		WelcomeText:        profile.WelcomeText,
		WelcomeAudioFrames: welcomeFrames,
		OnTurnLatency: func(lat controller.TurnLatency) {
			logger.Debug("turn latency",
				"stt_ms", lat.TranscriptCompleteAt.Sub(lat.UtteranceClosedAt).Milliseconds(),
				"llm_ms", lat.LLMCompleteAt.Sub(lat.TranscriptCompleteAt).Milliseconds(),
				"tts_first_chunk_ms", lat.TTSFirstChunkAt.Sub(lat.LLMCompleteAt).Milliseconds())
		},
	}, logger)
	defer ctrl.Shutdown()

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer mctx.Uninit()

	// Captured PCM accumulates until a full 20ms frame is available, then is
	// mu-law encoded and handed to the controller like an inbound RTP frame.
	var captureBuf []byte

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		if pInput != nil {
			captureBuf = append(captureBuf, pInput...)
			for len(captureBuf) >= frameSamples*2 {
				pcmFrame := captureBuf[:frameSamples*2]
				captureBuf = captureBuf[frameSamples*2:]
				if err := ctrl.HandleInboundFrame(0, audio.EncodeMuLaw(pcmFrame)); err != nil {
					logger.Warn("inbound frame rejected", "error", err)
				}
			}
		}
		if pOutput != nil {
			playbackMu.Lock()
			n := copy(pOutput, playbackBytes)
			playbackBytes = playbackBytes[n:]
			playbackMu.Unlock()
			for i := n; i < len(pOutput); i++ {
				pOutput[i] = 0
			}
		}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = sampleRate
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer device.Uninit()

	ctrl.Start()
	if err := device.Start(); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Voice agent started. Press Ctrl+C to exit.")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	fmt.Println("\nShutting down...")
}

func buildRecognizer(cfg *config.Config, logger logging.Logger) (stt.Recognizer, error) {
	switch os.Getenv("STT_PROVIDER") {
	case "openai":
		return requireKey("OPENAI_API_KEY", func(key string) stt.Recognizer {
			return sttProvider.NewOpenAIRecognizer(key, os.Getenv("OPENAI_STT_MODEL"))
		})
	case "groq":
		return requireKey("GROQ_API_KEY", func(key string) stt.Recognizer {
			return sttProvider.NewGroqRecognizer(key, os.Getenv("GROQ_STT_MODEL"))
		})
	case "deepgram":
		return requireKey("DEEPGRAM_API_KEY", func(key string) stt.Recognizer {
			return sttProvider.NewDeepgramRecognizer(key)
		})
	case "assemblyai":
		return requireKey("ASSEMBLYAI_API_KEY", func(key string) stt.Recognizer {
			return sttProvider.NewAssemblyAIRecognizer(key)
		})
	case "whisper", "":
		return stt.NewWhisperRecognizer(cfg.STT.ServerURL, cfg.STT.ModelPath, cfg.STT.ModelURL, logger)
	default:
		return nil, fmt.Errorf("unknown STT_PROVIDER %q", os.Getenv("STT_PROVIDER"))
	}
}

func requireKey(env string, build func(key string) stt.Recognizer) (stt.Recognizer, error) {
	key := os.Getenv(env)
	if key == "" {
		return nil, fmt.Errorf("%s must be set", env)
	}
	return build(key), nil
}

func buildLLMProvider(profile config.Profile) (llm.Provider, error) {
	switch os.Getenv("LLM_PROVIDER") {
	case "groq":
		return llmProvider.NewGroqProvider(profile.APIKey, profile.ModelID), nil
	case "anthropic":
		return llmProvider.NewAnthropicProvider(profile.APIKey, profile.ModelID), nil
	case "google":
		return llmProvider.NewGoogleProvider(profile.APIKey, profile.ModelID), nil
	case "openai", "":
		return llm.NewOpenAIProvider(profile.APIKey, profile.ModelID, profile.LLMEndpoint)
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", os.Getenv("LLM_PROVIDER"))
	}
}

// buildTools assembles the tool registry. When the profile lists tool
// schemas, only the named tools are enabled; an empty list enables all four.
func buildTools(cfg *config.Config, profile config.Profile, logger logging.Logger, hangup func()) []llm.ToolFunc {
	transfer := func(address string) bool {
		logger.Info("transfer requested", "address", address)
		return true
	}

	all := map[string]llm.ToolFunc{
		"send_notification":     tools.NewSendNotification(logger, nil),
		"transfer_conversation": tools.NewTransferConversation(logger, cfg.SIP.Extensions, transfer),
		"end_conversation":      tools.NewEndConversation(logger, hangup),
		"schedule_followup":     tools.NewScheduleFollowup(logger),
	}

	if len(profile.Tools) == 0 {
		return []llm.ToolFunc{
			all["send_notification"],
			all["transfer_conversation"],
			all["end_conversation"],
			all["schedule_followup"],
		}
	}

	var enabled []llm.ToolFunc
	for _, schema := range profile.Tools {
		t, ok := all[schema.Name]
		if !ok {
			logger.Warn("profile names unknown tool", "tool", schema.Name)
			continue
		}
		enabled = append(enabled, t)
	}
	return enabled
}

func llmExtensions(exts []config.Extension) []llm.Extension {
	out := make([]llm.Extension, 0, len(exts))
	for _, e := range exts {
		out = append(out, llm.Extension{Name: e.Name, Number: e.Number, Description: e.Description})
	}
	return out
}

// welcomeAudio loads the pre-rendered welcome WAV, synthesizing and writing
// it once if absent, and returns it as silence-prefixed 160-byte mu-law
// frames ready for the sender.
func welcomeAudio(ctx context.Context, profile config.Profile, synth tts.Provider, logger logging.Logger) ([][]byte, error) {
	if profile.WelcomeText == "" || profile.WelcomeAudioPath == "" {
		return nil, nil
	}

	wav, err := os.ReadFile(profile.WelcomeAudioPath)
	if os.IsNotExist(err) {
		wav, err = renderWelcome(ctx, profile, synth, logger)
	}
	if err != nil {
		return nil, err
	}

	pcm, rate, err := audio.WavData(wav)
	if err != nil {
		return nil, err
	}
	if rate != sampleRate {
		return nil, fmt.Errorf("welcome audio has sample rate %d, expected %d", rate, sampleRate)
	}

	frames := [][]byte{}
	for i := 0; i < welcomeSilence; i++ {
		frames = append(frames, audio.SilenceFrameMuLaw(audio.FrameBytesMuLaw))
	}
	frames = append(frames, audio.SplitFrames(audio.EncodeMuLaw(pcm), audio.FrameBytesMuLaw)...)
	return frames, nil
}

func renderWelcome(ctx context.Context, profile config.Profile, synth tts.Provider, logger logging.Logger) ([]byte, error) {
	logger.Info("welcome audio missing, synthesizing once", "path", profile.WelcomeAudioPath)

	streamer := tts.New(synth, logger)
	var mulaw []byte
	err := streamer.Stream(ctx, "welcome", profile.WelcomeText, func(chunk []byte) error {
		mulaw = append(mulaw, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	wav := audio.NewWavBuffer(audio.DecodeMuLaw(mulaw), sampleRate)
	if err := os.WriteFile(profile.WelcomeAudioPath, wav, 0o644); err != nil {
		return nil, err
	}
	return wav, nil
}
