//go:build silero

package main

import (
	"os"

	"github.com/lokutor-ai/telephony-voiceagent/pkg/vad"
)

const defaultSileroModelPath = "models/silero_vad.onnx"

// newVADEngine loads the Silero VAD model via ONNX Runtime. The shared
// library path comes from ONNXRUNTIME_LIB; the model path from
// SILERO_VAD_MODEL, defaulting to models/silero_vad.onnx.
func newVADEngine() (vad.Engine, error) {
	modelPath := os.Getenv("SILERO_VAD_MODEL")
	if modelPath == "" {
		modelPath = defaultSileroModelPath
	}
	return vad.NewSileroEngine(os.Getenv("ONNXRUNTIME_LIB"), modelPath, 0.3)
}
