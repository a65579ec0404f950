//go:build !silero

package main

import (
	"github.com/lokutor-ai/telephony-voiceagent/pkg/vad"
)

// newVADEngine returns the dependency-free RMS engine. Build with the
// "silero" tag to use the ONNX-backed Silero engine instead.
func newVADEngine() (vad.Engine, error) {
	return vad.NewRMSEngine(0.02), nil
}
