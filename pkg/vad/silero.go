//go:build silero

package vad

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// sileroWindowSize is the number of float32 samples per inference call.
	// Silero VAD v5 at 16kHz requires exactly 512 samples (32ms), matching
	// sileroWindowBytes above (512 * 2 bytes).
	sileroWindowSize = 512

	// sileroStateSize is the hidden state dimension per layer; Silero VAD
	// v5 uses a combined state tensor of shape [2, 1, 128].
	sileroStateSize = 128

	sileroSampleRate = 16000
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// SileroEngine runs Silero VAD v5 inference via ONNX Runtime. It owns its
// recurrent state tensors exclusively; never share a SileroEngine across
// Segmenters or goroutines.
type SileroEngine struct {
	session *ort.AdvancedSession

	inputTensor *ort.Tensor[float32]
	stateTensor *ort.Tensor[float32]
	srTensor    *ort.Tensor[int64]

	outputTensor *ort.Tensor[float32]
	stateNTensor *ort.Tensor[float32]

	threshold float64
	adaptive  bool
}

// NewSileroEngine creates a SileroEngine by initializing ONNX Runtime from
// the shared library at ortLibPath and loading the model at modelPath.
func NewSileroEngine(ortLibPath, modelPath string, threshold float64) (*SileroEngine, error) {
	ortInitOnce.Do(func() {
		ort.SetSharedLibraryPath(ortLibPath)
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("vad: initialize onnxruntime: %w", ortInitErr)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, sileroWindowSize))
	if err != nil {
		return nil, fmt.Errorf("vad: create input tensor: %w", err)
	}
	stateTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("vad: create state tensor: %w", err)
	}
	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{sileroSampleRate})
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		return nil, fmt.Errorf("vad: create sr tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		return nil, fmt.Errorf("vad: create output tensor: %w", err)
	}
	stateNTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("vad: create stateN tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{inputTensor, stateTensor, srTensor},
		[]ort.Value{outputTensor, stateNTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		stateNTensor.Destroy()
		return nil, fmt.Errorf("vad: create session: %w", err)
	}

	return &SileroEngine{
		session:      session,
		inputTensor:  inputTensor,
		stateTensor:  stateTensor,
		srTensor:     srTensor,
		outputTensor: outputTensor,
		stateNTensor: stateNTensor,
		threshold:    threshold,
		adaptive:     true,
	}, nil
}

func (e *SileroEngine) WindowBytes() int { return sileroWindowBytes }

func (e *SileroEngine) Infer(window []byte) (Result, error) {
	if len(window) != e.WindowBytes() {
		return Result{}, fmt.Errorf("vad: silero window must be %d bytes, got %d", e.WindowBytes(), len(window))
	}
	samples := pcmToFloat32(window)
	copy(e.inputTensor.GetData(), samples)

	if err := e.session.Run(); err != nil {
		return Result{}, fmt.Errorf("vad: silero inference: %w", err)
	}

	prob := float64(e.outputTensor.GetData()[0])
	copy(e.stateTensor.GetData(), e.stateNTensor.GetData())

	return Result{IsSpeech: prob >= e.threshold, Confidence: prob}, nil
}

func (e *SileroEngine) SetThreshold(threshold float64) { e.threshold = threshold }
func (e *SileroEngine) SetAdaptiveMode(adaptive bool)  { e.adaptive = adaptive }

func (e *SileroEngine) Reset() {
	clearFloat32Slice(e.stateTensor.GetData())
}

func (e *SileroEngine) Close() error {
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.stateTensor != nil {
		e.stateTensor.Destroy()
		e.stateTensor = nil
	}
	if e.srTensor != nil {
		e.srTensor.Destroy()
		e.srTensor = nil
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	if e.stateNTensor != nil {
		e.stateNTensor.Destroy()
		e.stateNTensor = nil
	}
	return nil
}

func pcmToFloat32(buf []byte) []float32 {
	n := len(buf) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		u := uint16(buf[2*i]) | uint16(buf[2*i+1])<<8
		out[i] = float32(int16(u)) / 32768.0
	}
	return out
}

func clearFloat32Slice(s []float32) {
	for i := range s {
		s[i] = 0
	}
}
