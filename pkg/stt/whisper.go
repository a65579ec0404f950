package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/lokutor-ai/telephony-voiceagent/pkg/audio"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/logging"
)

const whisperSampleRate = 16000

// WhisperRecognizer runs recognition against a local whisper.cpp server
// (the whisper-server binary, which exposes POST /inference). The model file
// the server was started with is verified at construction: if absent it is
// downloaded from the configured URL first, so a missing model fails fast at
// call-answer time rather than on the first utterance.
type WhisperRecognizer struct {
	serverURL  string
	language   string
	httpClient *http.Client
	logger     logging.Logger
}

// NewWhisperRecognizer ensures the model file at modelPath exists (downloading
// it from modelURL if not) and returns a Recognizer talking to serverURL.
// Returns ErrModelUnavailable if the model can neither be opened nor fetched.
func NewWhisperRecognizer(serverURL, modelPath, modelURL string, logger logging.Logger) (*WhisperRecognizer, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if err := EnsureModel(modelPath, modelURL, logger); err != nil {
		return nil, err
	}
	return &WhisperRecognizer{
		serverURL:  serverURL,
		language:   "en",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

func (w *WhisperRecognizer) Name() string { return "whisper-local" }

// Recognize wraps pcm (16kHz mono 16-bit) in a WAV envelope and POSTs it to
// the server's /inference endpoint as multipart/form-data, returning the
// recognized segments with their time offsets.
func (w *WhisperRecognizer) Recognize(ctx context.Context, pcm []byte) ([]Segment, error) {
	wavData := audio.NewWavBuffer(pcm, whisperSampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(wavData); err != nil {
		return nil, err
	}
	if err := writer.WriteField("language", w.language); err != nil {
		return nil, err
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.serverURL+"/inference", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("whisper server error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Text     string `json:"text"`
		Segments []struct {
			Text  string  `json:"text"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"segments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	if len(result.Segments) == 0 {
		if result.Text == "" {
			return nil, nil
		}
		return []Segment{{Text: result.Text, ProcessedAt: now}}, nil
	}

	segments := make([]Segment, 0, len(result.Segments))
	for _, seg := range result.Segments {
		segments = append(segments, Segment{
			Text:          seg.Text,
			StartOffsetMs: int(seg.Start * 1000),
			EndOffsetMs:   int(seg.End * 1000),
			ProcessedAt:   now,
		})
	}
	return segments, nil
}

// EnsureModel opens the model file at path, downloading it from url first if
// it does not exist. Download progress is logged at roughly every 10%. Any
// network or filesystem failure is wrapped as ErrModelUnavailable.
func EnsureModel(path, url string, logger logging.Logger) error {
	if logger == nil {
		logger = logging.NopLogger{}
	}

	f, err := os.Open(path)
	if err == nil {
		f.Close()
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("%w: open %s: %v", ErrModelUnavailable, path, err)
	}
	if url == "" {
		return fmt.Errorf("%w: %s missing and no download url configured", ErrModelUnavailable, path)
	}

	logger.Info("stt: model missing, downloading", "path", path, "url", url)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: mkdir %s: %v", ErrModelUnavailable, dir, err)
		}
	}

	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("%w: download: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: download returned status %d", ErrModelUnavailable, resp.StatusCode)
	}

	tmp := path + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrModelUnavailable, tmp, err)
	}

	if err := copyWithProgress(out, resp.Body, resp.ContentLength, logger); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: download: %v", ErrModelUnavailable, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: close %s: %v", ErrModelUnavailable, tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: rename %s: %v", ErrModelUnavailable, tmp, err)
	}

	logger.Info("stt: model downloaded", "path", path)
	return nil
}

func copyWithProgress(dst io.Writer, src io.Reader, total int64, logger logging.Logger) error {
	buf := make([]byte, 256*1024)
	var written int64
	lastDecile := -1
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return err
			}
			written += int64(n)
			if total > 0 {
				decile := int(written * 10 / total)
				if decile > lastDecile {
					lastDecile = decile
					logger.Info("stt: model download progress", "percent", decile*10)
				}
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
