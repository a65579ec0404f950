// Package tts converts reply text into a stream of mu-law 8kHz frames:
// sentence splitting, first-sentence-synchronous synthesis for minimum
// time-to-first-chunk, a bounded worker pool for the remaining sentences,
// and in-original-order chunk yielding.
package tts

import (
	"context"
	"regexp"
	"strings"

	"github.com/lokutor-ai/telephony-voiceagent/pkg/audio"
	"github.com/lokutor-ai/telephony-voiceagent/pkg/logging"
)

const sentenceWorkers = 3

// Provider synthesizes one sentence of text into 22050Hz 16-bit PCM,
// streaming chunks as they become available. Abort cancels any in-flight
// synthesis for sessionID so barge-in can stop a reply mid-stream.
type Provider interface {
	StreamSynthesize(ctx context.Context, text string, onChunk func([]byte) error) error
	Abort(sessionID string) error
	Name() string
}

// sentenceBoundary matches '.', '!', or '?' followed by whitespace, with a
// negative look-behind (emulated manually below, Go's regexp/RE2 has no
// look-behind) rejecting boundaries inside single-letter initials ("A.
// Smith") and common abbreviations ("e.g.").
var sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)

var abbreviations = map[string]bool{
	"e.g.": true, "i.e.": true, "etc.": true, "mr.": true, "mrs.": true,
	"ms.": true, "dr.": true, "vs.": true, "jr.": true, "sr.": true,
	"st.": true, "prof.": true,
}

// SplitSentences splits text into sentences on '.', '!', '?' followed by
// whitespace, rejecting boundaries that fall inside a single-letter
// initial or a known abbreviation immediately preceding the break.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	locs := sentenceBoundary.FindAllStringIndex(text, -1)
	var sentences []string
	start := 0
	for _, loc := range locs {
		breakAt := loc[0] + 1 // position just after the punctuation
		word := lastWord(text[:breakAt])
		if isInitial(word) || abbreviations[strings.ToLower(word)] {
			continue
		}
		sentences = append(sentences, strings.TrimSpace(text[start:breakAt]))
		start = loc[1]
	}
	if start < len(text) {
		if rest := strings.TrimSpace(text[start:]); rest != "" {
			sentences = append(sentences, rest)
		}
	}
	return sentences
}

// lastWord returns the final whitespace-delimited token of s, including
// trailing punctuation.
func lastWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// isInitial reports whether word is a single letter followed by a period,
// e.g. "A." in "A. Smith".
func isInitial(word string) bool {
	return len(word) == 2 && word[1] == '.'
}

type sentenceResult struct {
	index  int
	chunks [][]byte
	err    error
}

// Streamer drives sentence-parallel synthesis with in-order delivery.
type Streamer struct {
	provider Provider
	logger   logging.Logger
}

// New creates a Streamer over provider.
func New(provider Provider, logger logging.Logger) *Streamer {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Streamer{provider: provider, logger: logger}
}

// Stream synthesizes text sentence by sentence, yielding mu-law 8kHz chunks
// to onChunk in original sentence order. The first sentence synthesizes
// synchronously, ahead of any parallel work, to minimize time-to-first-
// chunk; sentences 2..N synthesize on a bounded worker pool but are
// buffered and released strictly in order. Empty text yields nothing.
func (s *Streamer) Stream(ctx context.Context, sessionID, text string, onChunk func([]byte) error) error {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	first, err := s.synthesizeSentence(ctx, sentences[0])
	if err != nil {
		s.logger.Warn("tts: first sentence synthesis failed, dropping it", "error", err)
	} else {
		for _, chunk := range first {
			if err := onChunk(chunk); err != nil {
				return err
			}
		}
	}

	if len(sentences) == 1 {
		return nil
	}

	return s.streamRemainder(ctx, sentences[1:], onChunk)
}

// streamRemainder synthesizes sentences[1:] on a bounded worker pool,
// buffering out-of-order completions and releasing them to onChunk strictly
// in original order.
func (s *Streamer) streamRemainder(ctx context.Context, sentences []string, onChunk func([]byte) error) error {
	jobs := make(chan int)
	results := make(chan sentenceResult, len(sentences))

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := sentenceWorkers
	if workers > len(sentences) {
		workers = len(sentences)
	}
	for w := 0; w < workers; w++ {
		go func() {
			for idx := range jobs {
				chunks, err := s.synthesizeSentence(workerCtx, sentences[idx])
				select {
				case results <- sentenceResult{index: idx, chunks: chunks, err: err}:
				case <-workerCtx.Done():
					return
				}
			}
		}()
	}
	go func() {
		defer close(jobs)
		for i := range sentences {
			select {
			case jobs <- i:
			case <-workerCtx.Done():
				return
			}
		}
	}()

	pending := map[int]sentenceResult{}
	next := 0
	for next < len(sentences) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-results:
			pending[res.index] = res
			for {
				r, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				if r.err != nil {
					s.logger.Warn("tts: sentence synthesis failed, dropping it", "index", r.index, "error", r.err)
					continue
				}
				for _, chunk := range r.chunks {
					if err := onChunk(chunk); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// synthesizeSentence runs one sentence through the provider, wraps the
// resulting 22050Hz PCM in a WAV envelope, resamples to 8kHz, and mu-law
// encodes it.
func (s *Streamer) synthesizeSentence(ctx context.Context, sentence string) ([][]byte, error) {
	sentence = strings.TrimSpace(sentence)
	if sentence == "" {
		return nil, nil
	}

	var pcm []byte
	err := s.provider.StreamSynthesize(ctx, sentence, func(chunk []byte) error {
		pcm = append(pcm, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, nil
	}

	// A 22050Hz WAV envelope is built here but not passed on; the
	// resampler and encoder below operate on the raw PCM directly.
	_ = audio.NewWavBuffer(pcm, 22050)

	eightK := resample22050to8000(pcm)
	return [][]byte{audio.EncodeMuLaw(eightK)}, nil
}

// resample22050to8000 downsamples 16-bit PCM from 22050Hz to 8000Hz by
// nearest-neighbor decimation.
func resample22050to8000(pcm []byte) []byte {
	const srcRate = 22050
	const dstRate = 8000

	n := len(pcm) / 2
	if n == 0 {
		return nil
	}
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
	}

	outN := n * dstRate / srcRate
	out := make([]byte, 0, outN*2)
	for i := 0; i < outN; i++ {
		srcIdx := i * srcRate / dstRate
		if srcIdx >= n {
			srcIdx = n - 1
		}
		s := samples[srcIdx]
		out = append(out, byte(uint16(s)), byte(uint16(s)>>8))
	}
	return out
}
