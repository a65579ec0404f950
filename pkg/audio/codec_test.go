package audio

import "testing"

func TestMuLawRoundTrip(t *testing.T) {
	pcm := make([]byte, 0, 200)
	for s := int16(-30000); s < 30000; s += 750 {
		pcm = append(pcm, byte(uint16(s)), byte(uint16(s)>>8))
	}

	encoded := EncodeMuLaw(pcm)
	decoded := DecodeMuLaw(encoded)

	if len(decoded) != len(pcm) {
		t.Fatalf("length mismatch: got %d want %d", len(decoded), len(pcm))
	}

	const quantizationBound = 1100
	for i := 0; i < len(pcm); i += 2 {
		orig := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		got := int16(uint16(decoded[i]) | uint16(decoded[i+1])<<8)
		delta := int(orig) - int(got)
		if delta < 0 {
			delta = -delta
		}
		if delta > quantizationBound {
			t.Errorf("sample %d: |delta|=%d exceeds quantization bound", i/2, delta)
		}
	}
}

func TestSilenceFrameMuLaw(t *testing.T) {
	frame := SilenceFrameMuLaw(160)
	if len(frame) != 160 {
		t.Fatalf("expected 160 bytes, got %d", len(frame))
	}
	for _, b := range frame {
		if b != SilenceByteMuLaw {
			t.Fatalf("expected all bytes == 0x7F")
		}
	}
}

func TestResizeFrameTrimsOddByte(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5}
	out, resized := ResizeFrame(pcm, 4)
	if !resized {
		t.Fatalf("expected resize when trimming odd trailing byte and matching target")
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 bytes, got %d", len(out))
	}
}

func TestResizeFramePadsShortFrame(t *testing.T) {
	pcm := []byte{1, 2}
	out, resized := ResizeFrame(pcm, 8)
	if !resized {
		t.Fatalf("expected resize flag when padding")
	}
	if len(out) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(out))
	}
	if out[0] != 1 || out[1] != 2 {
		t.Fatalf("expected original bytes preserved at head")
	}
}

func TestSplitFramesDropsTrailingPartial(t *testing.T) {
	pcm := make([]byte, 170)
	frames := SplitFrames(pcm, 160)
	if len(frames) != 1 {
		t.Fatalf("expected 1 complete frame, got %d", len(frames))
	}
}

func TestValidateSampleRate(t *testing.T) {
	if err := ValidateSampleRate(16000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateSampleRate(8000); err == nil {
		t.Fatalf("expected error for non-16kHz rate")
	}
}
