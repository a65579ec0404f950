package controller

import "testing"

func tone16(n int, amplitude int16) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := amplitude
		if i%4 >= 2 {
			s = -amplitude
		}
		out[2*i] = byte(uint16(s))
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}

func TestEchoGuardDetectsRecentlyPlayedAudio(t *testing.T) {
	g := newEchoGuard()
	played := tone16(320, 20000)
	g.recordPlayed(played)

	if !g.likelyEcho(played) {
		t.Fatal("expected identical audio to be flagged as echo")
	}
}

func TestEchoGuardIgnoresSilenceReference(t *testing.T) {
	g := newEchoGuard()
	if g.likelyEcho(tone16(320, 20000)) {
		t.Fatal("expected no echo flagged with an empty reference buffer")
	}
}

func TestEchoGuardResetClearsReference(t *testing.T) {
	g := newEchoGuard()
	played := tone16(320, 20000)
	g.recordPlayed(played)
	g.reset()

	if g.likelyEcho(played) {
		t.Fatal("expected reset to clear the reference buffer")
	}
}
