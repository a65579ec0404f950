package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// NewWavBuffer wraps raw 16-bit mono little-endian PCM in a minimal RIFF/WAV
// envelope at the given sample rate.
func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))           // fmt chunk size
	binary.Write(buf, binary.LittleEndian, uint16(1))            // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1))            // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))   // sample rate
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// WavData extracts the PCM payload and sample rate from a WAV buffer
// previously produced by NewWavBuffer (mono 16-bit PCM, fmt chunk first).
func WavData(wav []byte) (pcm []byte, sampleRate int, err error) {
	if len(wav) < 44 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("audio: not a RIFF/WAVE buffer")
	}
	if string(wav[12:16]) != "fmt " || string(wav[36:40]) != "data" {
		return nil, 0, fmt.Errorf("audio: unsupported wav chunk layout")
	}
	sampleRate = int(binary.LittleEndian.Uint32(wav[24:28]))
	dataLen := int(binary.LittleEndian.Uint32(wav[40:44]))
	if dataLen > len(wav)-44 {
		dataLen = len(wav) - 44
	}
	return wav[44 : 44+dataLen], sampleRate, nil
}
