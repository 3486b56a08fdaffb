package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// wavHeaderSize is the size of the canonical 16-bit PCM RIFF header this
// package writes and expects to strip.
const wavHeaderSize = 44

// PCMToWAV wraps raw mono PCM16 bytes in a RIFF/WAVE header. The remote ASR,
// TTS, and diarization services all take WAV uploads; the wire stays PCM16
// little-endian either way.
func PCMToWAV(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, wavHeaderSize+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // audio format: linear PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[wavHeaderSize:], pcm)
	return buf
}

// WAVToPCM strips the RIFF header written by [PCMToWAV] and returns the raw
// PCM payload. Returns an error if the input is too short or is not a RIFF
// container.
func WAVToPCM(wav []byte) ([]byte, error) {
	if len(wav) < wavHeaderSize {
		return nil, fmt.Errorf("audio: wav data too short: %d bytes", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, errors.New("audio: not a RIFF/WAVE container")
	}
	return wav[wavHeaderSize:], nil
}

// PCMToBase64WAV returns the base64 encoding of pcm wrapped as WAV. This is
// the representation the speech language model expects for input_audio
// content parts.
func PCMToBase64WAV(pcm []byte, sampleRate int) string {
	return base64.StdEncoding.EncodeToString(PCMToWAV(pcm, sampleRate))
}
