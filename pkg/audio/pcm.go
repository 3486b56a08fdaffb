// Package audio provides the PCM primitives shared by the Selene pipeline:
// a block-aligned streaming resampler, a byte FIFO for paced egress, WAV
// framing helpers, and the millisecond/byte conversion math used by every
// component that reasons about wall-clock audio duration.
//
// All PCM in this package is 16-bit signed little-endian.
package audio

import "encoding/binary"

// BytesPerSample is the size of one PCM16 sample.
const BytesPerSample = 2

// DefaultSampleRate is the pipeline's internal processing rate in Hz.
// Detection, recognition and synthesis all speak 16 kHz mono.
const DefaultSampleRate = 16000

// MSToBytes returns the number of PCM16 bytes covering ms milliseconds of
// audio at the given sample rate and channel count.
func MSToBytes(ms, sampleRate, channels int) int {
	return ms * sampleRate / 1000 * BytesPerSample * channels
}

// BytesToMS returns the duration in milliseconds of n PCM16 bytes at the
// given sample rate and channel count.
func BytesToMS(n, sampleRate, channels int) int {
	return n * 1000 / (sampleRate * BytesPerSample * channels)
}

// SamplesToBytes converts int16 samples to little-endian PCM bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*BytesPerSample:], uint16(s))
	}
	return buf
}

// BytesToSamples converts little-endian PCM bytes to int16 samples.
// A trailing odd byte is ignored.
func BytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*BytesPerSample:]))
	}
	return samples
}

// DownmixMean collapses interleaved multi-channel PCM16 to mono by averaging
// all channels per frame. Uses int32 arithmetic to prevent overflow and
// clamps to the int16 range. channels must be >= 1; mono input is returned
// unchanged.
func DownmixMean(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frameBytes := channels * BytesPerSample
	frames := len(pcm) / frameBytes
	out := make([]byte, frames*BytesPerSample)
	for i := range frames {
		var sum int32
		for c := range channels {
			off := i*frameBytes + c*BytesPerSample
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[off:])))
		}
		avg := sum / int32(channels)
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(avg))
	}
	return out
}

// UpmixDuplicate expands mono PCM16 to the given channel count by duplicating
// each sample across all channels.
func UpmixDuplicate(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	samples := len(pcm) / BytesPerSample
	out := make([]byte, samples*channels*BytesPerSample)
	for i := range samples {
		lo, hi := pcm[i*BytesPerSample], pcm[i*BytesPerSample+1]
		for c := range channels {
			j := (i*channels + c) * BytesPerSample
			out[j] = lo
			out[j+1] = hi
		}
	}
	return out
}
