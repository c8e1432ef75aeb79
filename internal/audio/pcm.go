package audio

import (
	"encoding/binary"
	"time"
)

// BytesPerSample is the size of one PCM-16 sample on disk.
const BytesPerSample = 2

// BytesToSamples converts little-endian PCM-16 bytes to samples. A trailing
// odd byte is ignored.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// SamplesToBytes converts samples to little-endian PCM-16 bytes.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	PutSamples(out, samples)
	return out
}

// PutSamples writes samples into dst as little-endian PCM-16 and returns the
// number of bytes written. dst must hold at least 2*len(samples) bytes.
func PutSamples(dst []byte, samples []int16) int {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(s))
	}
	return len(samples) * BytesPerSample
}

// PCMDuration returns the playback time of n bytes of mono PCM-16 at sampleRate.
func PCMDuration(n int64, sampleRate int) time.Duration {
	if sampleRate <= 0 || n <= 0 {
		return 0
	}
	samples := n / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
