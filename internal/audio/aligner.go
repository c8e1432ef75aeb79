package audio

import (
	"errors"
	"fmt"
	"io"
)

// DefaultReadChunk is the number of bytes the aligner requests from its
// source per read.
const DefaultReadChunk = 4096

// AlignerStats represents aligner statistics
type AlignerStats struct {
	BytesRead      int64 `json:"bytes_read"`
	FramesEmitted  int   `json:"frames_emitted"`
	PaddingSamples int   `json:"padding_samples"`
}

// Aligner turns a PCM byte stream of arbitrary length into frames of exactly
// frameSamples samples. The final partial frame is zero-padded, never
// truncated, so the number of frames for L input bytes is ceil(L / frameBytes).
//
// An Aligner consumes its source once and is not safe for concurrent use.
type Aligner struct {
	src          io.Reader
	frameSamples int
	frameBytes   int

	// carry holds bytes read but not yet emitted as a frame
	carry []byte
	chunk []byte
	eof   bool
	done  bool

	stats AlignerStats
}

// NewAligner creates an aligner emitting frames of frameSamples samples.
func NewAligner(src io.Reader, frameSamples int) (*Aligner, error) {
	return NewAlignerSize(src, frameSamples, DefaultReadChunk)
}

// NewAlignerSize is NewAligner with an explicit read chunk size in bytes.
func NewAlignerSize(src io.Reader, frameSamples, chunkBytes int) (*Aligner, error) {
	if src == nil {
		return nil, fmt.Errorf("aligner source cannot be nil")
	}
	if frameSamples <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d samples", frameSamples)
	}
	if chunkBytes <= 0 {
		chunkBytes = DefaultReadChunk
	}
	frameBytes := frameSamples * BytesPerSample
	return &Aligner{
		src:          src,
		frameSamples: frameSamples,
		frameBytes:   frameBytes,
		carry:        make([]byte, 0, frameBytes+chunkBytes),
		chunk:        make([]byte, chunkBytes),
	}, nil
}

// Next returns the next frame. It returns io.EOF once the source is exhausted
// and every buffered byte has been emitted. Read errors from the source are
// returned wrapped and end the sequence.
func (a *Aligner) Next() ([]int16, error) {
	if a.done {
		return nil, io.EOF
	}

	for len(a.carry) < a.frameBytes && !a.eof {
		n, err := a.src.Read(a.chunk)
		if n > 0 {
			a.carry = append(a.carry, a.chunk[:n]...)
			a.stats.BytesRead += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				a.eof = true
				break
			}
			a.done = true
			return nil, fmt.Errorf("read pcm source: %w", err)
		}
	}

	if len(a.carry) >= a.frameBytes {
		frame := BytesToSamples(a.carry[:a.frameBytes])
		remaining := copy(a.carry, a.carry[a.frameBytes:])
		a.carry = a.carry[:remaining]
		a.stats.FramesEmitted++
		return frame, nil
	}

	// End of stream: zero-pad whatever is left into one final frame.
	if len(a.carry) > 0 {
		padded := make([]byte, a.frameBytes)
		copy(padded, a.carry)
		a.stats.PaddingSamples = (a.frameBytes - len(a.carry)) / BytesPerSample
		a.carry = a.carry[:0]
		a.stats.FramesEmitted++
		a.done = true
		return BytesToSamples(padded), nil
	}

	a.done = true
	return nil, io.EOF
}

// FrameSamples returns the number of samples per emitted frame.
func (a *Aligner) FrameSamples() int {
	return a.frameSamples
}

// GetStats returns current aligner statistics
func (a *Aligner) GetStats() AlignerStats {
	return a.stats
}

// FrameCount returns the number of frames an aligner emits for n input bytes.
func FrameCount(n int64, frameSamples int) int64 {
	frameBytes := int64(frameSamples * BytesPerSample)
	if n <= 0 || frameBytes <= 0 {
		return 0
	}
	return (n + frameBytes - 1) / frameBytes
}
