// Package mock provides an in-process implementation of [codec2.Library] for
// tests. Its engines use the real Codec2 frame geometry and a deterministic,
// lossy quantiser: each encoded byte holds the high byte of the mean of one
// slice of the frame, and decoding spreads that value back over the slice.
// Silence therefore round-trips to silence exactly.
//
// The library counts allocations and releases so tests can assert that every
// session is closed on every exit path.
package mock

import (
	"sync"

	"github.com/Jkjake561/RTAKRecorder/internal/codec2"
)

// Library is a mock [codec2.Library]. The zero value is ready to use.
type Library struct {
	mu sync.Mutex

	// CreateErr, when set, is returned by every Create call.
	CreateErr error

	created   int
	destroyed int
	encoded   int
	decoded   int
}

var _ codec2.Library = (*Library)(nil)

// Create implements [codec2.Library].
func (l *Library) Create(mode codec2.Mode) (codec2.Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.CreateErr != nil {
		return nil, l.CreateErr
	}
	geo, err := mode.Geometry()
	if err != nil {
		return nil, err
	}
	l.created++
	return &engine{lib: l, geo: geo}, nil
}

// Created returns how many engines have been allocated.
func (l *Library) Created() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.created
}

// Destroyed returns how many engines have been released.
func (l *Library) Destroyed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.destroyed
}

// Live returns the number of engines allocated but not yet released.
func (l *Library) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.created - l.destroyed
}

// Encoded returns the total number of frames encoded by all engines.
func (l *Library) Encoded() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.encoded
}

// Decoded returns the total number of frames decoded by all engines.
func (l *Library) Decoded() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.decoded
}

type engine struct {
	lib *Library
	geo codec2.Geometry
}

func (e *engine) SamplesPerFrame() int { return e.geo.SamplesPerFrame }
func (e *engine) BytesPerFrame() int   { return e.geo.BytesPerFrame }

func (e *engine) Encode(bits []byte, speech []int16) {
	for i := range bits {
		lo, hi := e.span(i)
		var sum int64
		for _, s := range speech[lo:hi] {
			sum += int64(s)
		}
		mean := int16(0)
		if hi > lo {
			mean = int16(sum / int64(hi-lo))
		}
		bits[i] = byte(mean >> 8)
	}

	e.lib.mu.Lock()
	e.lib.encoded++
	e.lib.mu.Unlock()
}

func (e *engine) Decode(speech []int16, bits []byte) {
	for i, b := range bits {
		lo, hi := e.span(i)
		v := int16(int8(b)) << 8
		for j := lo; j < hi; j++ {
			speech[j] = v
		}
	}

	e.lib.mu.Lock()
	e.lib.decoded++
	e.lib.mu.Unlock()
}

func (e *engine) Destroy() {
	e.lib.mu.Lock()
	e.lib.destroyed++
	e.lib.mu.Unlock()
}

// span returns the sample range represented by encoded byte i.
func (e *engine) span(i int) (int, int) {
	n := e.geo.SamplesPerFrame
	step := (n + e.geo.BytesPerFrame - 1) / e.geo.BytesPerFrame
	lo := i * step
	hi := lo + step
	if lo > n {
		lo = n
	}
	if hi > n {
		hi = n
	}
	return lo, hi
}
