package codec2

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedMode   = errors.New("codec2: unsupported mode")
	ErrNativeInitFailure = errors.New("codec2: native state allocation failed")
	ErrInvalidFrameSize  = errors.New("codec2: invalid frame size")
	ErrSessionClosed     = errors.New("codec2: session closed")
)

// Engine is one allocated native codec state. Implementations are not safe for
// concurrent use; Session serializes access by contract.
type Engine interface {
	// SamplesPerFrame returns the number of samples consumed by Encode.
	SamplesPerFrame() int
	// BytesPerFrame returns the number of bytes produced by Encode.
	BytesPerFrame() int
	// Encode compresses exactly SamplesPerFrame samples into bits.
	Encode(bits []byte, speech []int16)
	// Decode expands exactly BytesPerFrame bytes into speech.
	Decode(speech []int16, bits []byte)
	// Destroy frees the native state. It is called exactly once.
	Destroy()
}

// Library allocates engines for a mode.
type Library interface {
	Create(mode Mode) (Engine, error)
}

// Session is a single open codec state bound to one mode. A Session must have
// one owner: it is not safe for concurrent use and must not be shared between
// an encode pass and a decode pass.
type Session struct {
	engine Engine
	mode   Mode

	pcmFrameSize     int
	encodedFrameSize int

	closed bool
}

// Open allocates a session for mode using lib. If lib is nil the native
// library is used.
func Open(lib Library, mode Mode) (*Session, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedMode, uint8(mode))
	}
	if lib == nil {
		lib = Native
	}

	engine, err := lib.Create(mode)
	if err != nil {
		if errors.Is(err, ErrUnsupportedMode) || errors.Is(err, ErrNativeInitFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrNativeInitFailure, err)
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: library returned no state for mode %s", ErrNativeInitFailure, mode)
	}

	// Geometry is queried once; it cannot change for the lifetime of the state.
	s := &Session{
		engine:           engine,
		mode:             mode,
		pcmFrameSize:     engine.SamplesPerFrame(),
		encodedFrameSize: engine.BytesPerFrame(),
	}
	if s.pcmFrameSize <= 0 || s.encodedFrameSize <= 0 {
		engine.Destroy()
		return nil, fmt.Errorf("%w: invalid geometry %d samples / %d bytes for mode %s",
			ErrNativeInitFailure, s.pcmFrameSize, s.encodedFrameSize, mode)
	}
	return s, nil
}

// Mode returns the mode the session was opened with.
func (s *Session) Mode() Mode {
	return s.mode
}

// PCMFrameSize returns the number of samples per frame.
func (s *Session) PCMFrameSize() int {
	return s.pcmFrameSize
}

// EncodedFrameSize returns the number of bytes per encoded frame.
func (s *Session) EncodedFrameSize() int {
	return s.encodedFrameSize
}

// FrameBytes returns the size of one PCM frame in bytes.
func (s *Session) FrameBytes() int {
	return s.pcmFrameSize * 2
}

// Encode compresses one frame of exactly PCMFrameSize samples and returns
// exactly EncodedFrameSize bytes.
func (s *Session) Encode(frame []int16) ([]byte, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if len(frame) != s.pcmFrameSize {
		return nil, fmt.Errorf("%w: encode got %d samples, want %d", ErrInvalidFrameSize, len(frame), s.pcmFrameSize)
	}

	bits := make([]byte, s.encodedFrameSize)
	s.engine.Encode(bits, frame)
	return bits, nil
}

// Decode expands one encoded frame of exactly EncodedFrameSize bytes and
// returns exactly PCMFrameSize samples.
func (s *Session) Decode(bits []byte) ([]int16, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if len(bits) != s.encodedFrameSize {
		return nil, fmt.Errorf("%w: decode got %d bytes, want %d", ErrInvalidFrameSize, len(bits), s.encodedFrameSize)
	}

	speech := make([]int16, s.pcmFrameSize)
	s.engine.Decode(speech, bits)
	return speech, nil
}

// Close releases the native state. A second Close returns ErrSessionClosed
// and does not touch the native state again.
func (s *Session) Close() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	s.engine.Destroy()
	s.engine = nil
	return nil
}
