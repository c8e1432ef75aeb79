package container

import (
	"errors"
	"fmt"
	"io"

	"github.com/Jkjake561/RTAKRecorder/internal/codec2"
)

// Format constants
const (
	// HeaderSize is the fixed size of the container header.
	// Layout: [Magic:3][Major:1][Minor:1][Mode:1][Flags:1]
	HeaderSize = 7

	VersionMajor = 1
	VersionMinor = 0

	// Extension is the file extension convention for containers.
	Extension = ".c2"
)

// Magic identifies a container file.
var Magic = [3]byte{0xC0, 0xDE, 0xC2}

var (
	ErrTruncatedHeader    = errors.New("container: truncated header")
	ErrBadMagic           = errors.New("container: bad magic")
	ErrTruncatedFrame     = errors.New("container: truncated frame")
	ErrUnsupportedVersion = errors.New("container: unsupported version")
	ErrReservedFlags      = errors.New("container: reserved flags set")
)

// Header represents the 7-byte container header
type Header struct {
	Major uint8
	Minor uint8
	Mode  codec2.Mode
	Flags uint8
}

// NewHeader returns a version 1.0 header for mode with no flags set.
func NewHeader(mode codec2.Mode) Header {
	return Header{Major: VersionMajor, Minor: VersionMinor, Mode: mode}
}

// MarshalBinary encodes the header into its 7-byte wire form.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	copy(buf[0:3], Magic[:])
	buf[3] = h.Major
	buf[4] = h.Minor
	buf[5] = uint8(h.Mode)
	buf[6] = h.Flags
	return buf, nil
}

// ParseHeader parses the 7-byte container header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrTruncatedHeader, HeaderSize, len(data))
	}
	if data[0] != Magic[0] || data[1] != Magic[1] || data[2] != Magic[2] {
		return nil, fmt.Errorf("%w: % x", ErrBadMagic, data[0:3])
	}
	return &Header{
		Major: data[3],
		Minor: data[4],
		Mode:  codec2.Mode(data[5]),
		Flags: data[6],
	}, nil
}

// Validate checks that the header describes a container this package can
// decode: major version 1, a supported mode and no reserved flags.
func (h *Header) Validate() error {
	if h.Major != VersionMajor {
		return fmt.Errorf("%w: %d.%d", ErrUnsupportedVersion, h.Major, h.Minor)
	}
	if !h.Mode.Valid() {
		return fmt.Errorf("%w: mode identifier %d", codec2.ErrUnsupportedMode, uint8(h.Mode))
	}
	if h.Flags != 0 {
		return fmt.Errorf("%w: 0x%02x", ErrReservedFlags, h.Flags)
	}
	return nil
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	return fmt.Sprintf("Header{Version:%d.%d, Mode:%s, Flags:0x%02x}", h.Major, h.Minor, h.Mode, h.Flags)
}

// WriteHeader writes a version 1.0 header for mode with flags zero.
func WriteHeader(w io.Writer, mode codec2.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %d", codec2.ErrUnsupportedMode, uint8(mode))
	}
	buf, _ := NewHeader(mode).MarshalBinary()
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write container header: %w", err)
	}
	return nil
}

// ReadHeader reads and parses exactly HeaderSize bytes from r. It fails with
// ErrTruncatedHeader when fewer bytes are available and ErrBadMagic when the
// magic does not match. The mode and flags are returned as found; call
// Validate before decoding.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrTruncatedHeader, HeaderSize, n)
		}
		return nil, fmt.Errorf("read container header: %w", err)
	}
	return ParseHeader(buf)
}

// AppendFrame writes one encoded frame with no separator. The frame must be
// exactly encodedFrameSize bytes.
func AppendFrame(w io.Writer, frame []byte, encodedFrameSize int) error {
	if len(frame) != encodedFrameSize {
		return fmt.Errorf("%w: frame is %d bytes, want %d", codec2.ErrInvalidFrameSize, len(frame), encodedFrameSize)
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write encoded frame: %w", err)
	}
	return nil
}

// ReadFrame reads the next encoded frame. It returns io.EOF when no bytes
// remain and ErrTruncatedFrame when a strictly positive but incomplete
// remainder is found; a partial frame is never returned.
func ReadFrame(r io.Reader, encodedFrameSize int) ([]byte, error) {
	if encodedFrameSize <= 0 {
		return nil, fmt.Errorf("%w: encoded frame size %d", codec2.ErrInvalidFrameSize, encodedFrameSize)
	}
	frame := make([]byte, encodedFrameSize)
	n, err := io.ReadFull(r, frame)
	switch {
	case err == nil:
		return frame, nil
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("%w: %d of %d bytes", ErrTruncatedFrame, n, encodedFrameSize)
	default:
		return nil, fmt.Errorf("read encoded frame: %w", err)
	}
}
