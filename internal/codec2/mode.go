package codec2

import (
	"fmt"
	"strings"
	"time"
)

// SampleRate is the only input rate Codec2 accepts, in Hz.
const SampleRate = 8000

// Mode selects a Codec2 bit rate. Its numeric value is the ordinal written to
// byte 5 of a container header, so the order below must never change.
type Mode uint8

const (
	Mode3200 Mode = iota
	Mode2400
	Mode1600
	Mode1400
	Mode1300
	Mode1200
	Mode700C
)

// DefaultMode is used when no mode is configured.
const DefaultMode = Mode2400

// Geometry is the fixed frame layout of a mode.
type Geometry struct {
	// SamplesPerFrame is the number of 16-bit samples in one input frame.
	SamplesPerFrame int
	// BytesPerFrame is the size of one encoded frame.
	BytesPerFrame int
}

// FrameBytes returns the size in bytes of one little-endian PCM frame.
func (g Geometry) FrameBytes() int {
	return g.SamplesPerFrame * 2
}

var modeTable = [...]struct {
	name string
	geo  Geometry
}{
	Mode3200: {"3200", Geometry{SamplesPerFrame: 160, BytesPerFrame: 8}},
	Mode2400: {"2400", Geometry{SamplesPerFrame: 160, BytesPerFrame: 6}},
	Mode1600: {"1600", Geometry{SamplesPerFrame: 320, BytesPerFrame: 8}},
	Mode1400: {"1400", Geometry{SamplesPerFrame: 320, BytesPerFrame: 7}},
	Mode1300: {"1300", Geometry{SamplesPerFrame: 320, BytesPerFrame: 7}},
	Mode1200: {"1200", Geometry{SamplesPerFrame: 320, BytesPerFrame: 6}},
	Mode700C: {"700C", Geometry{SamplesPerFrame: 320, BytesPerFrame: 4}},
}

// Modes returns every supported mode in ordinal order.
func Modes() []Mode {
	modes := make([]Mode, len(modeTable))
	for i := range modeTable {
		modes[i] = Mode(i)
	}
	return modes
}

// Valid reports whether m is a supported mode.
func (m Mode) Valid() bool {
	return int(m) < len(modeTable)
}

// String returns the bit-rate name of the mode, e.g. "2400".
func (m Mode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
	return modeTable[m].name
}

// Geometry returns the nominal frame layout of the mode. The native library
// reports the same values; sessions cache whatever the library returns.
func (m Mode) Geometry() (Geometry, error) {
	if !m.Valid() {
		return Geometry{}, fmt.Errorf("%w: %d", ErrUnsupportedMode, uint8(m))
	}
	return modeTable[m].geo, nil
}

// FrameDuration returns the playback time covered by one frame of the mode.
func (m Mode) FrameDuration() (time.Duration, error) {
	geo, err := m.Geometry()
	if err != nil {
		return 0, err
	}
	return time.Duration(geo.SamplesPerFrame) * time.Second / SampleRate, nil
}

// ParseMode accepts a mode name ("2400", "700C", "MODE_1300") case-insensitively.
func ParseMode(s string) (Mode, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "MODE_")
	for i, entry := range modeTable {
		if entry.name == name {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedMode, s)
}

// MarshalYAML renders the mode by name.
func (m Mode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

// UnmarshalYAML parses a mode name such as "2400" or "700C".
func (m *Mode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalText renders the mode by name in JSON output.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
