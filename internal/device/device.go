package device

import (
	"errors"
	"fmt"
)

// ErrDeviceUnavailable is returned when a device cannot be acquired, for
// example because no input exists or access was revoked.
var ErrDeviceUnavailable = errors.New("device: unavailable")

// Format describes the stream a device is opened with.
type Format struct {
	SampleRate int `json:"sample_rate" yaml:"sample_rate"`
	Channels   int `json:"channels" yaml:"channels"`
	BitDepth   int `json:"bit_depth" yaml:"bit_depth"`
}

// MonoPCM16 returns a mono 16-bit format at sampleRate.
func MonoPCM16(sampleRate int) Format {
	return Format{SampleRate: sampleRate, Channels: 1, BitDepth: 16}
}

// Validate checks that the format is one the pipelines can carry.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels != 1 {
		return fmt.Errorf("only mono is supported, got %d channels", f.Channels)
	}
	if f.BitDepth != 16 {
		return fmt.Errorf("only 16-bit PCM is supported, got %d bits", f.BitDepth)
	}
	return nil
}

// BytesPerSecond returns the byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitDepth / 8
}

// Capture is an open capture stream.
type Capture interface {
	// Read fills buf with up to len(buf) samples and returns how many were
	// written. It may return 0 with a nil error when no audio is ready yet.
	Read(buf []int16) (int, error)
	Close() error
}

// Render is an open render stream.
type Render interface {
	// Write blocks until p has been accepted by the device.
	Write(p []byte) (int, error)
	Close() error
}

// CaptureOpener acquires capture devices.
type CaptureOpener interface {
	OpenCapture(f Format) (Capture, error)
}

// RenderOpener acquires render devices.
type RenderOpener interface {
	OpenRender(f Format) (Render, error)
}

// Unavailable wraps err so that it matches ErrDeviceUnavailable.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
