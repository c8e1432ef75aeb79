package device

import (
	"errors"
	"testing"
)

func TestFormatValidate(t *testing.T) {
	tests := []struct {
		name        string
		format      Format
		expectError bool
	}{
		{"mono 16-bit 8kHz", MonoPCM16(8000), false},
		{"zero rate", Format{SampleRate: 0, Channels: 1, BitDepth: 16}, true},
		{"stereo", Format{SampleRate: 8000, Channels: 2, BitDepth: 16}, true},
		{"8-bit", Format{SampleRate: 8000, Channels: 1, BitDepth: 8}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.format.Validate()
			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestBytesPerSecond(t *testing.T) {
	if got := MonoPCM16(8000).BytesPerSecond(); got != 16000 {
		t.Errorf("Expected 16000 bytes per second, got %d", got)
	}
}

func TestUnavailable(t *testing.T) {
	if Unavailable(nil) != nil {
		t.Error("Expected nil for nil error")
	}

	err := Unavailable(errors.New("permission denied"))
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable, got %v", err)
	}
	if Unavailable(err) != err {
		t.Error("Expected already wrapped error to be returned as is")
	}
}
