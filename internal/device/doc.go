// Package device defines the capture and render contracts the pipelines use
// to talk to audio hardware.
//
// A capture device is opened at a fixed Format and delivers signed 16-bit
// mono samples through Read. A render device accepts little-endian PCM bytes
// through a blocking Write, so the rate at which a caller can write is the
// rate at which audio is consumed.
//
// Concrete devices live in sub-packages: miniaudio (capture through malgo)
// and speaker (render through oto). The mock sub-package provides in-memory
// devices for tests.
package device
