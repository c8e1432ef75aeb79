// Package mock provides in-memory capture and render devices for tests.
package mock

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/Jkjake561/RTAKRecorder/internal/device"
)

// Capture replays a fixed sample buffer. Once the buffer has been delivered
// it either fails with Err or reports no data until closed, the way a live
// device does between callbacks.
type Capture struct {
	mu sync.Mutex

	samples []int16
	pos     int

	// Err, when set, is returned by Read once every sample was delivered.
	Err error
	// Idle is the pause Read takes when no data is left. Defaults to 1ms.
	Idle time.Duration

	drained   chan struct{}
	signalled bool
	closed    bool
}

// NewCapture returns a capture device that will deliver samples.
func NewCapture(samples []int16) *Capture {
	return &Capture{
		samples: append([]int16(nil), samples...),
		drained: make(chan struct{}),
	}
}

// Read implements [device.Capture].
func (c *Capture) Read(buf []int16) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, errors.New("mock capture: read after close")
	}
	if c.pos < len(c.samples) {
		n := copy(buf, c.samples[c.pos:])
		c.pos += n
		c.mu.Unlock()
		return n, nil
	}
	if !c.signalled {
		c.signalled = true
		close(c.drained)
	}
	err := c.Err
	idle := c.Idle
	c.mu.Unlock()

	if err != nil {
		return 0, err
	}
	if idle <= 0 {
		idle = time.Millisecond
	}
	time.Sleep(idle)
	return 0, nil
}

// Drained is closed on the first Read that finds no samples left, so every
// delivered block has already been returned to the caller.
func (c *Capture) Drained() <-chan struct{} {
	return c.drained
}

// Close implements [device.Capture].
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *Capture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Render records every byte written to it.
type Render struct {
	mu sync.Mutex

	buf    bytes.Buffer
	writes int
	closed bool

	// FailAfter, when positive, makes the write after FailAfter successful
	// writes return Err.
	FailAfter int
	Err       error
}

// Write implements [device.Render].
func (r *Render) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, errors.New("mock render: write after close")
	}
	if r.FailAfter > 0 && r.writes >= r.FailAfter && r.Err != nil {
		return 0, r.Err
	}
	r.writes++
	return r.buf.Write(p)
}

// Close implements [device.Render].
func (r *Render) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Bytes returns a copy of everything written.
func (r *Render) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.buf.Bytes()...)
}

// Writes returns the number of successful writes.
func (r *Render) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// Closed reports whether Close was called.
func (r *Render) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Opener hands out the configured devices. A nil device or a set Err makes
// the matching open call fail with device.ErrDeviceUnavailable.
type Opener struct {
	mu sync.Mutex

	Capture *Capture
	Render  *Render
	Err     error

	captureOpens int
	renderOpens  int
	lastFormat   device.Format
}

var (
	_ device.CaptureOpener = (*Opener)(nil)
	_ device.RenderOpener  = (*Opener)(nil)
)

// OpenCapture implements [device.CaptureOpener].
func (o *Opener) OpenCapture(f device.Format) (device.Capture, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastFormat = f
	if o.Err != nil {
		return nil, device.Unavailable(o.Err)
	}
	if o.Capture == nil {
		return nil, device.ErrDeviceUnavailable
	}
	o.captureOpens++
	return o.Capture, nil
}

// OpenRender implements [device.RenderOpener].
func (o *Opener) OpenRender(f device.Format) (device.Render, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastFormat = f
	if o.Err != nil {
		return nil, device.Unavailable(o.Err)
	}
	if o.Render == nil {
		return nil, device.ErrDeviceUnavailable
	}
	o.renderOpens++
	return o.Render, nil
}

// CaptureOpens returns the number of successful capture opens.
func (o *Opener) CaptureOpens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.captureOpens
}

// RenderOpens returns the number of successful render opens.
func (o *Opener) RenderOpens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.renderOpens
}

// LastFormat returns the format of the most recent open call.
func (o *Opener) LastFormat() device.Format {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastFormat
}
