// Package miniaudio opens capture devices through miniaudio using
// github.com/gen2brain/malgo.
package miniaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/Jkjake561/RTAKRecorder/internal/audio"
	"github.com/Jkjake561/RTAKRecorder/internal/device"
)

const (
	// defaultQueueBlocks is how many device callbacks may be buffered
	// before new audio is dropped.
	defaultQueueBlocks = 64

	// readTimeout bounds how long Read waits for a callback, so the capture
	// loop can observe a stop request even if the device goes quiet.
	readTimeout = 100 * time.Millisecond
)

// Opener opens the default capture device.
type Opener struct {
	Logger      *slog.Logger
	QueueBlocks int
}

var _ device.CaptureOpener = (*Opener)(nil)

// NewOpener creates an opener logging through logger.
func NewOpener(logger *slog.Logger) *Opener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Opener{Logger: logger, QueueBlocks: defaultQueueBlocks}
}

// OpenCapture initialises a miniaudio context and starts the default capture
// device at f. Any failure is reported as device.ErrDeviceUnavailable.
func (o *Opener) OpenCapture(f device.Format) (device.Capture, error) {
	if err := f.Validate(); err != nil {
		return nil, device.Unavailable(err)
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	queue := o.QueueBlocks
	if queue <= 0 {
		queue = defaultQueueBlocks
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio", slog.String("message", message))
	})
	if err != nil {
		return nil, device.Unavailable(fmt.Errorf("init audio context: %w", err))
	}

	c := &capture{
		ctx:    ctx,
		blocks: make(chan []byte, queue),
		closed: make(chan struct{}),
		logger: logger,
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(f.Channels)
	cfg.SampleRate = uint32(f.SampleRate)
	cfg.Alsa.NoMMap = 1

	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: c.onData,
	})
	if err != nil {
		c.releaseContext()
		return nil, device.Unavailable(fmt.Errorf("init capture device: %w", err))
	}
	c.dev = dev

	if err := dev.Start(); err != nil {
		dev.Uninit()
		c.releaseContext()
		return nil, device.Unavailable(fmt.Errorf("start capture device: %w", err))
	}

	logger.Info("Capture device started",
		slog.Int("sample_rate", f.SampleRate),
		slog.Int("channels", f.Channels),
	)
	return c, nil
}

type capture struct {
	ctx    *malgo.AllocatedContext
	dev    *malgo.Device
	blocks chan []byte
	closed chan struct{}
	logger *slog.Logger

	// pending holds bytes of a block not yet returned by Read
	pending []byte
	dropped atomic.Int64
	once    sync.Once
}

// onData runs on the audio thread and must not block.
func (c *capture) onData(_, input []byte, _ uint32) {
	if len(input) == 0 {
		return
	}
	block := make([]byte, len(input))
	copy(block, input)
	select {
	case c.blocks <- block:
	default:
		c.dropped.Add(int64(len(block)))
	}
}

// Read returns buffered samples, waiting up to readTimeout for the next
// device callback.
func (c *capture) Read(buf []int16) (int, error) {
	if len(c.pending) < audio.BytesPerSample {
		select {
		case block := <-c.blocks:
			c.pending = append(c.pending, block...)
		case <-c.closed:
			return 0, errors.New("capture device closed")
		case <-time.After(readTimeout):
			return 0, nil
		}
	}

	n := len(c.pending) / audio.BytesPerSample
	if n > len(buf) {
		n = len(buf)
	}
	copy(buf, audio.BytesToSamples(c.pending[:n*audio.BytesPerSample]))
	rest := copy(c.pending, c.pending[n*audio.BytesPerSample:])
	c.pending = c.pending[:rest]
	return n, nil
}

func (c *capture) Close() error {
	c.once.Do(func() {
		close(c.closed)
		if c.dev != nil {
			if err := c.dev.Stop(); err != nil {
				c.logger.Warn("Failed to stop capture device", slog.String("error", err.Error()))
			}
			c.dev.Uninit()
		}
		c.releaseContext()
		if dropped := c.dropped.Load(); dropped > 0 {
			c.logger.Warn("Capture queue overflowed", slog.Int64("dropped_bytes", dropped))
		}
	})
	return nil
}

func (c *capture) releaseContext() {
	if err := c.ctx.Uninit(); err != nil {
		c.logger.Warn("Failed to release audio context", slog.String("error", err.Error()))
	}
	c.ctx.Free()
}
