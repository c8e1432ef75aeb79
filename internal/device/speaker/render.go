// Package speaker renders PCM through the system output using
// github.com/hajimehoshi/oto/v2.
package speaker

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hajimehoshi/oto/v2"

	"github.com/Jkjake561/RTAKRecorder/internal/device"
)

// oto allows one context per process, so every render stream shares it.
var (
	ctxMu     sync.Mutex
	ctx       *oto.Context
	ctxFormat device.Format
)

func sharedContext(f device.Format) (*oto.Context, error) {
	ctxMu.Lock()
	defer ctxMu.Unlock()

	if ctx != nil {
		if ctxFormat != f {
			return nil, fmt.Errorf("output already open at %d Hz, %d channels; requested %d Hz, %d channels",
				ctxFormat.SampleRate, ctxFormat.Channels, f.SampleRate, f.Channels)
		}
		return ctx, nil
	}

	c, ready, err := oto.NewContext(f.SampleRate, f.Channels, f.BitDepth/8)
	if err != nil {
		return nil, err
	}
	<-ready
	ctx = c
	ctxFormat = f
	return ctx, nil
}

// Opener opens render streams on the default output device.
type Opener struct {
	Logger *slog.Logger
}

var _ device.RenderOpener = (*Opener)(nil)

// NewOpener creates an opener logging through logger.
func NewOpener(logger *slog.Logger) *Opener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Opener{Logger: logger}
}

// OpenRender starts a player fed from a pipe. Writes block until the player
// has pulled the bytes, which gives the caller device backpressure.
func (o *Opener) OpenRender(f device.Format) (device.Render, error) {
	if err := f.Validate(); err != nil {
		return nil, device.Unavailable(err)
	}
	c, err := sharedContext(f)
	if err != nil {
		return nil, device.Unavailable(fmt.Errorf("open audio output: %w", err))
	}

	pr, pw := io.Pipe()
	p := c.NewPlayer(pr)
	if p == nil {
		pw.Close()
		return nil, device.Unavailable(fmt.Errorf("create player"))
	}
	p.Play()

	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &render{player: p, pw: pw, pr: pr, logger: logger}, nil
}

type render struct {
	player oto.Player
	pw     *io.PipeWriter
	pr     *io.PipeReader
	logger *slog.Logger
	once   sync.Once
}

func (r *render) Write(p []byte) (int, error) {
	n, err := r.pw.Write(p)
	if err != nil {
		return n, fmt.Errorf("write to output: %w", err)
	}
	return n, nil
}

// Close ends the stream and waits for buffered audio to finish playing.
func (r *render) Close() error {
	var err error
	r.once.Do(func() {
		r.pw.Close()
		for r.player.IsPlaying() && r.player.UnplayedBufferSize() > 0 {
			time.Sleep(10 * time.Millisecond)
		}
		err = r.player.Close()
		r.pr.Close()
		if err != nil {
			r.logger.Warn("Failed to close player", slog.String("error", err.Error()))
		}
	})
	return err
}
