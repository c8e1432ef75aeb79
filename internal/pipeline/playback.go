package pipeline

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Jkjake561/RTAKRecorder/internal/audio"
	"github.com/Jkjake561/RTAKRecorder/internal/codec2"
	"github.com/Jkjake561/RTAKRecorder/internal/container"
	"github.com/Jkjake561/RTAKRecorder/internal/device"
	"github.com/Jkjake561/RTAKRecorder/internal/metrics"
)

// DefaultBlockBytes is the raw PCM block size written to the render device
// per call (100ms at 8kHz).
const DefaultBlockBytes = 1600

// Kind identifies an artifact format.
type Kind string

const (
	KindPCM       Kind = "pcm"
	KindContainer Kind = "c2"
)

// PlaybackResult describes a finished playback or export pass. Frames counts
// decoded frames for containers and blocks for raw PCM.
type PlaybackResult struct {
	Path     string        `json:"path"`
	Kind     Kind          `json:"kind"`
	Mode     string        `json:"mode,omitempty"`
	Frames   int           `json:"frames"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
	Elapsed  time.Duration `json:"elapsed"`
}

// PlayerConfig configures a Player
type PlayerConfig struct {
	Format     device.Format
	BlockBytes int
}

// Player streams artifacts to a render device.
type Player struct {
	opener  device.RenderOpener
	lib     codec2.Library
	config  PlayerConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	active atomic.Int32
}

// NewPlayer creates a player. A nil lib uses the native codec.
func NewPlayer(opener device.RenderOpener, lib codec2.Library, cfg PlayerConfig, logger *slog.Logger, m *metrics.Metrics) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BlockBytes <= 0 {
		cfg.BlockBytes = DefaultBlockBytes
	}
	// keep blocks sample aligned
	cfg.BlockBytes -= cfg.BlockBytes % audio.BytesPerSample
	if cfg.BlockBytes == 0 {
		cfg.BlockBytes = DefaultBlockBytes
	}
	return &Player{
		opener:  opener,
		lib:     lib,
		config:  cfg,
		logger:  logger,
		metrics: m,
	}
}

// Active returns the number of playback passes in flight.
func (p *Player) Active() int {
	return int(p.active.Load())
}

// DetectKind reports whether path holds a container or raw PCM. A .pcm name
// is trusted as raw PCM and a .c2 name as a container. Any other file is a
// container if it starts with the container magic and raw PCM otherwise.
func DetectKind(path string) (Kind, error) {
	if _, err := checkSource(path); err != nil {
		return "", err
	}
	switch ext := filepath.Ext(path); {
	case strings.EqualFold(ext, ".pcm"):
		return KindPCM, nil
	case strings.EqualFold(ext, container.Extension):
		return KindContainer, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	magic := make([]byte, len(container.Magic))
	_, err = io.ReadFull(f, magic)
	if err == nil && bytes.Equal(magic, container.Magic[:]) {
		return KindContainer, nil
	}
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return KindPCM, nil
}

// Play plays path on a new goroutine, choosing the variant with DetectKind,
// and reports the outcome to done, which may be nil.
func (p *Player) Play(path string, done func(*PlaybackResult, error)) {
	p.async(path, "", done)
}

// PlayPCM plays a raw PCM artifact on a new goroutine.
func (p *Player) PlayPCM(path string, done func(*PlaybackResult, error)) {
	p.async(path, KindPCM, done)
}

// PlayContainer decodes and plays a container on a new goroutine.
func (p *Player) PlayContainer(path string, done func(*PlaybackResult, error)) {
	p.async(path, KindContainer, done)
}

func (p *Player) async(path string, kind Kind, done func(*PlaybackResult, error)) {
	p.active.Add(1)
	go func() {
		defer p.active.Add(-1)
		res, err := p.PlayFile(path, kind)
		if done != nil {
			done(res, err)
		}
	}()
}

// PlayFile plays path on the calling goroutine and returns when the last
// block has been accepted by the device. An empty kind detects the format.
func (p *Player) PlayFile(path string, kind Kind) (*PlaybackResult, error) {
	start := time.Now()
	res, err := p.playFile(path, kind)
	elapsed := time.Since(start)
	p.metrics.RecordStage(string(StagePlayback), elapsed.Seconds(), err)

	if res != nil {
		res.Elapsed = elapsed
	}
	if err != nil {
		attrs := []any{slog.String("path", path), slog.String("error", err.Error())}
		if res != nil {
			attrs = append(attrs, slog.Int("frames_rendered", res.Frames))
		}
		p.logger.Error("Playback failed", attrs...)
		return res, stageError(StagePlayback, path, err)
	}

	p.logger.Info("Playback completed",
		slog.String("path", path),
		slog.String("kind", string(res.Kind)),
		slog.Int("frames", res.Frames),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

func (p *Player) playFile(path string, kind Kind) (*PlaybackResult, error) {
	if kind == "" {
		var err error
		if kind, err = DetectKind(path); err != nil {
			return nil, err
		}
	} else if _, err := checkSource(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var res *PlaybackResult
	if kind == KindContainer {
		res, err = p.RenderContainer(r, nil)
	} else {
		res, err = p.RenderPCM(r, nil)
	}
	if res != nil {
		res.Path = path
	}
	return res, err
}

// RenderPCM copies raw PCM from r to out in fixed-size blocks. Each Write
// blocks until the device has accepted the block. If out is nil a render
// device is opened and closed by the call.
func (p *Player) RenderPCM(r io.Reader, out device.Render) (res *PlaybackResult, err error) {
	res = &PlaybackResult{Kind: KindPCM}
	if out == nil {
		if out, err = p.openRender(); err != nil {
			return res, err
		}
		defer closeRender(out, &err)
	}

	block := make([]byte, p.config.BlockBytes)
	for {
		n, rerr := io.ReadFull(r, block)
		// drop a trailing odd byte; it is not a whole sample
		n -= n % audio.BytesPerSample
		if n > 0 {
			if _, err := out.Write(block[:n]); err != nil {
				return res, fmt.Errorf("render pcm block: %w", err)
			}
			res.Bytes += int64(n)
			res.Frames++
			p.metrics.AddRenderedBytes(n)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
				break
			}
			return res, fmt.Errorf("read pcm artifact: %w", rerr)
		}
	}

	res.Duration = audio.PCMDuration(res.Bytes, p.config.Format.SampleRate)
	return res, nil
}

// RenderContainer validates the container header read from r, opens a codec
// session for its mode and writes each decoded frame to out until the end of
// the stream. A truncated final frame aborts with container.ErrTruncatedFrame
// after every complete frame before it has been rendered. If out is nil a
// render device is opened, only once the header is valid.
func (p *Player) RenderContainer(r io.Reader, out device.Render) (res *PlaybackResult, err error) {
	res = &PlaybackResult{Kind: KindContainer}

	h, err := container.ReadHeader(r)
	if err != nil {
		return res, err
	}
	if err := h.Validate(); err != nil {
		return res, err
	}
	res.Mode = h.Mode.String()

	sess, err := codec2.Open(p.lib, h.Mode)
	if err != nil {
		return res, err
	}
	defer sess.Close()

	if out == nil {
		if out, err = p.openRender(); err != nil {
			return res, err
		}
		defer closeRender(out, &err)
	}

	pcm := make([]byte, sess.FrameBytes())
	for {
		bits, err := container.ReadFrame(r, sess.EncodedFrameSize())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("after %d frames: %w", res.Frames, err)
		}

		speech, err := sess.Decode(bits)
		if err != nil {
			return res, fmt.Errorf("decode frame %d: %w", res.Frames, err)
		}
		n := audio.PutSamples(pcm, speech)
		if _, err := out.Write(pcm[:n]); err != nil {
			return res, fmt.Errorf("render frame %d: %w", res.Frames, err)
		}
		res.Frames++
		res.Bytes += int64(n)
		p.metrics.RecordDecodedFrame()
		p.metrics.AddRenderedBytes(n)
	}

	res.Duration = audio.PCMDuration(res.Bytes, codec2.SampleRate)
	return res, nil
}

// ExportWAV writes the audio of src, a container or raw PCM artifact, to a
// 16-bit mono WAV file at dst using the same loops as playback. The WAV file
// is renamed into place only if the whole source was rendered.
func (p *Player) ExportWAV(src, dst string) (*PlaybackResult, error) {
	start := time.Now()
	res, err := p.exportWAV(src, dst)
	elapsed := time.Since(start)
	p.metrics.RecordStage(string(StageExport), elapsed.Seconds(), err)

	if err != nil {
		p.logger.Error("Export failed",
			slog.String("source", src),
			slog.String("dest", dst),
			slog.String("error", err.Error()),
		)
		return res, stageError(StageExport, src, err)
	}
	res.Elapsed = elapsed
	p.logger.Info("Export completed",
		slog.String("source", src),
		slog.String("dest", dst),
		slog.Int("frames", res.Frames),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

func (p *Player) exportWAV(src, dst string) (*PlaybackResult, error) {
	kind, err := DetectKind(src)
	if err != nil {
		return nil, err
	}
	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	r := bufio.NewReader(in)

	rate := p.config.Format.SampleRate
	if kind == KindContainer {
		rate = codec2.SampleRate
	}

	var res *PlaybackResult
	err = writeFileAtomic(dst, func(f *os.File) error {
		sink := audio.NewWAVSink(f, rate)
		var err error
		if kind == KindContainer {
			res, err = p.RenderContainer(r, sink)
		} else {
			res, err = p.RenderPCM(r, sink)
		}
		if err != nil {
			return err
		}
		return sink.Close()
	})
	if res != nil {
		res.Path = src
	}
	return res, err
}

func (p *Player) openRender() (device.Render, error) {
	out, err := p.opener.OpenRender(p.config.Format)
	if err != nil {
		return nil, device.Unavailable(err)
	}
	return out, nil
}

// closeRender closes out and reports its error through err unless an
// earlier error is already set.
func closeRender(out device.Render, err *error) {
	if cerr := out.Close(); cerr != nil && *err == nil {
		*err = fmt.Errorf("close render device: %w", cerr)
	}
}
