package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Jkjake561/RTAKRecorder/internal/audio"
	"github.com/Jkjake561/RTAKRecorder/internal/codec2"
	"github.com/Jkjake561/RTAKRecorder/internal/container"
	"github.com/Jkjake561/RTAKRecorder/internal/metrics"
)

// EncodeResult describes a finished encode pass.
type EncodeResult struct {
	Source         string        `json:"source,omitempty"`
	Dest           string        `json:"dest,omitempty"`
	Mode           codec2.Mode   `json:"mode"`
	BytesRead      int64         `json:"bytes_read"`
	Frames         int           `json:"frames"`
	PaddingSamples int           `json:"padding_samples"`
	ContainerBytes int64         `json:"container_bytes"`
	Duration       time.Duration `json:"duration"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Encoder turns PCM artifacts into containers. It holds no per-pass state;
// each pass opens and closes its own codec session, so one Encoder may run
// several passes concurrently.
type Encoder struct {
	lib       codec2.Library
	logger    *slog.Logger
	metrics   *metrics.Metrics
	readChunk int
}

// NewEncoder creates an encoder using lib for codec sessions. A nil lib uses
// the native codec.
func NewEncoder(lib codec2.Library, logger *slog.Logger, m *metrics.Metrics) *Encoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Encoder{
		lib:       lib,
		logger:    logger,
		metrics:   m,
		readChunk: audio.DefaultReadChunk,
	}
}

// SetReadChunk sets how many bytes the frame aligner reads from the source
// per call.
func (e *Encoder) SetReadChunk(n int) {
	if n > 0 {
		e.readChunk = n
	}
}

// Encode reads PCM from r and writes a complete container for mode to w: the
// header, then one encoded frame per aligned input frame. The final frame is
// zero-padded. w receives partial output if Encode fails.
func (e *Encoder) Encode(r io.Reader, w io.Writer, mode codec2.Mode) (*EncodeResult, error) {
	sess, err := codec2.Open(e.lib, mode)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	aligner, err := audio.NewAlignerSize(r, sess.PCMFrameSize(), e.readChunk)
	if err != nil {
		return nil, err
	}
	if err := container.WriteHeader(w, mode); err != nil {
		return nil, err
	}

	res := &EncodeResult{Mode: mode, ContainerBytes: container.HeaderSize}
	for {
		frame, err := aligner.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		bits, err := sess.Encode(frame)
		if err != nil {
			return nil, fmt.Errorf("encode frame %d: %w", res.Frames, err)
		}
		if err := container.AppendFrame(w, bits, sess.EncodedFrameSize()); err != nil {
			return nil, err
		}
		res.Frames++
		res.ContainerBytes += int64(len(bits))
	}

	stats := aligner.GetStats()
	res.BytesRead = stats.BytesRead
	res.PaddingSamples = stats.PaddingSamples
	res.Duration = time.Duration(res.Frames*sess.PCMFrameSize()) * time.Second / codec2.SampleRate
	return res, nil
}

// EncodeFile encodes the PCM artifact at src into a container at dst. The
// container is written to a temporary file beside dst and renamed into place
// only after every frame was written and synced; on failure dst is left as
// it was. A missing source fails with ErrSourceNotFound. A container source,
// or a dst that names src itself, fails with ErrNotPCM. An empty source
// produces a header-only container.
func (e *Encoder) EncodeFile(src, dst string, mode codec2.Mode) (*EncodeResult, error) {
	start := time.Now()
	res, err := e.encodeFile(src, dst, mode)
	elapsed := time.Since(start)
	e.metrics.RecordStage(string(StageEncode), elapsed.Seconds(), err)

	if err != nil {
		e.logger.Error("Encode failed",
			slog.String("source", src),
			slog.String("mode", mode.String()),
			slog.String("error", err.Error()),
		)
		return nil, stageError(StageEncode, src, err)
	}

	res.Source = src
	res.Dest = dst
	res.Elapsed = elapsed
	e.metrics.RecordEncodedFrames(res.Frames, res.PaddingSamples)
	e.logger.Info("Encode completed",
		slog.String("source", src),
		slog.String("dest", dst),
		slog.String("mode", mode.String()),
		slog.Int("frames", res.Frames),
		slog.Int("padding_samples", res.PaddingSamples),
		slog.Int64("container_bytes", res.ContainerBytes),
		slog.Duration("elapsed", elapsed),
	)
	return res, nil
}

func (e *Encoder) encodeFile(src, dst string, mode codec2.Mode) (*EncodeResult, error) {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil, fmt.Errorf("%w: destination is the source file", ErrNotPCM)
	}
	kind, err := DetectKind(src)
	if err != nil {
		return nil, err
	}
	if kind == KindContainer {
		return nil, fmt.Errorf("%w: %s is already a container", ErrNotPCM, src)
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %d", codec2.ErrUnsupportedMode, uint8(mode))
	}

	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open pcm artifact: %w", err)
	}
	defer in.Close()

	var res *EncodeResult
	err = writeFileAtomic(dst, func(f *os.File) error {
		bw := bufio.NewWriter(f)
		var err error
		if res, err = e.Encode(in, bw, mode); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("write container: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// EncodeAsync runs EncodeFile on a new goroutine and reports the outcome to
// done, which may be nil.
func (e *Encoder) EncodeAsync(src, dst string, mode codec2.Mode, done func(*EncodeResult, error)) {
	go func() {
		res, err := e.EncodeFile(src, dst, mode)
		if done != nil {
			done(res, err)
		}
	}()
}
