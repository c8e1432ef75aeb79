package pipeline

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Jkjake561/RTAKRecorder/internal/audio"
	"github.com/Jkjake561/RTAKRecorder/internal/device"
	"github.com/Jkjake561/RTAKRecorder/internal/metrics"
)

// DefaultBlockSamples is the number of samples requested from the capture
// device per read (100ms at 8kHz).
const DefaultBlockSamples = 800

// RecorderConfig configures a Recorder
type RecorderConfig struct {
	Format       device.Format
	BlockSamples int
}

// Recording describes a finished capture session.
type Recording struct {
	Path      string        `json:"path"`
	Bytes     int64         `json:"bytes"`
	Duration  time.Duration `json:"duration"`
	StartedAt time.Time     `json:"started_at"`
	StoppedAt time.Time     `json:"stopped_at"`
}

// RecorderStatus is a snapshot of the recorder state.
type RecorderStatus struct {
	Recording bool          `json:"recording"`
	Path      string        `json:"path,omitempty"`
	Bytes     int64         `json:"bytes"`
	Elapsed   time.Duration `json:"elapsed"`
}

// captureRun is the state of one Idle -> Recording -> Idle cycle. The output
// file is owned by the loop goroutine and closed only after the loop exits.
type captureRun struct {
	path    string
	started time.Time
	bytes   atomic.Int64
	stop    atomic.Bool
	done    chan struct{}
	err     error
}

// Recorder drives the capture pipeline. Start and Stop are safe to call from
// any goroutine.
type Recorder struct {
	opener  device.CaptureOpener
	config  RecorderConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu   sync.Mutex
	run  *captureRun
	last *captureRun
}

// NewRecorder creates an idle recorder.
func NewRecorder(opener device.CaptureOpener, cfg RecorderConfig, logger *slog.Logger, m *metrics.Metrics) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BlockSamples <= 0 {
		cfg.BlockSamples = DefaultBlockSamples
	}
	return &Recorder{
		opener:  opener,
		config:  cfg,
		logger:  logger,
		metrics: m,
	}
}

// Start opens the capture device, creates the PCM artifact at path and starts
// the capture loop. It fails with ErrAlreadyRecording if a session is active,
// leaving that session untouched. If the device cannot be acquired the error
// matches device.ErrDeviceUnavailable and the recorder stays idle.
func (r *Recorder) Start(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.run != nil {
		return stageError(StageCapture, path,
			fmt.Errorf("%w: writing %s", ErrAlreadyRecording, r.run.path))
	}
	if err := r.config.Format.Validate(); err != nil {
		return stageError(StageCapture, path, fmt.Errorf("invalid capture format: %w", err))
	}
	if r.last != nil {
		// a stopping loop still holds the device
		<-r.last.done
		r.last = nil
	}

	dev, err := r.opener.OpenCapture(r.config.Format)
	if err != nil {
		return stageError(StageCapture, path, device.Unavailable(err))
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		dev.Close()
		return stageError(StageCapture, path, fmt.Errorf("create pcm artifact: %w", err))
	}

	run := &captureRun{
		path:    path,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	r.run = run
	r.metrics.SetRecording(true)

	r.logger.Info("Capture started",
		slog.String("path", path),
		slog.Int("sample_rate", r.config.Format.SampleRate),
		slog.Int("block_samples", r.config.BlockSamples),
	)

	go r.loop(run, dev, f)
	return nil
}

// loop reads blocks from dev and appends them to f until Stop is requested
// or the device fails. A failed device ends the session; it is not
// reopened.
func (r *Recorder) loop(run *captureRun, dev device.Capture, f *os.File) {
	defer close(run.done)

	w := bufio.NewWriterSize(f, 32*1024)
	block := make([]int16, r.config.BlockSamples)
	buf := make([]byte, r.config.BlockSamples*audio.BytesPerSample)

	for !run.stop.Load() {
		n, err := dev.Read(block)
		if n > 0 {
			m := audio.PutSamples(buf, block[:n])
			if _, werr := w.Write(buf[:m]); werr != nil {
				run.err = fmt.Errorf("write pcm artifact: %w", werr)
				break
			}
			run.bytes.Add(int64(m))
			r.metrics.AddCapturedBytes(m)
		}
		if err != nil {
			run.err = fmt.Errorf("read capture device: %w", err)
			break
		}
	}

	if err := w.Flush(); err != nil && run.err == nil {
		run.err = fmt.Errorf("flush pcm artifact: %w", err)
	}
	if err := f.Close(); err != nil && run.err == nil {
		run.err = fmt.Errorf("close pcm artifact: %w", err)
	}
	if err := dev.Close(); err != nil {
		r.logger.Warn("Failed to close capture device",
			slog.String("path", run.path),
			slog.String("error", err.Error()),
		)
	}

	if run.err != nil {
		r.logger.Error("Capture loop stopped",
			slog.String("path", run.path),
			slog.String("error", run.err.Error()),
		)
	}
}

// Stop ends the active session, waits for the loop to flush and close the
// artifact and returns what was recorded. Stop while idle returns nil, nil.
// If the loop had already ended on a device or file error, that error is
// returned alongside the recording, whose artifact holds everything written
// before the failure.
func (r *Recorder) Stop() (*Recording, error) {
	r.mu.Lock()
	run := r.run
	if run == nil {
		r.mu.Unlock()
		return nil, nil
	}
	run.stop.Store(true)
	r.run = nil
	r.last = run
	r.metrics.SetRecording(false)
	r.mu.Unlock()

	// the loop owns the file until done closes
	<-run.done

	rec := &Recording{
		Path:      run.path,
		Bytes:     run.bytes.Load(),
		Duration:  audio.PCMDuration(run.bytes.Load(), r.config.Format.SampleRate),
		StartedAt: run.started,
		StoppedAt: time.Now(),
	}
	r.metrics.RecordStage(string(StageCapture), rec.StoppedAt.Sub(rec.StartedAt).Seconds(), run.err)

	r.logger.Info("Capture stopped",
		slog.String("path", rec.Path),
		slog.Int64("bytes", rec.Bytes),
		slog.Duration("duration", rec.Duration),
	)

	if run.err != nil {
		return rec, stageError(StageCapture, run.path, run.err)
	}
	return rec, nil
}

// Status returns a snapshot of the recorder state.
func (r *Recorder) Status() RecorderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.run == nil {
		return RecorderStatus{}
	}
	return RecorderStatus{
		Recording: true,
		Path:      r.run.path,
		Bytes:     r.run.bytes.Load(),
		Elapsed:   time.Since(r.run.started),
	}
}

// Active reports whether a session is active.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run != nil
}

// Writing reports whether path is the artifact of the active session or of
// a stopped session whose loop has not yet closed it.
func (r *Recorder) Writing(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range []*captureRun{r.run, r.last} {
		if run == nil || filepath.Clean(run.path) != filepath.Clean(path) {
			continue
		}
		select {
		case <-run.done:
		default:
			return true
		}
	}
	return false
}

// Done returns a channel closed when the active capture loop exits, either
// after Stop or because the device failed. It returns nil while idle.
func (r *Recorder) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run == nil {
		return nil
	}
	return r.run.done
}

