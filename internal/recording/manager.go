package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Jkjake561/RTAKRecorder/internal/audio"
	"github.com/Jkjake561/RTAKRecorder/internal/codec2"
	"github.com/Jkjake561/RTAKRecorder/internal/container"
	"github.com/Jkjake561/RTAKRecorder/internal/pipeline"
)

// NamePrefix starts every recording file name.
const NamePrefix = "recording_"

var (
	// ErrNotFound is returned for names that do not resolve to an artifact
	// in the recordings directory.
	ErrNotFound = errors.New("recording: not found")
	// ErrInvalidName is returned for names that would escape the directory.
	ErrInvalidName = errors.New("recording: invalid name")
	// ErrClosed is returned once the manager has been closed.
	ErrClosed = errors.New("recording: manager closed")
)

// Config contains configuration for the recording manager
type Config struct {
	Dir                  string
	Mode                 codec2.Mode
	AutoEncode           bool
	MaxConcurrentEncodes int
}

// Entry describes one artifact in the recordings directory.
type Entry struct {
	Name     string        `json:"name"`
	Kind     pipeline.Kind `json:"kind"`
	Size     int64         `json:"size"`
	ModTime  time.Time     `json:"mod_time"`
	Duration time.Duration `json:"duration"`
	Mode     string        `json:"mode,omitempty"`
	Frames   int           `json:"frames,omitempty"`
	Complete bool          `json:"complete"`
}

// Stats holds counters since the manager was created.
type Stats struct {
	RecordingsStarted   uint64 `json:"recordings_started"`
	RecordingsCompleted uint64 `json:"recordings_completed"`
	RecordingsFailed    uint64 `json:"recordings_failed"`
	EncodesCompleted    uint64 `json:"encodes_completed"`
	EncodesFailed       uint64 `json:"encodes_failed"`
	PendingEncodes      int    `json:"pending_encodes"`
	Playbacks           uint64 `json:"playbacks"`
	PlaybacksFailed     uint64 `json:"playbacks_failed"`
}

// Status is a snapshot of the manager for monitoring and APIs.
type Status struct {
	Recorder   pipeline.RecorderStatus `json:"recorder"`
	Mode       codec2.Mode             `json:"mode"`
	Dir        string                  `json:"dir"`
	Stats      Stats                   `json:"stats"`
	LastEncode *pipeline.EncodeResult  `json:"last_encode,omitempty"`
	LastError  string                  `json:"last_error,omitempty"`
	Playing    int                     `json:"playing"`
}

// Manager coordinates capture, encode and playback over one directory.
type Manager struct {
	config   Config
	recorder *pipeline.Recorder
	encoder  *pipeline.Encoder
	player   *pipeline.Player
	logger   *slog.Logger

	encodes *errgroup.Group
	pending sync.WaitGroup

	mu         sync.RWMutex
	stats      Stats
	lastEncode *pipeline.EncodeResult
	lastError  string
	lastName   int64
	closed     bool
}

// NewManager creates the recordings directory if needed and returns a
// manager over it.
func NewManager(cfg Config, recorder *pipeline.Recorder, encoder *pipeline.Encoder, player *pipeline.Player, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("recordings directory is required")
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("%w: %s", codec2.ErrUnsupportedMode, cfg.Mode)
	}
	if cfg.MaxConcurrentEncodes < 1 {
		cfg.MaxConcurrentEncodes = 1
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}

	g := new(errgroup.Group)
	g.SetLimit(cfg.MaxConcurrentEncodes)

	return &Manager{
		config:   cfg,
		recorder: recorder,
		encoder:  encoder,
		player:   player,
		logger:   logger,
		encodes:  g,
	}, nil
}

// Dir returns the recordings directory.
func (m *Manager) Dir() string {
	return m.config.Dir
}

// Start begins a new recording named recording_<unix millis>.pcm and
// returns its path.
func (m *Manager) Start() (string, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	path := m.nextPathLocked(time.Now())
	m.mu.Unlock()

	if err := m.recorder.Start(path); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.stats.RecordingsStarted++
	m.mu.Unlock()

	m.logger.Info("Recording started", slog.String("path", path))
	return path, nil
}

// nextPathLocked returns a file name that sorts after every name this
// manager has handed out.
func (m *Manager) nextPathLocked(now time.Time) string {
	ts := now.UnixMilli()
	if ts <= m.lastName {
		ts = m.lastName + 1
	}
	m.lastName = ts
	return filepath.Join(m.config.Dir, fmt.Sprintf("%s%d.pcm", NamePrefix, ts))
}

// Stop ends the active recording. When auto-encode is enabled the captured
// artifact is queued for encoding into a sibling .c2 file, even if the
// session ended with a device error. Stop returns nil, nil when idle.
func (m *Manager) Stop() (*pipeline.Recording, error) {
	rec, err := m.recorder.Stop()
	if rec == nil {
		return nil, err
	}

	m.mu.Lock()
	if err != nil {
		m.stats.RecordingsFailed++
		m.lastError = err.Error()
	} else {
		m.stats.RecordingsCompleted++
	}
	autoEncode := m.config.AutoEncode && !m.closed
	m.mu.Unlock()

	if autoEncode {
		m.queueEncode(rec.Path, ContainerPath(rec.Path))
	}
	return rec, err
}

// ContainerPath returns the .c2 path that sits next to a PCM artifact.
func ContainerPath(pcmPath string) string {
	return strings.TrimSuffix(pcmPath, filepath.Ext(pcmPath)) + container.Extension
}

// queueEncode schedules an encode without blocking the caller. At most
// MaxConcurrentEncodes passes run at once.
func (m *Manager) queueEncode(src, dst string) {
	m.pending.Add(1)
	m.mu.Lock()
	m.stats.PendingEncodes++
	m.mu.Unlock()

	go m.encodes.Go(func() error {
		defer m.pending.Done()
		// failures are counted in stats; later encodes still run
		m.encode(src, dst)
		return nil
	})
}

// Encode encodes the PCM artifact name into its sibling container on the
// calling goroutine and returns the result. Containers are refused with
// pipeline.ErrNotPCM and the artifact still being captured with
// pipeline.ErrAlreadyRecording.
func (m *Manager) Encode(name string) (*pipeline.EncodeResult, error) {
	src, err := m.readable(name)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(src), container.Extension) {
		return nil, fmt.Errorf("%w: %s is already a container", pipeline.ErrNotPCM, name)
	}
	m.mu.Lock()
	m.stats.PendingEncodes++
	m.mu.Unlock()
	return m.encode(src, ContainerPath(src))
}

func (m *Manager) encode(src, dst string) (*pipeline.EncodeResult, error) {
	res, err := m.encoder.EncodeFile(src, dst, m.config.Mode)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.PendingEncodes--
	if err != nil {
		m.stats.EncodesFailed++
		m.lastError = err.Error()
		return res, err
	}
	m.stats.EncodesCompleted++
	m.lastEncode = res
	return res, nil
}

// Wait blocks until every queued encode has finished or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.pending.Wait()
		m.encodes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resolve maps a bare file name to its path inside the recordings
// directory.
func (m *Manager) Resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	path := filepath.Join(m.config.Dir, name)
	st, err := os.Stat(path)
	if err != nil || !st.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return path, nil
}

// readable resolves name and refuses the artifact the recorder still owns.
func (m *Manager) readable(name string) (string, error) {
	path, err := m.Resolve(name)
	if err != nil {
		return "", err
	}
	if m.recorder.Writing(path) {
		return "", fmt.Errorf("%w: %s is still being captured", pipeline.ErrAlreadyRecording, name)
	}
	return path, nil
}

// List returns every .pcm and .c2 artifact in the directory, oldest name
// first.
func (m *Manager) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(m.config.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read recordings directory: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}
		entry, ok := m.describe(de)
		if ok {
			entries = append(entries, entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

func (m *Manager) describe(de os.DirEntry) (Entry, bool) {
	name := de.Name()
	// skip in-progress atomic writes
	if strings.HasPrefix(name, ".") {
		return Entry{}, false
	}
	info, err := de.Info()
	if err != nil {
		return Entry{}, false
	}
	entry := Entry{Name: name, Size: info.Size(), ModTime: info.ModTime()}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pcm":
		entry.Kind = pipeline.KindPCM
		entry.Duration = audio.PCMDuration(info.Size(), codec2.SampleRate)
		entry.Complete = info.Size()%audio.BytesPerSample == 0
	case container.Extension:
		entry.Kind = pipeline.KindContainer
		ci, err := container.Inspect(filepath.Join(m.config.Dir, name))
		if err != nil {
			m.logger.Debug("Skipping unreadable container",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
			return entry, true
		}
		entry.Mode = ci.Header.Mode.String()
		entry.Frames = int(ci.Frames)
		entry.Duration = ci.Duration
		entry.Complete = ci.Complete()
	default:
		return Entry{}, false
	}
	return entry, true
}

// Latest returns the newest artifact of kind, or of either kind when kind
// is empty.
func (m *Manager) Latest(kind pipeline.Kind) (Entry, error) {
	entries, err := m.List()
	if err != nil {
		return Entry{}, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if kind == "" || entries[i].Kind == kind {
			return entries[i], nil
		}
	}
	return Entry{}, ErrNotFound
}

// Play plays the named artifact on a new goroutine. An empty kind detects
// the format. done may be nil. The artifact still being captured is refused
// with pipeline.ErrAlreadyRecording.
func (m *Manager) Play(name string, kind pipeline.Kind, done func(*pipeline.PlaybackResult, error)) error {
	path, err := m.readable(name)
	if err != nil {
		return err
	}

	play := m.player.Play
	switch kind {
	case pipeline.KindPCM:
		play = m.player.PlayPCM
	case pipeline.KindContainer:
		play = m.player.PlayContainer
	case "":
	default:
		return fmt.Errorf("unknown artifact kind %q", kind)
	}

	play(path, func(res *pipeline.PlaybackResult, err error) {
		m.mu.Lock()
		m.stats.Playbacks++
		if err != nil {
			m.stats.PlaybacksFailed++
			m.lastError = err.Error()
		}
		m.mu.Unlock()
		if done != nil {
			done(res, err)
		}
	})
	return nil
}

// Stats returns the manager counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// Status returns a snapshot of the recorder and manager counters.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		Recorder:   m.recorder.Status(),
		Mode:       m.config.Mode,
		Dir:        m.config.Dir,
		Stats:      m.stats,
		LastEncode: m.lastEncode,
		LastError:  m.lastError,
		Playing:    m.player.Active(),
	}
}

// Close stops an active recording, waits for queued encodes and rejects
// further recordings.
func (m *Manager) Close(ctx context.Context) error {
	m.logger.Info("Stopping recording manager...")

	var errs []error
	if m.recorder.Active() {
		if _, err := m.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	if err := m.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for encodes: %w", err))
	}

	stats := m.Stats()
	m.logger.Info("Recording manager stopped",
		slog.Uint64("recordings", stats.RecordingsCompleted),
		slog.Uint64("encodes", stats.EncodesCompleted),
		slog.Uint64("encode_failures", stats.EncodesFailed),
	)
	return errors.Join(errs...)
}
