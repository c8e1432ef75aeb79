package recording

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Jkjake561/RTAKRecorder/internal/codec2"
	codecmock "github.com/Jkjake561/RTAKRecorder/internal/codec2/mock"
	"github.com/Jkjake561/RTAKRecorder/internal/device"
	devicemock "github.com/Jkjake561/RTAKRecorder/internal/device/mock"
	"github.com/Jkjake561/RTAKRecorder/internal/pipeline"
)

const testTimeout = 5 * time.Second

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func toneSamples(n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(6000 * math.Sin(2*math.Pi*300*float64(i)/8000))
	}
	return samples
}

type testRig struct {
	manager *Manager
	opener  *devicemock.Opener
	lib     *codecmock.Library
	dir     string
}

func newTestRig(t *testing.T, autoEncode bool) *testRig {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "recordings")
	lib := &codecmock.Library{}
	opener := &devicemock.Opener{Render: &devicemock.Render{}}
	format := device.MonoPCM16(codec2.SampleRate)

	rec := pipeline.NewRecorder(opener, pipeline.RecorderConfig{Format: format}, testLogger(), nil)
	enc := pipeline.NewEncoder(lib, testLogger(), nil)
	player := pipeline.NewPlayer(opener, lib, pipeline.PlayerConfig{Format: format}, testLogger(), nil)

	mgr, err := NewManager(Config{
		Dir:                  dir,
		Mode:                 codec2.Mode2400,
		AutoEncode:           autoEncode,
		MaxConcurrentEncodes: 2,
	}, rec, enc, player, testLogger())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return &testRig{manager: mgr, opener: opener, lib: lib, dir: dir}
}

// record captures samples through the manager and stops once the mock
// device has delivered all of them.
func (r *testRig) record(t *testing.T, samples []int16) *pipeline.Recording {
	t.Helper()
	capture := devicemock.NewCapture(samples)
	r.opener.Capture = capture

	if _, err := r.manager.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	select {
	case <-capture.Drained():
	case <-time.After(testTimeout):
		t.Fatal("Timed out waiting for capture to drain")
	}
	rec, err := r.manager.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	return rec
}

func (r *testRig) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := r.manager.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
}

func TestNewManager(t *testing.T) {
	rig := newTestRig(t, true)
	if st, err := os.Stat(rig.dir); err != nil || !st.IsDir() {
		t.Fatalf("Expected recordings directory to be created, got %v", err)
	}

	tests := []struct {
		name     string
		config   Config
		errorMsg string
	}{
		{"empty dir", Config{Mode: codec2.Mode2400}, "recordings directory is required"},
		{"bad mode", Config{Dir: t.TempDir(), Mode: codec2.Mode(99)}, "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.config, nil, nil, nil, testLogger())
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestRecordAndAutoEncode(t *testing.T) {
	rig := newTestRig(t, true)

	rec := rig.record(t, toneSamples(8000))
	if rec.Bytes != 16000 {
		t.Errorf("Expected 16000 bytes, got %d", rec.Bytes)
	}
	base := filepath.Base(rec.Path)
	if !strings.HasPrefix(base, NamePrefix) || filepath.Ext(base) != ".pcm" {
		t.Errorf("Unexpected recording name %s", base)
	}
	rig.wait(t)

	c2 := ContainerPath(rec.Path)
	if _, err := os.Stat(c2); err != nil {
		t.Fatalf("Expected container next to the recording: %v", err)
	}

	status := rig.manager.Status()
	if status.Stats.RecordingsCompleted != 1 || status.Stats.EncodesCompleted != 1 {
		t.Errorf("Unexpected stats %+v", status.Stats)
	}
	if status.Stats.PendingEncodes != 0 {
		t.Errorf("Expected no pending encodes, got %d", status.Stats.PendingEncodes)
	}
	if status.LastEncode == nil || status.LastEncode.Frames != 50 {
		t.Errorf("Expected last encode of 50 frames, got %+v", status.LastEncode)
	}
	if rig.lib.Live() != 0 {
		t.Errorf("Expected session released, %d live", rig.lib.Live())
	}
}

func TestStopWithoutAutoEncode(t *testing.T) {
	rig := newTestRig(t, false)
	rec := rig.record(t, toneSamples(1600))
	rig.wait(t)

	if _, err := os.Stat(ContainerPath(rec.Path)); !os.IsNotExist(err) {
		t.Error("Expected no container without auto-encode")
	}

	res, err := rig.manager.Encode(filepath.Base(rec.Path))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if res.Frames != 10 {
		t.Errorf("Expected 10 frames, got %d", res.Frames)
	}
	if rig.manager.Status().Stats.PendingEncodes != 0 {
		t.Error("Expected pending count to return to zero")
	}
}

func TestStopWhileIdle(t *testing.T) {
	rig := newTestRig(t, true)
	rec, err := rig.manager.Stop()
	if rec != nil || err != nil {
		t.Errorf("Expected nil, nil, got %v, %v", rec, err)
	}
}

func TestNamesAreUniqueAndOrdered(t *testing.T) {
	rig := newTestRig(t, false)
	now := time.UnixMilli(1700000000000)

	rig.manager.mu.Lock()
	first := rig.manager.nextPathLocked(now)
	second := rig.manager.nextPathLocked(now)
	third := rig.manager.nextPathLocked(now.Add(-time.Second))
	rig.manager.mu.Unlock()

	if filepath.Base(first) != "recording_1700000000000.pcm" {
		t.Errorf("Unexpected first name %s", first)
	}
	if !(first < second && second < third) {
		t.Errorf("Expected increasing names, got %s %s %s", first, second, third)
	}
}

func TestListAndLatest(t *testing.T) {
	rig := newTestRig(t, true)
	rig.record(t, toneSamples(800))
	second := rig.record(t, toneSamples(1600))
	rig.wait(t)

	// foreign files and temp files are ignored
	os.WriteFile(filepath.Join(rig.dir, "notes.txt"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(rig.dir, ".recording_1.c2.tmp-1"), []byte("x"), 0o644)

	entries, err := rig.manager.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("Expected 4 artifacts, got %d: %+v", len(entries), entries)
	}

	latest, err := rig.manager.Latest(pipeline.KindContainer)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.Name != filepath.Base(ContainerPath(second.Path)) {
		t.Errorf("Expected latest container for %s, got %s", second.Path, latest.Name)
	}
	if latest.Frames != 10 || latest.Mode != "2400" || !latest.Complete {
		t.Errorf("Unexpected container entry %+v", latest)
	}
	if latest.Duration != 200*time.Millisecond {
		t.Errorf("Expected 200ms, got %v", latest.Duration)
	}

	pcm, err := rig.manager.Latest(pipeline.KindPCM)
	if err != nil {
		t.Fatalf("Latest pcm failed: %v", err)
	}
	if pcm.Size != 3200 || pcm.Duration != 200*time.Millisecond {
		t.Errorf("Unexpected pcm entry %+v", pcm)
	}
}

func TestLatestEmpty(t *testing.T) {
	rig := newTestRig(t, true)
	if _, err := rig.manager.Latest(""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	rig := newTestRig(t, false)
	rec := rig.record(t, toneSamples(160))
	name := filepath.Base(rec.Path)

	tests := []struct {
		name      string
		input     string
		expectErr error
	}{
		{"existing", name, nil},
		{"missing", "recording_1.pcm", ErrNotFound},
		{"traversal", "../etc/passwd", ErrInvalidName},
		{"dot dot", "..", ErrInvalidName},
		{"empty", "", ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := rig.manager.Resolve(tt.input)
			if tt.expectErr == nil {
				if err != nil {
					t.Fatalf("Resolve failed: %v", err)
				}
				if path != rec.Path {
					t.Errorf("Expected %s, got %s", rec.Path, path)
				}
				return
			}
			if !errors.Is(err, tt.expectErr) {
				t.Errorf("Expected %v, got %v", tt.expectErr, err)
			}
		})
	}
}

func TestEncodeRefusals(t *testing.T) {
	rig := newTestRig(t, true)
	rec := rig.record(t, toneSamples(8000))
	rig.wait(t)

	c2Name := filepath.Base(ContainerPath(rec.Path))
	before, err := os.ReadFile(ContainerPath(rec.Path))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	capture := devicemock.NewCapture(toneSamples(800))
	rig.opener.Capture = capture
	active, err := rig.manager.Start()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	select {
	case <-capture.Drained():
	case <-time.After(testTimeout):
		t.Fatal("Timed out waiting for capture to drain")
	}

	tests := []struct {
		name      string
		input     string
		expectErr error
	}{
		{"finished container", c2Name, pipeline.ErrNotPCM},
		{"active recording", filepath.Base(active), pipeline.ErrAlreadyRecording},
		{"traversal", "../" + filepath.Base(rec.Path), ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := rig.manager.Encode(tt.input); !errors.Is(err, tt.expectErr) {
				t.Errorf("Expected %v, got %v", tt.expectErr, err)
			}
		})
	}

	if err := rig.manager.Play(filepath.Base(active), "", nil); !errors.Is(err, pipeline.ErrAlreadyRecording) {
		t.Errorf("Expected ErrAlreadyRecording for playback, got %v", err)
	}
	if _, err := os.Stat(ContainerPath(active)); !os.IsNotExist(err) {
		t.Errorf("Expected no container beside the active recording, got %v", err)
	}

	after, err := os.ReadFile(ContainerPath(rec.Path))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Errorf("Expected finished container untouched, had %d bytes, now %d", len(before), len(after))
	}
	if stats := rig.manager.Stats(); stats.PendingEncodes != 0 || stats.EncodesFailed != 0 {
		t.Errorf("Expected refusals not to count as encodes, got %+v", stats)
	}

	if _, err := rig.manager.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	rig.wait(t)
	if _, err := rig.manager.Encode(filepath.Base(active)); err != nil {
		t.Errorf("Expected encode after stop to succeed, got %v", err)
	}
}

func TestPlayByName(t *testing.T) {
	rig := newTestRig(t, true)
	rec := rig.record(t, toneSamples(3200))
	rig.wait(t)

	done := make(chan error, 1)
	name := filepath.Base(ContainerPath(rec.Path))
	err := rig.manager.Play(name, "", func(res *pipeline.PlaybackResult, err error) {
		if err == nil && res.Frames != 20 {
			err = errors.New("unexpected frame count")
		}
		done <- err
	})
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Playback failed: %v", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("Timed out waiting for playback")
	}

	if got := len(rig.opener.Render.Bytes()); got != 6400 {
		t.Errorf("Expected 6400 rendered bytes, got %d", got)
	}
	if stats := rig.manager.Status().Stats; stats.Playbacks != 1 || stats.PlaybacksFailed != 0 {
		t.Errorf("Unexpected playback stats %+v", stats)
	}

	if err := rig.manager.Play(name, "wav", nil); err == nil {
		t.Error("Expected error for unknown kind")
	}
	if err := rig.manager.Play("missing.c2", "", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeviceFailureStillEncodes(t *testing.T) {
	rig := newTestRig(t, true)
	capture := devicemock.NewCapture(toneSamples(640))
	capture.Err = errors.New("unplugged")
	rig.opener.Capture = capture

	path, err := rig.manager.Start()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	select {
	case <-capture.Drained():
	case <-time.After(testTimeout):
		t.Fatal("Timed out waiting for capture to drain")
	}
	if _, err := rig.manager.Stop(); err == nil {
		t.Fatal("Expected device error from Stop")
	}
	rig.wait(t)

	if _, err := os.Stat(ContainerPath(path)); err != nil {
		t.Errorf("Expected the captured audio to be encoded: %v", err)
	}
	status := rig.manager.Status()
	if status.Stats.RecordingsFailed != 1 || status.LastError == "" {
		t.Errorf("Expected failure recorded, got %+v", status)
	}
}

func TestClose(t *testing.T) {
	rig := newTestRig(t, true)
	capture := devicemock.NewCapture(toneSamples(1600))
	rig.opener.Capture = capture

	path, err := rig.manager.Start()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	select {
	case <-capture.Drained():
	case <-time.After(testTimeout):
		t.Fatal("Timed out waiting for capture to drain")
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := rig.manager.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !capture.Closed() {
		t.Error("Expected capture device closed")
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) != 3200 {
		t.Errorf("Expected 3200 byte artifact, got %d (%v)", len(data), err)
	}
	if _, err := os.Stat(ContainerPath(path)); err != nil {
		t.Errorf("Expected final recording encoded before close returned: %v", err)
	}
	if _, err := rig.manager.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
