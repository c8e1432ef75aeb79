package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Jkjake561/RTAKRecorder/internal/metrics"
)

var (
	ErrSourceNotFound   = errors.New("pipeline: source not found")
	ErrAlreadyRecording = errors.New("pipeline: already recording")
	ErrNotPCM           = errors.New("pipeline: source is not raw pcm")
)

// Stage names a pipeline pass.
type Stage string

const (
	StageCapture  Stage = metrics.StageCapture
	StageEncode   Stage = metrics.StageEncode
	StagePlayback Stage = metrics.StagePlayback
	StageExport   Stage = metrics.StageExport
)

// StageError reports which stage failed and on which artifact.
type StageError struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s failed for %s: %v", e.Stage, e.Path, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// stageError wraps err unless it is nil or already a *StageError.
func stageError(stage Stage, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Path: path, Err: err}
}

// checkSource returns ErrSourceNotFound unless path is an existing regular file.
func checkSource(path string) (os.FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrSourceNotFound, path)
	}
	return st, nil
}

// writeFileAtomic runs write against a temporary file next to dst and
// renames it over dst only if write, sync and close all succeed.
func writeFileAtomic(dst string, write func(f *os.File) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temporary file for %s: %w", dst, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmp.Name(), dst, err)
	}
	return nil
}
