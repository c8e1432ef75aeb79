package container

import (
	"fmt"
	"os"
	"time"
)

// Info describes a container file on disk.
type Info struct {
	Path          string        `json:"path"`
	Header        Header        `json:"-"`
	Mode          string        `json:"mode"`
	Version       string        `json:"version"`
	Size          int64         `json:"size_bytes"`
	Frames        int64         `json:"frames"`
	TrailingBytes int64         `json:"trailing_bytes"`
	Duration      time.Duration `json:"duration"`
}

// Complete reports whether the payload is a whole number of frames.
func (i *Info) Complete() bool {
	return i.TrailingBytes == 0
}

// Inspect reads the header of the container at path and derives the frame
// count and duration from the file size and the mode's frame geometry.
func Inspect(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open container %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat container %s: %w", path, err)
	}

	h, err := ReadHeader(f)
	if err != nil {
		return nil, err
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}

	geo, err := h.Mode.Geometry()
	if err != nil {
		return nil, err
	}
	frameDur, err := h.Mode.FrameDuration()
	if err != nil {
		return nil, err
	}

	payload := st.Size() - HeaderSize
	frames := payload / int64(geo.BytesPerFrame)
	return &Info{
		Path:          path,
		Header:        *h,
		Mode:          h.Mode.String(),
		Version:       fmt.Sprintf("%d.%d", h.Major, h.Minor),
		Size:          st.Size(),
		Frames:        frames,
		TrailingBytes: payload % int64(geo.BytesPerFrame),
		Duration:      time.Duration(frames) * frameDur,
	}, nil
}
