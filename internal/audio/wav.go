package audio

import (
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth  = 16
	wavChannels  = 1
	wavFormatPCM = 1
)

// WAVSink streams little-endian PCM-16 mono bytes into a WAV file. It has the
// same Write/Close shape as a render device so decoded audio can be exported
// through the playback loop.
type WAVSink struct {
	enc     *wav.Encoder
	buf     *goaudio.IntBuffer
	pending []byte
	samples int64
	closed  bool
}

// NewWAVSink wraps ws. Close finalizes the WAV header but does not close ws.
func NewWAVSink(ws io.WriteSeeker, sampleRate int) *WAVSink {
	return &WAVSink{
		enc: wav.NewEncoder(ws, sampleRate, wavBitDepth, wavChannels, wavFormatPCM),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: wavChannels, SampleRate: sampleRate},
			SourceBitDepth: wavBitDepth,
		},
	}
}

// Write appends PCM bytes. An odd trailing byte is held until the next Write.
func (s *WAVSink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, fmt.Errorf("write to closed WAV sink")
	}
	data := p
	if len(s.pending) > 0 {
		data = append(s.pending, p...)
		s.pending = nil
	}
	whole := len(data) - len(data)%BytesPerSample
	if whole < len(data) {
		s.pending = append([]byte(nil), data[whole:]...)
	}
	if whole == 0 {
		return len(p), nil
	}

	samples := BytesToSamples(data[:whole])
	s.buf.Data = s.buf.Data[:0]
	for _, v := range samples {
		s.buf.Data = append(s.buf.Data, int(v))
	}
	if err := s.enc.Write(s.buf); err != nil {
		return 0, fmt.Errorf("failed to write WAV samples: %w", err)
	}
	s.samples += int64(len(samples))
	return len(p), nil
}

// Samples returns the number of samples written so far.
func (s *WAVSink) Samples() int64 {
	return s.samples
}

// Close writes the final WAV header.
func (s *WAVSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.samples == 0 {
		// the encoder only emits its header on the first Write
		s.buf.Data = s.buf.Data[:0]
		err = s.enc.Write(s.buf)
	}
	if err == nil {
		err = s.enc.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to finalize WAV header: %w", err)
	}
	return nil
}

// WAVInfo represents basic information about a WAV file
type WAVInfo struct {
	SampleRate    uint32        `json:"sample_rate"`
	Channels      uint16        `json:"channels"`
	BitsPerSample uint16        `json:"bits_per_sample"`
	Duration      time.Duration `json:"duration"`
	NumSamples    int           `json:"num_samples"`
}

// ReadWAVInfo decodes the header and sample data of a WAV stream.
func ReadWAVInfo(r io.ReadSeeker) (*WAVInfo, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV samples: %w", err)
	}

	info := &WAVInfo{
		SampleRate:    dec.SampleRate,
		Channels:      dec.NumChans,
		BitsPerSample: dec.BitDepth,
		NumSamples:    len(buf.Data),
	}
	if dec.SampleRate > 0 && dec.NumChans > 0 {
		frames := len(buf.Data) / int(dec.NumChans)
		info.Duration = time.Duration(frames) * time.Second / time.Duration(dec.SampleRate)
	}
	return info, nil
}
