// Package pipeline implements the three audio passes of the recorder.
//
// Capture: a Recorder drives a capture device on its own goroutine and
// streams little-endian PCM-16 into a raw .pcm artifact until Stop is called.
// The loop checks the active flag once per block, so Stop returns within one
// device read.
//
// Encode: an Encoder aligns a finished PCM artifact into codec frames and
// writes a .c2 container. The container is written to a temporary file in the
// destination directory and renamed on success, so a failed pass never
// leaves a partial container behind.
//
// Playback: a Player streams a PCM artifact or a decoded container to a
// render device on its own goroutine and reports completion through a
// callback. ExportWAV runs the same decode loop into a WAV file.
//
// Every pass owns its codec session and closes it on all exit paths.
// Failures are returned as *StageError naming the stage and artifact.
package pipeline
