// Package audio handles PCM-16 sample conversion, frame alignment and WAV export.
// It turns arbitrary-length little-endian PCM streams into fixed-size codec frames,
// zero-padding the final frame, and writes decoded audio to WAV files.
package audio
