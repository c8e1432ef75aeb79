// Package container implements the on-disk .c2 format: a fixed 7-byte header
// (magic, version, mode, flags) followed by concatenated fixed-size Codec2
// frames with no delimiters. Frame boundaries are implied by the mode.
package container
