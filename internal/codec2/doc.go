// Package codec2 wraps the Codec2 narrowband speech codec behind an explicit
// session lifecycle. A Session owns the native encoder/decoder state for one
// mode, caches the mode's frame geometry and rejects every call after Close.
//
// The native binding is only compiled with the "codec2" build tag and cgo
// enabled (pkg-config name "codec2"); other builds get a Library that fails
// with ErrNativeInitFailure.
package codec2
