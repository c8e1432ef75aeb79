// Package recording manages the recordings directory: it names and starts
// capture sessions, queues a Codec2 encode after each one stops, lists the
// artifacts on disk and plays them back by name.
package recording
