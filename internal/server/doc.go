// Package server implements the HTTP API for controlling the recorder: it
// starts and stops recordings, lists and plays artifacts, reports status and
// exposes Prometheus metrics.
package server
