package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stage label values
const (
	StageCapture  = "capture"
	StageEncode   = "encode"
	StagePlayback = "playback"
	StageExport   = "export"
)

// Metrics contains all Prometheus metrics for the recorder. Every method is
// safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	// Capture metrics
	RecordingActive prometheus.Gauge
	CapturedBytes   prometheus.Counter

	// Stage metrics
	StageRuns     *prometheus.CounterVec
	StageFailures *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec

	// Codec metrics
	EncodedFrames  prometheus.Counter
	PaddingSamples prometheus.Counter
	DecodedFrames  prometheus.Counter
	RenderedBytes  prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Capture metrics
		RecordingActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rtak_recording_active",
			Help: "1 while a capture session is writing a PCM artifact",
		}),
		CapturedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtak_captured_bytes_total",
			Help: "Total number of PCM bytes written by capture sessions",
		}),

		// Stage metrics
		StageRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtak_stage_runs_total",
			Help: "Total number of completed pipeline passes by stage",
		}, []string{"stage"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtak_stage_failures_total",
			Help: "Total number of failed pipeline passes by stage",
		}, []string{"stage"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rtak_stage_duration_seconds",
			Help:    "Wall time of pipeline passes by stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}, []string{"stage"}),

		// Codec metrics
		EncodedFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtak_encoded_frames_total",
			Help: "Total number of frames written to containers",
		}),
		PaddingSamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtak_padding_samples_total",
			Help: "Total number of zero samples appended to final frames",
		}),
		DecodedFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtak_decoded_frames_total",
			Help: "Total number of frames decoded for playback or export",
		}),
		RenderedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtak_rendered_bytes_total",
			Help: "Total number of PCM bytes written to render devices and WAV files",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtak_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rtak_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtak_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// SetRecording sets the recording gauge
func (m *Metrics) SetRecording(active bool) {
	if m == nil {
		return
	}
	if active {
		m.RecordingActive.Set(1)
	} else {
		m.RecordingActive.Set(0)
	}
}

// AddCapturedBytes adds n to the captured bytes counter
func (m *Metrics) AddCapturedBytes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CapturedBytes.Add(float64(n))
}

// RecordStage records one finished pass of stage and whether it failed
func (m *Metrics) RecordStage(stage string, durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.StageRuns.WithLabelValues(stage).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
	if err != nil {
		m.StageFailures.WithLabelValues(stage).Inc()
	}
}

// RecordEncodedFrames records frames written by an encode pass
func (m *Metrics) RecordEncodedFrames(frames, paddingSamples int) {
	if m == nil {
		return
	}
	m.EncodedFrames.Add(float64(frames))
	m.PaddingSamples.Add(float64(paddingSamples))
}

// RecordDecodedFrame increments the decoded frames counter
func (m *Metrics) RecordDecodedFrame() {
	if m == nil {
		return
	}
	m.DecodedFrames.Inc()
}

// AddRenderedBytes adds n to the rendered bytes counter
func (m *Metrics) AddRenderedBytes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RenderedBytes.Add(float64(n))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
