package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Jkjake561/RTAKRecorder/internal/config"
	"github.com/Jkjake561/RTAKRecorder/internal/device"
	"github.com/Jkjake561/RTAKRecorder/internal/metrics"
	"github.com/Jkjake561/RTAKRecorder/internal/pipeline"
	"github.com/Jkjake561/RTAKRecorder/internal/recording"
)

// ServiceName is reported by the health and root endpoints.
const ServiceName = "rtak-recorder"

// Version is reported by the health and root endpoints.
var Version = "dev"

// HTTPServer provides HTTP API endpoints for control and monitoring
type HTTPServer struct {
	server   *http.Server
	handler  http.Handler
	logger   *slog.Logger
	config   *config.Config
	manager  *recording.Manager
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server. A nil gatherer serves the
// default Prometheus registry.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	manager *recording.Manager, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		manager:   manager,
		metrics:   m,
		gatherer:  gatherer,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler, for embedding or tests.
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("GET /status", h.withMetrics("/status", h.handleStatus))
	mux.HandleFunc("GET /config", h.withMetrics("/config", h.handleConfig))

	mux.HandleFunc("GET /recordings", h.withMetrics("/recordings", h.handleList))
	mux.HandleFunc("POST /recordings/start", h.withMetrics("/recordings/start", h.handleStart))
	mux.HandleFunc("POST /recordings/stop", h.withMetrics("/recordings/stop", h.handleStop))
	mux.HandleFunc("GET /recordings/{name}", h.withMetrics("/recordings/{name}", h.handleDownload))
	mux.HandleFunc("POST /recordings/{name}/play", h.withMetrics("/recordings/{name}/play", h.handlePlay))
	mux.HandleFunc("POST /recordings/{name}/encode", h.withMetrics("/recordings/{name}/encode", h.handleEncode))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /{$}", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *HTTPServer) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		h.logger.Error("Request failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps pipeline and manager errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, recording.ErrInvalidName), errors.Is(err, pipeline.ErrNotPCM):
		return http.StatusBadRequest
	case errors.Is(err, recording.ErrNotFound), errors.Is(err, pipeline.ErrSourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrAlreadyRecording):
		return http.StatusConflict
	case errors.Is(err, device.ErrDeviceUnavailable), errors.Is(err, recording.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.manager.Status()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    ServiceName,
			"version": Version,
		},
		"components": map[string]interface{}{
			"recorder": map[string]interface{}{
				"recording": status.Recorder.Recording,
			},
			"encoder": map[string]interface{}{
				"mode":    status.Mode,
				"pending": status.Stats.PendingEncodes,
			},
			"player": map[string]interface{}{
				"active": status.Playing,
			},
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleStatus implements the /status endpoint
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Status())
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := map[string]interface{}{
		"audio": map[string]interface{}{
			"sample_rate":           h.config.Audio.SampleRate,
			"channels":              h.config.Audio.Channels,
			"bit_depth":             h.config.Audio.BitDepth,
			"capture_block_samples": h.config.Audio.CaptureBlockSamples,
			"playback_block_bytes":  h.config.Audio.PlaybackBlockBytes,
		},
		"codec": map[string]interface{}{
			"mode":                   h.config.Codec.Mode,
			"auto_encode":            h.config.Codec.AutoEncode,
			"max_concurrent_encodes": h.config.Codec.MaxConcurrentEncodes,
		},
		"storage": map[string]interface{}{
			"recordings_dir": h.config.Storage.RecordingsDir,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, cfg)
}

// handleList implements GET /recordings
func (h *HTTPServer) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := h.manager.List()
	if err != nil {
		h.writeError(w, err)
		return
	}

	response := map[string]interface{}{
		"total":      len(entries),
		"timestamp":  time.Now().UTC(),
		"recordings": entries,
	}
	writeJSON(w, http.StatusOK, response)
}

// handleStart implements POST /recordings/start
func (h *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	path, err := h.manager.Start()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": path})
}

// handleStop implements POST /recordings/stop. Stopping while idle is not
// an error.
func (h *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	rec, err := h.manager.Stop()
	if rec == nil && err == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"stopped": false})
		return
	}

	response := map[string]interface{}{
		"stopped":   true,
		"recording": rec,
	}
	if err != nil {
		// the artifact is durable up to the failure
		response["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, response)
}

// handleDownload implements GET /recordings/{name}
func (h *HTTPServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	path, err := h.manager.Resolve(r.PathValue("name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, path)
}

// handlePlay implements POST /recordings/{name}/play?kind=pcm|c2. Playback
// runs in the background; the response only confirms it was started.
func (h *HTTPServer) handlePlay(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	kind := pipeline.Kind(r.URL.Query().Get("kind"))
	if kind != "" && kind != pipeline.KindPCM && kind != pipeline.KindContainer {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown kind %q", kind)})
		return
	}

	if err := h.manager.Play(name, kind, nil); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"playing": name})
}

// handleEncode implements POST /recordings/{name}/encode
func (h *HTTPServer) handleEncode(w http.ResponseWriter, r *http.Request) {
	res, err := h.manager.Encode(r.PathValue("name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	apiDoc := map[string]interface{}{
		"service": ServiceName,
		"version": Version,
		"endpoints": map[string]interface{}{
			"GET /":                          "API documentation",
			"GET /health":                    "Service health check",
			"GET /status":                    "Recorder, encoder and playback status",
			"GET /config":                    "Active configuration",
			"GET /recordings":                "List recordings",
			"GET /recordings/{name}":         "Download a recording",
			"POST /recordings/start":         "Start a new recording",
			"POST /recordings/stop":          "Stop the active recording",
			"POST /recordings/{name}/play":   "Play a recording (?kind=pcm|c2)",
			"POST /recordings/{name}/encode": "Encode a PCM recording to Codec2",
			"GET /metrics":                   "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}
