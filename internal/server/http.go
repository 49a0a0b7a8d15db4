package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinivox/transcription-service/internal/asr"
	"github.com/clinivox/transcription-service/internal/capture"
	"github.com/clinivox/transcription-service/internal/config"
	"github.com/clinivox/transcription-service/internal/events"
	"github.com/clinivox/transcription-service/internal/metrics"
	"github.com/clinivox/transcription-service/internal/session"
)

// DefaultSessionID is used when a control request names no session.
const DefaultSessionID = "default"

// HTTPServer provides the control API for session lifecycle plus
// monitoring and the WebSocket push endpoint.
type HTTPServer struct {
	server    *http.Server
	logger    *slog.Logger
	config    *config.Config
	registry  *session.Registry
	ingest    *capture.Ingest
	hub       *events.Hub
	asrClient *asr.Client
	metrics   *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates the control API server.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	registry *session.Registry, ingest *capture.Ingest, hub *events.Hub,
	asrClient *asr.Client, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		registry:  registry,
		ingest:    ingest,
		hub:       hub,
		asrClient: asrClient,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Session lifecycle endpoints
	mux.HandleFunc("/api/transcription/start", h.withMetrics("/api/transcription/start", h.handleStart))
	mux.HandleFunc("/api/transcription/stop", h.withMetrics("/api/transcription/stop", h.handleStop))
	mux.HandleFunc("/api/transcription/status", h.withMetrics("/api/transcription/status", h.handleStatus))

	// WebSocket push channel (long-lived, excluded from request metrics)
	mux.HandleFunc("/ws", h.hub.HandleWS)

	// Monitoring endpoints
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

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
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

// sessionRequest is the JSON body for start/stop requests. An absent or
// empty body targets the default session.
type sessionRequest struct {
	SessionID string `json:"session_id"`
}

// readSessionID extracts the target session id from the request body,
// query string, or the default, in that order.
func readSessionID(r *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("failed to read request body: %w", err)
	}

	if len(body) > 0 {
		var req sessionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return "", fmt.Errorf("invalid JSON body: %w", err)
		}
		if req.SessionID != "" {
			return req.SessionID, nil
		}
	}

	if id := r.URL.Query().Get("session_id"); id != "" {
		return id, nil
	}

	return DefaultSessionID, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleStart implements POST /api/transcription/start
func (h *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := readSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.registry.CreateAndStart(id); err != nil {
		switch {
		case errors.Is(err, session.ErrAlreadyActive):
			writeError(w, http.StatusConflict, fmt.Sprintf("session %q is already active", id))
		case errors.Is(err, session.ErrDeviceUnavailable):
			writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("audio capture unavailable: %v", err))
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"session_id": id,
	})
}

// handleStop implements POST /api/transcription/stop
func (h *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := readSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	final, err := h.registry.Stop(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no active session %q", id))
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"session_id": id,
		"full_text":  final,
	})
}

// handleStatus implements GET /api/transcription/status. Unknown session
// ids report inactive rather than an error.
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("session_id")
	if id == "" {
		id = DefaultSessionID
	}

	writeJSON(w, http.StatusOK, h.registry.Status(id))
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	ingestStats := h.ingest.Statistics()
	asrStats := h.asrClient.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "transcription-service",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"ingest": map[string]interface{}{
				"status":           "running",
				"packets_received": ingestStats.PacketsReceived,
				"packets_routed":   ingestStats.PacketsRouted,
				"parse_errors":     ingestStats.ParseErrors,
				"open_sessions":    ingestStats.OpenSessions,
			},
			"sessions": map[string]interface{}{
				"status":       "running",
				"active_count": h.registry.ActiveCount(),
			},
			"transcription": map[string]interface{}{
				"status":          "running",
				"total_requests":  asrStats.TotalRequests,
				"success_rate":    asrStats.SuccessRate,
				"active_requests": asrStats.ActiveRequests,
			},
			"push": map[string]interface{}{
				"status":       "running",
				"client_count": h.hub.ClientCount(),
			},
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"ingest":    h.ingest.Statistics(),
		"asr":       h.asrClient.GetStats(),
		"sessions": map[string]interface{}{
			"active_count": h.registry.ActiveCount(),
		},
		"push": map[string]interface{}{
			"client_count": h.hub.ClientCount(),
		},
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Live Transcription Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"POST /api/transcription/start":  "Start a transcription session",
			"POST /api/transcription/stop":   "Stop a session and return its transcript",
			"GET /api/transcription/status":  "Report session state",
			"GET /ws":                        "WebSocket push channel for transcript updates",
			"GET /health":                    "Service health check",
			"GET /stats":                     "Service statistics",
			"GET /metrics":                   "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}
