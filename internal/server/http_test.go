package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clinivox/transcription-service/internal/asr"
	"github.com/clinivox/transcription-service/internal/audio"
	"github.com/clinivox/transcription-service/internal/capture"
	"github.com/clinivox/transcription-service/internal/config"
	"github.com/clinivox/transcription-service/internal/events"
	"github.com/clinivox/transcription-service/internal/session"
	"github.com/clinivox/transcription-service/internal/transcript"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type serverFixture struct {
	handler http.Handler
	ingest  *capture.Ingest
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	logger := testLogger()
	bus := events.NewBus(logger)

	hub, err := events.NewHub(bus, logger)
	if err != nil {
		t.Fatalf("NewHub failed: %v", err)
	}
	t.Cleanup(hub.Close)

	asrClient, err := asr.NewClient(asr.Config{
		Endpoint:      "http://localhost:1/unreachable",
		Timeout:       time.Second,
		MaxRetries:    0,
		MaxConcurrent: 1,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { asrClient.Close() })

	// Engine is never reached in these tests: no audio is fed, so no
	// segment ever dispatches.
	engine := asr.EngineFunc(func(ctx context.Context, samples []float32, sampleRate int) ([]string, error) {
		return []string{"unused"}, nil
	})

	dispatcher, err := transcript.NewDispatcher(engine, audio.NewLinearResampler(), 16000, logger)
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}

	ingest := capture.NewIngest(capture.IngestConfig{
		BindAddress: "127.0.0.1",
		Port:        0,
	}, logger)

	registry, err := session.NewRegistry(session.WorkerConfig{
		Channels:               2,
		SampleRate:             16000,
		ChunkSize:              1024,
		SilenceRMSThreshold:    0.01,
		MinSpeechSeconds:       0.5,
		SilenceDurationSeconds: 0.8,
		ReadTimeout:            50 * time.Millisecond,
		StopGrace:              time.Second,
	}, ingest.Open, dispatcher, bus, logger, nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		registry.Shutdown(ctx)
	})

	appConfig := &config.Config{
		HTTP: config.HTTPConfig{Port: 8080, Address: "127.0.0.1"},
	}

	srv := NewHTTPServer(appConfig.HTTP, logger, appConfig, registry, ingest, hub, asrClient, nil)

	return &serverFixture{handler: srv.server.Handler, ingest: ingest}
}

func (f *serverFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var payload map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("Response is not JSON: %v (body: %s)", err, rec.Body.String())
	}
	return payload
}

func TestStartStopStatusLifecycle(t *testing.T) {
	f := newServerFixture(t)

	// Fresh session reports inactive
	rec := f.do(t, http.MethodGet, "/api/transcription/status?session_id=s1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status returned %d", rec.Code)
	}
	if payload := decodeJSON(t, rec); payload["active"] != false {
		t.Errorf("Expected inactive, got %v", payload["active"])
	}

	// Start
	rec = f.do(t, http.MethodPost, "/api/transcription/start", `{"session_id":"s1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Start returned %d: %s", rec.Code, rec.Body.String())
	}
	if payload := decodeJSON(t, rec); payload["session_id"] != "s1" {
		t.Errorf("Expected session_id s1, got %v", payload["session_id"])
	}

	// Duplicate start conflicts
	rec = f.do(t, http.MethodPost, "/api/transcription/start", `{"session_id":"s1"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("Duplicate start returned %d, expected 409", rec.Code)
	}

	// Status reflects the running session
	rec = f.do(t, http.MethodGet, "/api/transcription/status?session_id=s1", "")
	if payload := decodeJSON(t, rec); payload["active"] != true {
		t.Errorf("Expected active session, got %v", payload["active"])
	}

	// Stop returns the (empty) transcript
	rec = f.do(t, http.MethodPost, "/api/transcription/stop", `{"session_id":"s1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Stop returned %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeJSON(t, rec)
	if payload["success"] != true {
		t.Errorf("Expected success, got %v", payload["success"])
	}
	if _, ok := payload["full_text"]; !ok {
		t.Error("Stop response missing full_text field")
	}

	// Second stop is a 404
	rec = f.do(t, http.MethodPost, "/api/transcription/stop", `{"session_id":"s1"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Second stop returned %d, expected 404", rec.Code)
	}
}

func TestStartDefaultsSessionID(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/transcription/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Start returned %d: %s", rec.Code, rec.Body.String())
	}

	if payload := decodeJSON(t, rec); payload["session_id"] != DefaultSessionID {
		t.Errorf("Expected default session id, got %v", payload["session_id"])
	}

	rec = f.do(t, http.MethodPost, "/api/transcription/stop", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Stop of default session returned %d", rec.Code)
	}
}

func TestStartRejectsBadJSON(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/transcription/start", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed JSON, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newServerFixture(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/transcription/start"},
		{http.MethodGet, "/api/transcription/stop"},
		{http.MethodPost, "/api/transcription/status"},
		{http.MethodPost, "/health"},
		{http.MethodDelete, "/stats"},
	}

	for _, tt := range tests {
		rec := f.do(t, tt.method, tt.path, "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s returned %d, expected 405", tt.method, tt.path, rec.Code)
		}
	}
}

func TestStatusNeverErrorsOnUnknownSession(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/transcription/status?session_id=never-started", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Status for unknown session returned %d, expected 200", rec.Code)
	}

	payload := decodeJSON(t, rec)
	if payload["active"] != false {
		t.Errorf("Expected inactive, got %v", payload["active"])
	}
	if payload["session_id"] != "never-started" {
		t.Errorf("Expected echoed session id, got %v", payload["session_id"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Health returned %d", rec.Code)
	}

	payload := decodeJSON(t, rec)
	if payload["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", payload["status"])
	}

	components, ok := payload["components"].(map[string]interface{})
	if !ok {
		t.Fatal("Health response missing components")
	}

	for _, name := range []string{"ingest", "sessions", "transcription", "push"} {
		if _, ok := components[name]; !ok {
			t.Errorf("Health response missing component %q", name)
		}
	}
}

func TestStatsEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Stats returned %d", rec.Code)
	}

	payload := decodeJSON(t, rec)
	for _, key := range []string{"uptime", "ingest", "asr", "sessions"} {
		if _, ok := payload[key]; !ok {
			t.Errorf("Stats response missing %q", key)
		}
	}
}

func TestRootEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Root returned %d", rec.Code)
	}

	payload := decodeJSON(t, rec)
	if _, ok := payload["endpoints"]; !ok {
		t.Error("Root response missing endpoint documentation")
	}

	rec = f.do(t, http.MethodGet, "/no-such-path", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Unknown path returned %d, expected 404", rec.Code)
	}
}
