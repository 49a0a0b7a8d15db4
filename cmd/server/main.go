package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/clinivox/transcription-service/internal/asr"
	"github.com/clinivox/transcription-service/internal/audio"
	"github.com/clinivox/transcription-service/internal/capture"
	"github.com/clinivox/transcription-service/internal/config"
	"github.com/clinivox/transcription-service/internal/events"
	"github.com/clinivox/transcription-service/internal/metrics"
	"github.com/clinivox/transcription-service/internal/server"
	"github.com/clinivox/transcription-service/internal/session"
	"github.com/clinivox/transcription-service/internal/transcript"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "transcription-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Optional .env for local development; ignored when absent
	_ = godotenv.Load()

	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("udp_port", cfg.Capture.UDPPort),
		slog.String("bind_address", cfg.Capture.BindAddress),
		slog.Int("sample_rate", cfg.Capture.SampleRate),
		slog.Int("channels", cfg.Capture.Channels),
		slog.Int("chunk_size", cfg.Capture.ChunkSize),
		slog.Float64("silence_rms_threshold", cfg.VAD.SilenceRMSThreshold),
		slog.Float64("min_speech_seconds", cfg.VAD.MinSpeechSeconds),
		slog.Float64("silence_duration_seconds", cfg.VAD.SilenceDurationSeconds),
		slog.String("asr_endpoint", cfg.ASR.Endpoint),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Event bus with a WebSocket fan-out attached
	bus := events.NewBus(logger)
	hub, err := events.NewHub(bus, logger)
	if err != nil {
		logger.Error("Failed to create push hub", slog.String("error", err.Error()))
		os.Exit(1)
	}

	asrClient, err := asr.NewClient(asr.Config{
		Endpoint:      cfg.ASR.Endpoint,
		APIKey:        cfg.ASR.APIKey,
		Timeout:       cfg.ASR.GetTimeoutDuration(),
		MaxRetries:    cfg.ASR.MaxRetries,
		MaxConcurrent: cfg.ASR.MaxConcurrent,
		Language:      cfg.ASR.Language,
		Model:         cfg.ASR.Model,
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dispatcher, err := transcript.NewDispatcher(asrClient, &audio.LinearResampler{}, cfg.ASR.SampleRate, logger)
	if err != nil {
		logger.Error("Failed to create transcript dispatcher", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ingest := capture.NewIngest(capture.IngestConfig{
		BindAddress: cfg.Capture.BindAddress,
		Port:        cfg.Capture.UDPPort,
		BufferSize:  cfg.Capture.BufferSize,
		QueueDepth:  cfg.Capture.QueueDepth,
		Workers:     cfg.Capture.Workers,
	}, logger)

	registry, err := session.NewRegistry(session.WorkerConfig{
		Channels:               cfg.Capture.Channels,
		SampleRate:             cfg.Capture.SampleRate,
		ChunkSize:              cfg.Capture.ChunkSize,
		SilenceRMSThreshold:    cfg.VAD.SilenceRMSThreshold,
		MinSpeechSeconds:       cfg.VAD.MinSpeechSeconds,
		SilenceDurationSeconds: cfg.VAD.SilenceDurationSeconds,
		ReadTimeout:            cfg.Capture.GetReadTimeoutDuration(),
		StopGrace:              cfg.Session.GetStopGraceDuration(),
	}, ingest.Open, dispatcher, bus, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create session registry", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Session registry initialized")

	httpServer := server.NewHTTPServer(cfg.HTTP, logger, cfg, registry, ingest, hub, asrClient, appMetrics)
	logger.Info("HTTP API server initialized",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	if err := ingest.Start(); err != nil {
		logger.Error("Failed to start UDP ingest", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("udp_address", fmt.Sprintf("%s:%d", cfg.Capture.BindAddress, cfg.Capture.UDPPort)),
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Drain all live sessions before cutting the audio feed so final
	// transcripts are published
	registryCtx, registryCancel := context.WithTimeout(context.Background(),
		cfg.Session.GetStopGraceDuration()+10*time.Second)
	defer registryCancel()

	if err := registry.Shutdown(registryCtx); err != nil {
		logger.Error("Error stopping sessions", slog.String("error", err.Error()))
	}

	if err := ingest.Stop(); err != nil {
		logger.Error("Error stopping UDP ingest", slog.String("error", err.Error()))
	}

	hub.Close()

	if err := asrClient.Close(); err != nil {
		logger.Error("Error closing transcription client", slog.String("error", err.Error()))
	}

	ingestStats := ingest.Statistics()
	asrStats := asrClient.GetStats()
	logger.Info("Final service statistics",
		slog.Uint64("packets_received", ingestStats.PacketsReceived),
		slog.Uint64("packets_routed", ingestStats.PacketsRouted),
		slog.Uint64("parse_errors", ingestStats.ParseErrors),
		slog.Uint64("transcription_requests", asrStats.TotalRequests),
		slog.Float64("transcription_success_rate", asrStats.SuccessRate),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
