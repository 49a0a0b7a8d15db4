package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "0.0.0.0",
		},
		Capture: CaptureConfig{
			SampleRate:  48000,
			Channels:    2,
			ChunkSize:   1024,
			UDPPort:     4444,
			BindAddress: "0.0.0.0",
			BufferSize:  65536,
			QueueDepth:  256,
			Workers:     4,
			ReadTimeout: 1,
		},
		VAD: VADConfig{
			SilenceRMSThreshold:    0.01,
			MinSpeechSeconds:       0.5,
			SilenceDurationSeconds: 0.8,
		},
		ASR: ASRConfig{
			Endpoint:      "http://localhost:9000/v1/audio/transcriptions",
			SampleRate:    16000,
			Timeout:       30,
			MaxRetries:    3,
			MaxConcurrent: 4,
			Language:      "en",
			Model:         "whisper-1",
		},
		Session: SessionConfig{
			StopGrace: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "invalid http port",
			mutate:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
			errorMsg:    "port must be between 1 and 65535",
		},
		{
			name:        "empty http address",
			mutate:      func(c *Config) { c.HTTP.Address = "" },
			expectError: true,
			errorMsg:    "address cannot be empty",
		},
		{
			name:        "unsupported sample rate",
			mutate:      func(c *Config) { c.Capture.SampleRate = 12345 },
			expectError: true,
			errorMsg:    "sample_rate must be one of",
		},
		{
			name:        "too many channels",
			mutate:      func(c *Config) { c.Capture.Channels = 9 },
			expectError: true,
			errorMsg:    "channels must be between 1 and 8",
		},
		{
			name:        "chunk size too small",
			mutate:      func(c *Config) { c.Capture.ChunkSize = 16 },
			expectError: true,
			errorMsg:    "chunk_size must be between",
		},
		{
			name:        "threshold out of range",
			mutate:      func(c *Config) { c.VAD.SilenceRMSThreshold = 1.5 },
			expectError: true,
			errorMsg:    "silence_rms_threshold must be between 0 and 1",
		},
		{
			name:        "negative min speech",
			mutate:      func(c *Config) { c.VAD.MinSpeechSeconds = -0.5 },
			expectError: true,
			errorMsg:    "min_speech_seconds must be positive",
		},
		{
			name:        "empty asr endpoint",
			mutate:      func(c *Config) { c.ASR.Endpoint = "" },
			expectError: true,
			errorMsg:    "endpoint cannot be empty",
		},
		{
			name:        "negative retries",
			mutate:      func(c *Config) { c.ASR.MaxRetries = -1 },
			expectError: true,
			errorMsg:    "max_retries cannot be negative",
		},
		{
			name:        "zero stop grace",
			mutate:      func(c *Config) { c.Session.StopGrace = 0 },
			expectError: true,
			errorMsg:    "stop_grace must be at least 1",
		},
		{
			name:        "bad log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
http:
  port: 8080
  address: "0.0.0.0"
capture:
  sample_rate: 48000
  channels: 2
  chunk_size: 1024
  udp_port: 4444
  bind_address: "0.0.0.0"
  buffer_size: 65536
  queue_depth: 256
  workers: 4
  read_timeout: 1
vad:
  silence_rms_threshold: 0.01
  min_speech_seconds: 0.5
  silence_duration_seconds: 0.8
asr:
  endpoint: "http://localhost:9000/v1/audio/transcriptions"
  sample_rate: 16000
  timeout: 30
  max_retries: 3
  max_concurrent: 4
  language: "en"
  model: "whisper-1"
session:
  stop_grace: 30
logging:
  level: "info"
  format: "json"
  output: "stdout"
`,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
capture:
  sample_rate: 48000
  channels: not_a_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "missing required fields",
			configYAML: `
http:
  port: 8080
  # missing address
`,
			expectError: true,
			errorMsg:    "address cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if config == nil {
					t.Errorf("Expected config to be loaded but got nil")
				}
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Fatalf("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestAPIKeyEnvOverride(t *testing.T) {
	tempDir := t.TempDir()

	configYAML := `
http:
  port: 8080
  address: "0.0.0.0"
capture:
  sample_rate: 48000
  channels: 2
  chunk_size: 1024
  udp_port: 4444
  bind_address: "0.0.0.0"
  buffer_size: 65536
  queue_depth: 256
  workers: 4
  read_timeout: 1
vad:
  silence_rms_threshold: 0.01
  min_speech_seconds: 0.5
  silence_duration_seconds: 0.8
asr:
  endpoint: "http://localhost:9000/v1/audio/transcriptions"
  api_key: "from-file"
  sample_rate: 16000
  timeout: 30
  max_retries: 3
  max_concurrent: 4
session:
  stop_grace: 30
logging:
  level: "info"
  format: "json"
  output: "stdout"
`

	configPath := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	t.Setenv("TRANSCRIPTION_API_KEY", "from-env")

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config.ASR.APIKey != "from-env" {
		t.Errorf("Expected api key 'from-env', got '%s'", config.ASR.APIKey)
	}
}

func TestDurationHelpers(t *testing.T) {
	capture := CaptureConfig{ReadTimeout: 2}
	if got := capture.GetReadTimeoutDuration(); got != 2*time.Second {
		t.Errorf("Expected 2s read timeout, got %v", got)
	}

	asr := ASRConfig{Timeout: 30}
	if got := asr.GetTimeoutDuration(); got != 30*time.Second {
		t.Errorf("Expected 30s asr timeout, got %v", got)
	}

	session := SessionConfig{StopGrace: 15}
	if got := session.GetStopGraceDuration(); got != 15*time.Second {
		t.Errorf("Expected 15s stop grace, got %v", got)
	}
}
