package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Capture CaptureConfig `yaml:"capture"`
	VAD     VADConfig     `yaml:"vad"`
	ASR     ASRConfig     `yaml:"asr"`
	Session SessionConfig `yaml:"session"`
	Logging LoggingConfig `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
}

// CaptureConfig contains audio capture and UDP ingest configuration
type CaptureConfig struct {
	SampleRate  int    `yaml:"sample_rate"`  // Hz
	Channels    int    `yaml:"channels"`
	ChunkSize   int    `yaml:"chunk_size"`   // samples per channel
	UDPPort     int    `yaml:"udp_port"`
	BindAddress string `yaml:"bind_address"`
	BufferSize  int    `yaml:"buffer_size"`  // bytes, UDP socket buffer
	QueueDepth  int    `yaml:"queue_depth"`  // frames per session queue
	Workers     int    `yaml:"workers"`      // packet processing goroutines
	ReadTimeout int    `yaml:"read_timeout"` // seconds, per frame wait
}

// VADConfig contains voice activity detection parameters
type VADConfig struct {
	SilenceRMSThreshold    float64 `yaml:"silence_rms_threshold"`
	MinSpeechSeconds       float64 `yaml:"min_speech_seconds"`
	SilenceDurationSeconds float64 `yaml:"silence_duration_seconds"`
}

// ASRConfig contains transcription engine configuration
type ASRConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"` // optional, overridden by TRANSCRIPTION_API_KEY
	SampleRate    int    `yaml:"sample_rate"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	Language      string `yaml:"language"`
	Model         string `yaml:"model"`
}

// SessionConfig contains session lifecycle configuration
type SessionConfig struct {
	StopGrace int `yaml:"stop_grace"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if key := os.Getenv("TRANSCRIPTION_API_KEY"); key != "" {
		config.ASR.APIKey = key
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.ASR.Validate(); err != nil {
		return fmt.Errorf("asr config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	validRates := map[int]bool{8000: true, 16000: true, 22050: true, 44100: true, 48000: true}
	if !validRates[c.SampleRate] {
		return fmt.Errorf("sample_rate must be one of [8000, 16000, 22050, 44100, 48000], got %d", c.SampleRate)
	}

	if c.Channels < 1 || c.Channels > 8 {
		return fmt.Errorf("channels must be between 1 and 8, got %d", c.Channels)
	}

	if c.ChunkSize < 64 || c.ChunkSize > 8192 {
		return fmt.Errorf("chunk_size must be between 64 and 8192 samples, got %d", c.ChunkSize)
	}

	if c.UDPPort < 1 || c.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", c.UDPPort)
	}

	if c.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if c.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", c.BufferSize)
	}

	if c.QueueDepth < 1 {
		return fmt.Errorf("queue_depth must be at least 1, got %d", c.QueueDepth)
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	if c.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 second, got %d", c.ReadTimeout)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.SilenceRMSThreshold <= 0 || v.SilenceRMSThreshold >= 1 {
		return fmt.Errorf("silence_rms_threshold must be between 0 and 1 (exclusive), got %f", v.SilenceRMSThreshold)
	}

	if v.MinSpeechSeconds <= 0 {
		return fmt.Errorf("min_speech_seconds must be positive, got %f", v.MinSpeechSeconds)
	}

	if v.SilenceDurationSeconds <= 0 {
		return fmt.Errorf("silence_duration_seconds must be positive, got %f", v.SilenceDurationSeconds)
	}

	return nil
}

// Validate validates ASR configuration
func (a *ASRConfig) Validate() error {
	if a.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	validRates := map[int]bool{8000: true, 16000: true, 22050: true, 44100: true, 48000: true}
	if !validRates[a.SampleRate] {
		return fmt.Errorf("sample_rate must be one of [8000, 16000, 22050, 44100, 48000], got %d", a.SampleRate)
	}

	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}

	if a.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", a.MaxRetries)
	}

	if a.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", a.MaxConcurrent)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.StopGrace < 1 {
		return fmt.Errorf("stop_grace must be at least 1 second, got %d", s.StopGrace)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetReadTimeoutDuration returns the per-frame read timeout as a time.Duration
func (c *CaptureConfig) GetReadTimeoutDuration() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Second
}

// GetTimeoutDuration returns the ASR request timeout as a time.Duration
func (a *ASRConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// GetStopGraceDuration returns the session stop grace as a time.Duration
func (s *SessionConfig) GetStopGraceDuration() time.Duration {
	return time.Duration(s.StopGrace) * time.Second
}
