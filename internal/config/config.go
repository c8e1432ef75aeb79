package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Jkjake561/RTAKRecorder/internal/codec2"
	"github.com/Jkjake561/RTAKRecorder/internal/device"
)

// Environment variables that override the file
const (
	EnvRecordingsDir = "RTAK_RECORDINGS_DIR"
	EnvCodecMode     = "RTAK_CODEC_MODE"
	EnvLogLevel      = "RTAK_LOG_LEVEL"
	EnvHTTPPort      = "RTAK_HTTP_PORT"
	EnvHTTPEnabled   = "RTAK_HTTP_ENABLED"
)

// Config represents the complete recorder configuration
type Config struct {
	Audio   AudioConfig   `yaml:"audio"`
	Codec   CodecConfig   `yaml:"codec"`
	Storage StorageConfig `yaml:"storage"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// AudioConfig contains the device stream parameters
type AudioConfig struct {
	SampleRate          int `yaml:"sample_rate"`
	Channels            int `yaml:"channels"`
	BitDepth            int `yaml:"bit_depth"`
	CaptureBlockSamples int `yaml:"capture_block_samples"`
	PlaybackBlockBytes  int `yaml:"playback_block_bytes"`
}

// CodecConfig contains encode settings
type CodecConfig struct {
	Mode                 codec2.Mode `yaml:"mode"`
	AutoEncode           bool        `yaml:"auto_encode"`
	MaxConcurrentEncodes int         `yaml:"max_concurrent_encodes"`
}

// StorageConfig contains artifact locations
type StorageConfig struct {
	RecordingsDir string `yaml:"recordings_dir"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a valid configuration that records into ./recordings.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:          codec2.SampleRate,
			Channels:            1,
			BitDepth:            16,
			CaptureBlockSamples: 800,
			PlaybackBlockBytes:  1600,
		},
		Codec: CodecConfig{
			Mode:                 codec2.DefaultMode,
			AutoEncode:           true,
			MaxConcurrentEncodes: 2,
		},
		Storage: StorageConfig{
			RecordingsDir: "recordings",
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads the configuration file at path on top of Default, applies
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("environment override failed: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadDotEnv loads variables from the given .env files, or ./.env when none
// are named. Missing files are ignored; variables already set in the
// environment are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from RTAK_* environment variables.
func (c *Config) ApplyEnv() error {
	if dir := getEnv(EnvRecordingsDir, ""); dir != "" {
		c.Storage.RecordingsDir = dir
	}

	if modeStr := getEnv(EnvCodecMode, ""); modeStr != "" {
		mode, err := codec2.ParseMode(modeStr)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCodecMode, err)
		}
		c.Codec.Mode = mode
	}

	if level := getEnv(EnvLogLevel, ""); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}

	if portStr := getEnv(EnvHTTPPort, ""); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvHTTPPort, portStr)
		}
		c.HTTP.Port = port
	}

	if enabledStr := getEnv(EnvHTTPEnabled, ""); enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return fmt.Errorf("%s: invalid boolean %q", EnvHTTPEnabled, enabledStr)
		}
		c.HTTP.Enabled = enabled
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Codec.Validate(); err != nil {
		return fmt.Errorf("codec config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != codec2.SampleRate {
		return fmt.Errorf("sample_rate must be %d Hz for Codec2, got %d", codec2.SampleRate, a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono) for Codec2, got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16 for Codec2, got %d", a.BitDepth)
	}

	if a.CaptureBlockSamples < 80 || a.CaptureBlockSamples > 8000 {
		return fmt.Errorf("capture_block_samples must be between 80 and 8000, got %d", a.CaptureBlockSamples)
	}

	if a.PlaybackBlockBytes < 160 || a.PlaybackBlockBytes > 64000 || a.PlaybackBlockBytes%2 != 0 {
		return fmt.Errorf("playback_block_bytes must be an even number between 160 and 64000, got %d", a.PlaybackBlockBytes)
	}

	return nil
}

// Format returns the device format described by the audio section.
func (a *AudioConfig) Format() device.Format {
	return device.Format{SampleRate: a.SampleRate, Channels: a.Channels, BitDepth: a.BitDepth}
}

// Validate validates codec configuration
func (c *CodecConfig) Validate() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("mode %s is not supported", c.Mode)
	}

	if c.MaxConcurrentEncodes < 1 {
		return fmt.Errorf("max_concurrent_encodes must be at least 1, got %d", c.MaxConcurrentEncodes)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if strings.TrimSpace(s.RecordingsDir) == "" {
		return fmt.Errorf("recordings_dir cannot be empty")
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
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

	// Output is stdout, stderr or a file path; any non-empty value is accepted.
	return nil
}
