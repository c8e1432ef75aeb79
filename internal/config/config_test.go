package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Jkjake561/RTAKRecorder/internal/codec2"
	"github.com/Jkjake561/RTAKRecorder/internal/device"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected default config to be valid, got %v", err)
	}
	if cfg.Codec.Mode != codec2.Mode2400 {
		t.Errorf("Expected default mode 2400, got %s", cfg.Codec.Mode)
	}
	if cfg.Audio.Format() != device.MonoPCM16(8000) {
		t.Errorf("Unexpected default format %+v", cfg.Audio.Format())
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "wrong sample rate",
			mutate:      func(c *Config) { c.Audio.SampleRate = 16000 },
			expectError: true,
			errorMsg:    "sample_rate must be 8000",
		},
		{
			name:        "stereo",
			mutate:      func(c *Config) { c.Audio.Channels = 2 },
			expectError: true,
			errorMsg:    "channels must be 1",
		},
		{
			name:        "24-bit",
			mutate:      func(c *Config) { c.Audio.BitDepth = 24 },
			expectError: true,
			errorMsg:    "bit_depth must be 16",
		},
		{
			name:        "capture block too small",
			mutate:      func(c *Config) { c.Audio.CaptureBlockSamples = 10 },
			expectError: true,
			errorMsg:    "capture_block_samples",
		},
		{
			name:        "odd playback block",
			mutate:      func(c *Config) { c.Audio.PlaybackBlockBytes = 1601 },
			expectError: true,
			errorMsg:    "playback_block_bytes",
		},
		{
			name:        "unsupported mode",
			mutate:      func(c *Config) { c.Codec.Mode = codec2.Mode(12) },
			expectError: true,
			errorMsg:    "codec config",
		},
		{
			name:        "no encode workers",
			mutate:      func(c *Config) { c.Codec.MaxConcurrentEncodes = 0 },
			expectError: true,
			errorMsg:    "max_concurrent_encodes",
		},
		{
			name:        "empty recordings dir",
			mutate:      func(c *Config) { c.Storage.RecordingsDir = "  " },
			expectError: true,
			errorMsg:    "recordings_dir cannot be empty",
		},
		{
			name: "invalid http port",
			mutate: func(c *Config) {
				c.HTTP.Enabled = true
				c.HTTP.Port = 70000
			},
			expectError: true,
			errorMsg:    "http port must be between 1 and 65535",
		},
		{
			name: "http port ignored when disabled",
			mutate: func(c *Config) {
				c.HTTP.Enabled = false
				c.HTTP.Port = 0
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	configContent := `
audio:
  capture_block_samples: 160
  playback_block_bytes: 3200

codec:
  mode: "700C"
  auto_encode: false
  max_concurrent_encodes: 4

storage:
  recordings_dir: "/var/lib/rtak"

http:
  port: 9090
  address: "0.0.0.0"
  enabled: true

logging:
  level: "debug"
  format: "json"
  output: "stdout"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Codec.Mode != codec2.Mode700C {
		t.Errorf("Expected mode 700C, got %s", cfg.Codec.Mode)
	}
	if cfg.Codec.AutoEncode {
		t.Error("Expected auto_encode false")
	}
	if cfg.Codec.MaxConcurrentEncodes != 4 {
		t.Errorf("Expected 4 encode workers, got %d", cfg.Codec.MaxConcurrentEncodes)
	}
	if cfg.Storage.RecordingsDir != "/var/lib/rtak" {
		t.Errorf("Expected recordings dir /var/lib/rtak, got %s", cfg.Storage.RecordingsDir)
	}
	if cfg.HTTP.Port != 9090 || !cfg.HTTP.Enabled {
		t.Errorf("Unexpected http config %+v", cfg.HTTP)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Logging.Level)
	}

	// unset keys keep their defaults
	if cfg.Audio.SampleRate != 8000 || cfg.Audio.Channels != 1 {
		t.Errorf("Expected default audio format, got %+v", cfg.Audio)
	}
	if cfg.Audio.CaptureBlockSamples != 160 {
		t.Errorf("Expected capture block 160, got %d", cfg.Audio.CaptureBlockSamples)
	}
}

func TestConfigLoadInvalid(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		errorMsg string
	}{
		{
			name:     "bad yaml",
			content:  "codec: [unterminated",
			errorMsg: "failed to parse config file",
		},
		{
			name:     "unknown mode",
			content:  "codec:\n  mode: \"9600\"\n",
			errorMsg: "failed to parse config file",
		},
		{
			name:     "fails validation",
			content:  "audio:\n  sample_rate: 44100\n",
			errorMsg: "config validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write test config: %v", err)
			}
			_, err := Load(configPath)
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Expected error for nonexistent file")
	}

	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected 'failed to read config file' error, got: %v", err)
	}
}

func TestConfigLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected defaults without a file, got %v", err)
	}
	if cfg.Storage.RecordingsDir != Default().Storage.RecordingsDir {
		t.Errorf("Expected default recordings dir, got %s", cfg.Storage.RecordingsDir)
	}
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv(EnvRecordingsDir, "/tmp/takes")
	t.Setenv(EnvCodecMode, "1300")
	t.Setenv(EnvLogLevel, "WARN")
	t.Setenv(EnvHTTPPort, "8181")
	t.Setenv(EnvHTTPEnabled, "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.RecordingsDir != "/tmp/takes" {
		t.Errorf("Expected env recordings dir, got %s", cfg.Storage.RecordingsDir)
	}
	if cfg.Codec.Mode != codec2.Mode1300 {
		t.Errorf("Expected mode 1300, got %s", cfg.Codec.Mode)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected level warn, got %s", cfg.Logging.Level)
	}
	if cfg.HTTP.Port != 8181 || !cfg.HTTP.Enabled {
		t.Errorf("Expected http enabled on 8181, got %+v", cfg.HTTP)
	}
}

func TestConfigEnvOverrideErrors(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		errorMsg string
	}{
		{"bad mode", EnvCodecMode, "4800", EnvCodecMode},
		{"bad port", EnvHTTPPort, "eighty", "invalid port"},
		{"bad bool", EnvHTTPEnabled, "sometimes", "invalid boolean"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("RTAK_RECORDINGS_DIR=/srv/dotenv\n"), 0644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	// t.Setenv registers cleanup; clear it so godotenv can set the value.
	t.Setenv(EnvRecordingsDir, "")
	os.Unsetenv(EnvRecordingsDir)

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("Expected missing .env to be ignored, got %v", err)
	}
	if err := LoadDotEnv(envPath); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.RecordingsDir != "/srv/dotenv" {
		t.Errorf("Expected recordings dir from .env, got %s", cfg.Storage.RecordingsDir)
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		config      LoggingConfig
		expectError bool
	}{
		{"valid json", LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, false},
		{"valid text", LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}, false},
		{"file output", LoggingConfig{Level: "error", Format: "json", Output: "/var/log/rtak.log"}, false},
		{"invalid level", LoggingConfig{Level: "trace", Format: "json", Output: "stdout"}, true},
		{"invalid format", LoggingConfig{Level: "info", Format: "xml", Output: "stdout"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError && err == nil {
				t.Errorf("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}
