package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/Jkjake561/RTAKRecorder/internal/codec2"
	"github.com/Jkjake561/RTAKRecorder/internal/config"
	"github.com/Jkjake561/RTAKRecorder/internal/device/miniaudio"
	"github.com/Jkjake561/RTAKRecorder/internal/device/speaker"
	"github.com/Jkjake561/RTAKRecorder/internal/metrics"
	"github.com/Jkjake561/RTAKRecorder/internal/pipeline"
	"github.com/Jkjake561/RTAKRecorder/internal/recording"
	"github.com/Jkjake561/RTAKRecorder/internal/server"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "rtakrecorder"
	serviceVersion    = "1.0.0"
)

type command struct {
	name    string
	summary string
	run     func(a *app, args []string) error
}

var commands = []command{
	{"record", "capture from the default input device until interrupted", runRecord},
	{"encode", "encode raw PCM files into Codec2 containers", runEncode},
	{"play", "play a PCM or .c2 artifact on the default output device", runPlay},
	{"info", "describe PCM and .c2 artifacts", runInfo},
	{"export", "convert an artifact to a 16-bit WAV file", runExport},
	{"list", "list the recordings directory", runList},
	{"serve", "run the HTTP control API", runServe},
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [flags] <command> [args]\n\nCommands:\n", serviceName)
	for _, c := range commands {
		fmt.Fprintf(out, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(out, "\nFlags:\n")
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to .env file")
	logLevel := flag.String("log-level", "", "Override the configured log level")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath, isFlagSet("config"), *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
		if err := cfg.Logging.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -log-level: %v\n", err)
			os.Exit(2)
		}
	}

	logger := initLogger(cfg.Logging)
	server.Version = serviceVersion

	name := flag.Arg(0)
	for _, c := range commands {
		if c.name != name {
			continue
		}
		a := newApp(cfg, logger, nil)
		if err := c.run(a, flag.Args()[1:]); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				os.Exit(0)
			}
			logger.Error("Command failed",
				slog.String("command", name),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// loadConfig loads the .env file and the YAML file. The default config path
// is optional; an explicitly named one must exist.
func loadConfig(path string, explicit bool, envPath string) (*config.Config, error) {
	if err := config.LoadDotEnv(envPath); err != nil {
		return nil, err
	}
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	return config.Load(path)
}

// app holds the wired pipeline shared by every command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	recorder *pipeline.Recorder
	encoder  *pipeline.Encoder
	player   *pipeline.Player
}

func newApp(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *app {
	a := &app{cfg: cfg, logger: logger}
	a.wire(m)
	return a
}

// wire builds the pipeline against the native codec and the default
// devices, recording into m.
func (a *app) wire(m *metrics.Metrics) {
	format := a.cfg.Audio.Format()
	a.metrics = m
	a.recorder = pipeline.NewRecorder(miniaudio.NewOpener(a.logger), pipeline.RecorderConfig{
		Format:       format,
		BlockSamples: a.cfg.Audio.CaptureBlockSamples,
	}, a.logger, m)
	a.encoder = pipeline.NewEncoder(codec2.Native, a.logger, m)
	a.player = pipeline.NewPlayer(speaker.NewOpener(a.logger), codec2.Native, pipeline.PlayerConfig{
		Format:     format,
		BlockBytes: a.cfg.Audio.PlaybackBlockBytes,
	}, a.logger, m)
}

func (a *app) manager() (*recording.Manager, error) {
	return recording.NewManager(recording.Config{
		Dir:                  a.cfg.Storage.RecordingsDir,
		Mode:                 a.cfg.Codec.Mode,
		AutoEncode:           a.cfg.Codec.AutoEncode,
		MaxConcurrentEncodes: a.cfg.Codec.MaxConcurrentEncodes,
	}, a.recorder, a.encoder, a.player, a.logger)
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
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
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
