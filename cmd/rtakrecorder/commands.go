package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Jkjake561/RTAKRecorder/internal/audio"
	"github.com/Jkjake561/RTAKRecorder/internal/codec2"
	"github.com/Jkjake561/RTAKRecorder/internal/container"
	"github.com/Jkjake561/RTAKRecorder/internal/metrics"
	"github.com/Jkjake561/RTAKRecorder/internal/pipeline"
	"github.com/Jkjake561/RTAKRecorder/internal/recording"
	"github.com/Jkjake561/RTAKRecorder/internal/server"
)

const shutdownTimeout = 30 * time.Second

// modeFlag parses a Codec2 mode name on the command line.
type modeFlag struct {
	mode *codec2.Mode
}

func (f modeFlag) String() string {
	if f.mode == nil {
		return ""
	}
	return f.mode.String()
}

func (f modeFlag) Set(s string) error {
	m, err := codec2.ParseMode(s)
	if err != nil {
		return err
	}
	*f.mode = m
	return nil
}

func newFlagSet(name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s %s [flags] %s\n", serviceName, name, args)
		fs.PrintDefaults()
	}
	return fs
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runRecord(a *app, args []string) error {
	fs := newFlagSet("record", "")
	duration := fs.Duration("duration", 0, "Stop after this long (0 records until interrupted)")
	noEncode := fs.Bool("no-encode", false, "Keep only the raw PCM artifact")
	dir := fs.String("dir", a.cfg.Storage.RecordingsDir, "Recordings directory")
	fs.Var(modeFlag{&a.cfg.Codec.Mode}, "mode", "Codec2 mode for the encode pass")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a.cfg.Storage.RecordingsDir = *dir
	if *noEncode {
		a.cfg.Codec.AutoEncode = false
	}

	mgr, err := a.manager()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(a.logger)
	defer cancel()

	path, err := mgr.Start()
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Recording to %s, press Ctrl+C to stop\n", path)

	var timeout <-chan time.Time
	if *duration > 0 {
		timer := time.NewTimer(*duration)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
	case <-timeout:
	case <-a.recorder.Done():
	}

	rec, stopErr := mgr.Stop()
	if rec != nil {
		fmt.Printf("%s\t%d bytes\t%s\n", rec.Path, rec.Bytes, rec.Duration)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer waitCancel()
	if err := mgr.Close(waitCtx); err != nil && stopErr == nil {
		return err
	}
	if a.cfg.Codec.AutoEncode && rec != nil {
		if st := mgr.Status(); st.LastEncode != nil {
			fmt.Printf("%s\t%d frames\t%s\n", st.LastEncode.Dest, st.LastEncode.Frames, st.LastEncode.Mode)
		}
	}
	return stopErr
}

func runEncode(a *app, args []string) error {
	fs := newFlagSet("encode", "file.pcm [file.pcm ...]")
	out := fs.String("o", "", "Output path (single input only)")
	jobs := fs.Int("jobs", a.cfg.Codec.MaxConcurrentEncodes, "Files encoded in parallel")
	chunk := fs.Int("read-chunk", audio.DefaultReadChunk, "Source read size in bytes")
	fs.Var(modeFlag{&a.cfg.Codec.Mode}, "mode", "Codec2 mode")
	if err := fs.Parse(args); err != nil {
		return err
	}
	srcs := fs.Args()
	if len(srcs) == 0 {
		fs.Usage()
		return fmt.Errorf("no input files")
	}
	if *out != "" && len(srcs) > 1 {
		return fmt.Errorf("-o needs exactly one input, got %d", len(srcs))
	}
	a.encoder.SetReadChunk(*chunk)

	results := make([]*pipeline.EncodeResult, len(srcs))
	g := new(errgroup.Group)
	g.SetLimit(max(*jobs, 1))
	for i, src := range srcs {
		dst := *out
		if dst == "" {
			dst = recording.ContainerPath(src)
		}
		g.Go(func() error {
			res, err := a.encoder.EncodeFile(src, dst, a.cfg.Codec.Mode)
			results[i] = res
			return err
		})
	}
	err := g.Wait()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, res := range results {
		if res == nil {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d frames\t%d padding\t%s\n", res.Dest, res.Mode, res.Frames, res.PaddingSamples, res.Duration)
	}
	w.Flush()
	return err
}

// resolveArtifact accepts a path, a name in the recordings directory or
// "latest".
func (a *app) resolveArtifact(arg string, kind pipeline.Kind) (string, error) {
	if st, err := os.Stat(arg); err == nil && st.Mode().IsRegular() {
		return arg, nil
	}
	mgr, err := a.manager()
	if err != nil {
		return "", err
	}
	if arg == "latest" {
		entry, err := mgr.Latest(kind)
		if err != nil {
			return "", err
		}
		arg = entry.Name
	}
	return mgr.Resolve(arg)
}

func parseKind(s string) (pipeline.Kind, error) {
	switch k := pipeline.Kind(strings.ToLower(s)); k {
	case "", pipeline.KindPCM, pipeline.KindContainer:
		return k, nil
	default:
		return "", fmt.Errorf("unknown kind %q (want pcm or c2)", s)
	}
}

func runPlay(a *app, args []string) error {
	fs := newFlagSet("play", "<file|name|latest>")
	kindStr := fs.String("kind", "", "Force pcm or c2 instead of detecting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("play takes one artifact")
	}
	kind, err := parseKind(*kindStr)
	if err != nil {
		return err
	}
	path, err := a.resolveArtifact(fs.Arg(0), kind)
	if err != nil {
		return err
	}

	res, err := a.player.PlayFile(path, kind)
	if res != nil {
		fmt.Printf("%s\t%s\t%d frames\t%s\n", path, res.Kind, res.Frames, res.Duration)
	}
	return err
}

func runInfo(a *app, args []string) error {
	fs := newFlagSet("info", "file [file ...]")
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("no input files")
	}

	var errs []error
	var infos []interface{}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, path := range fs.Args() {
		kind, err := pipeline.DetectKind(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if kind == pipeline.KindContainer {
			info, err := container.Inspect(path)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			infos = append(infos, info)
			state := "complete"
			if !info.Complete() {
				state = fmt.Sprintf("%d trailing bytes", info.TrailingBytes)
			}
			fmt.Fprintf(w, "%s\tc2 v%s\tmode %s\t%d frames\t%s\t%s\n", path, info.Version, info.Mode, info.Frames, info.Duration, state)
			continue
		}

		st, err := os.Stat(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		d := audio.PCMDuration(st.Size(), a.cfg.Audio.SampleRate)
		infos = append(infos, map[string]interface{}{
			"path":       path,
			"kind":       kind,
			"size_bytes": st.Size(),
			"duration":   d,
		})
		fmt.Fprintf(w, "%s\tpcm\t%d Hz mono s16le\t%d bytes\t%s\n", path, a.cfg.Audio.SampleRate, st.Size(), d)
	}

	if *asJSON {
		if err := printJSON(infos); err != nil {
			errs = append(errs, err)
		}
	} else {
		w.Flush()
	}
	return errors.Join(errs...)
}

func runExport(a *app, args []string) error {
	fs := newFlagSet("export", "<src> [dst.wav]")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return fmt.Errorf("export takes a source and an optional destination")
	}
	src, err := a.resolveArtifact(fs.Arg(0), "")
	if err != nil {
		return err
	}
	dst := fs.Arg(1)
	if dst == "" {
		dst = strings.TrimSuffix(src, filepath.Ext(src)) + ".wav"
	}

	res, err := a.player.ExportWAV(src, dst)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%d frames\t%s\n", dst, res.Frames, res.Duration)
	return nil
}

func runList(a *app, args []string) error {
	fs := newFlagSet("list", "")
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mgr, err := a.manager()
	if err != nil {
		return err
	}
	entries, err := mgr.List()
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(entries)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tMODE\tSIZE\tDURATION")
	for _, e := range entries {
		mode := e.Mode
		if mode == "" {
			mode = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", e.Name, e.Kind, mode, e.Size, e.Duration)
	}
	return w.Flush()
}

func runServe(a *app, args []string) error {
	fs := newFlagSet("serve", "")
	addr := fs.String("addr", a.cfg.HTTP.Address, "Listen address")
	port := fs.Int("port", a.cfg.HTTP.Port, "Listen port")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a.cfg.HTTP.Address = *addr
	a.cfg.HTTP.Port = *port
	a.cfg.HTTP.Enabled = true
	if err := a.cfg.HTTP.Validate(); err != nil {
		return err
	}

	a.logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
	)

	// Initialize Prometheus metrics
	a.wire(metrics.NewMetrics(nil))
	a.logger.Info("Prometheus metrics initialized")

	mgr, err := a.manager()
	if err != nil {
		return err
	}
	a.logger.Info("Configuration loaded",
		slog.String("recordings_dir", mgr.Dir()),
		slog.String("mode", a.cfg.Codec.Mode.String()),
		slog.Bool("auto_encode", a.cfg.Codec.AutoEncode),
		slog.Int("max_concurrent_encodes", a.cfg.Codec.MaxConcurrentEncodes),
		slog.String("log_level", a.cfg.Logging.Level),
	)

	httpServer := server.NewHTTPServer(a.cfg.HTTP, a.logger, a.cfg, mgr, a.metrics, nil)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	ctx, cancel := signalContext(a.logger)
	defer cancel()
	a.logger.Info("Service started successfully, waiting for signals...")
	<-ctx.Done()

	a.logger.Info("Starting graceful shutdown...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop HTTP server first (stop accepting new requests)
	var errs []error
	if err := httpServer.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stopping HTTP server: %w", err))
	}
	if err := mgr.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("Service stopped")
	return errors.Join(errs...)
}
