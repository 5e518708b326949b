package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ncruces/zenity"
	"github.com/pkg/browser"
	"golang.org/x/sync/errgroup"

	"flightreplay/internal/config"
	"flightreplay/internal/logging"
	"flightreplay/internal/playback"
	"flightreplay/internal/web"
)

func main() {
	var (
		configPath  string
		filePath    string
		summaryPath string
	)
	flag.StringVar(&configPath, "config", "", "Path to YAML config (empty uses defaults)")
	flag.StringVar(&filePath, "file", "", "Flight log CSV to open at startup")
	flag.StringVar(&summaryPath, "summary", "", "Print a summary of a flight log CSV and exit")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if strings.TrimSpace(summaryPath) != "" {
		if err := printLogSummary(os.Stdout, cfg, summaryPath); err != nil {
			log.Fatalf("summary failed: %v", err)
		}
		return
	}

	if filePath != "" {
		cfg.Replay.File = filePath
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cancel, cfg, configPath, os.Stderr); err != nil {
		log.Fatalf("flightreplay: %v", err)
	}
}

// run wires the session, the HTTP server and the desktop hooks, and blocks
// until ctx is done or one of them fails.
func run(ctx context.Context, cancel context.CancelFunc, cfg config.Config, configPath string, console io.Writer) error {
	logs := web.NewLogBuffer(2000)
	logger, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Dir:     cfg.Log.Dir,
		Console: console,
		Tee:     logs,
	})
	if err != nil {
		return fmt.Errorf("logging init: %w", err)
	}
	defer logger.Close()
	logger.LogBuildInfo()

	settings, err := playback.SettingsFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	session, err := playback.New(settings, cfg.Replay.CacheSize, logger.Logger)
	if err != nil {
		return fmt.Errorf("session init: %w", err)
	}
	if cfg.Replay.File != "" {
		// A bad startup file is not fatal; the viewer can open another.
		if err := session.Open(cfg.Replay.File); err != nil {
			logger.Warn("startup file not loaded", "path", cfg.Replay.File, "err", err)
		}
	}

	resolvedConfigPath := ""
	if configPath != "" {
		if abs, err := filepath.Abs(configPath); err == nil {
			resolvedConfigPath = abs
		} else {
			resolvedConfigPath = configPath
		}
	}

	status := web.NewStatus()
	status.SetStatic(cfg.Web.Listen, resolvedConfigPath, logger.LogFile)

	store := web.SettingsStore{
		ConfigPath: resolvedConfigPath,
		Apply: func(next config.Config) error {
			s, err := playback.SettingsFromConfig(next)
			if err != nil {
				return err
			}
			if err := session.Apply(s); err != nil {
				return err
			}
			logger.Info("settings applied", "interval", s.Interval, "step", s.Step, "tiles", s.Map.Tiles)
			return nil
		},
	}

	actions := web.Actions{
		Exit: func() {
			logger.Info("exit requested")
			cancel()
		},
	}
	if cfg.Web.FileDialog {
		actions.PickFile = pickFile
	}

	handler := web.Handler(session, status, store, logs, actions)

	ready := func(addr string) {
		url := "http://" + addr + "/"
		logger.Info("flightreplay listening", "url", url)
		if cfg.Web.OpenBrowser {
			if err := browser.OpenURL(url); err != nil {
				logger.Warn("open browser failed", "err", err)
			}
		}
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return web.Serve(ctx, cfg.Web.Listen, handler, ready)
	})
	eg.Go(func() error {
		return session.Run(ctx)
	})

	err = eg.Wait()
	logger.Info("flightreplay stopping")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func pickFile(ctx context.Context) (string, error) {
	return zenity.SelectFile(
		zenity.Context(ctx),
		zenity.Title("Open Flight Log"),
		zenity.FileFilters{
			{
				Name:     "CSV Files",
				Patterns: []string{"*.csv"},
			},
		},
	)
}
