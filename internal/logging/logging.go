package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level string
	// Dir holds the rotating JSON log. Empty means the user config dir.
	Dir string
	// Console receives human-readable lines. Defaults to stderr.
	Console io.Writer
	// Tee, when set, receives the same lines as Console (e.g. the web log buffer).
	Tee io.Writer
	// NoFile disables the rotating file.
	NoFile bool
}

type Logger struct {
	*slog.Logger
	LogFile string

	file *lumberjack.Logger
}

func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%s: invalid log level", level)
	}
}

func New(opt Options) (*Logger, error) {
	lvl, err := ParseLevel(opt.Level)
	if err != nil {
		return nil, err
	}

	console := opt.Console
	if console == nil {
		console = os.Stderr
	}
	if opt.Tee != nil {
		console = io.MultiWriter(console, opt.Tee)
	}
	handlers := []slog.Handler{slog.NewTextHandler(console, &slog.HandlerOptions{Level: lvl})}

	l := &Logger{}
	if !opt.NoFile {
		dir := opt.Dir
		if dir == "" {
			if dir, err = os.UserConfigDir(); err != nil {
				dir = "."
			}
			dir = filepath.Join(dir, "flightreplay")
		}
		l.file = &lumberjack.Logger{
			Filename:   filepath.Join(dir, "flightreplay.slog"),
			MaxSize:    32, // MB
			MaxBackups: 2,
			MaxAge:     14,
		}
		if lvl == slog.LevelDebug {
			l.file.MaxSize = 256
		}
		l.LogFile = l.file.Filename
		handlers = append(handlers, slog.NewJSONHandler(l.file, &slog.HandlerOptions{Level: lvl}))
	}

	l.Logger = slog.New(slogmulti.Fanout(handlers...))
	return l, nil
}

// LogBuildInfo records the runtime and module versions at startup.
func (l *Logger) LogBuildInfo() {
	attrs := []any{
		slog.String("GOARCH", runtime.GOARCH),
		slog.String("GOOS", runtime.GOOS),
		slog.Int("NumCPUs", runtime.NumCPU()),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		attrs = append(attrs, slog.String("go_version", bi.GoVersion), slog.String("path", bi.Main.Path))
		var deps []any
		for _, dep := range bi.Deps {
			deps = append(deps, slog.String(dep.Path, dep.Version))
		}
		attrs = append(attrs, slog.Group("dependencies", deps...))
	}
	l.Debug("build info", attrs...)
}

func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
