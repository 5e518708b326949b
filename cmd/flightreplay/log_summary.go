package main

import (
	"fmt"
	"io"
	"strings"

	"flightreplay/internal/config"
	"flightreplay/internal/flightlog"
	"flightreplay/internal/playback"
)

func printLogSummary(w io.Writer, cfg config.Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	settings, err := playback.SettingsFromConfig(cfg)
	if err != nil {
		return err
	}
	l, err := flightlog.Load(path, settings.Load)
	if err != nil {
		return err
	}

	s := l.Summary()
	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprint(w, s.String())
	if s.Bounds != nil {
		b := s.Bounds
		fmt.Fprintf(w, "bounds: %.4f,%.4f %.4f,%.4f\n", b.SW.Lat, b.SW.Long, b.NE.Lat, b.NE.Long)
	}
	return nil
}
