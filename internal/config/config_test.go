package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"flightreplay/internal/render"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "web: {}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Web.Listen != "127.0.0.1:8080" {
		t.Fatalf("listen=%q", cfg.Web.Listen)
	}
	if cfg.Replay.Interval != 1*time.Second {
		t.Fatalf("interval=%s want 1s", cfg.Replay.Interval)
	}
	if cfg.Replay.Step != 1 {
		t.Fatalf("step=%d want 1", cfg.Replay.Step)
	}
	if cfg.Replay.TimeLayout != "15:04:05" {
		t.Fatalf("time_layout=%q", cfg.Replay.TimeLayout)
	}
	if cfg.Map.CenterLatDeg != 36.2048 || cfg.Map.CenterLonDeg != 138.2529 {
		t.Fatalf("center=(%v,%v)", cfg.Map.CenterLatDeg, cfg.Map.CenterLonDeg)
	}
	if cfg.Map.Zoom != 5 {
		t.Fatalf("zoom=%d want 5", cfg.Map.Zoom)
	}
	if cfg.Map.Tiles != "cartodb dark_matter" {
		t.Fatalf("tiles=%q", cfg.Map.Tiles)
	}
	if len(cfg.Map.Palette) != len(DefaultPalette) {
		t.Fatalf("palette=%v", cfg.Map.Palette)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("log.level=%q", cfg.Log.Level)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Replay.CacheSize != 256 {
		t.Fatalf("cache_size=%d want 256", cfg.Replay.CacheSize)
	}
}

func TestLoad_ParsesValues(t *testing.T) {
	path := writeTempConfig(t, `
web:
  listen: ":9000"
  open_browser: true
replay:
  interval: 250ms
  step: 5
  time_layout: "2006-01-02 15:04:05"
  location: "Asia/Tokyo"
map:
  center_lat_deg: 35.5
  center_lon_deg: 139.7
  zoom: 8
  tiles: "CartoDB Positron"
  palette: ["#ff0000", "#00ff00"]
  clock:
    enable: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Web.Listen != ":9000" || !cfg.Web.OpenBrowser {
		t.Fatalf("web=%+v", cfg.Web)
	}
	if cfg.Replay.Interval != 250*time.Millisecond || cfg.Replay.Step != 5 {
		t.Fatalf("replay=%+v", cfg.Replay)
	}
	if cfg.Map.Tiles != "cartodb positron" {
		t.Fatalf("tiles=%q", cfg.Map.Tiles)
	}
	if len(cfg.Map.Palette) != 2 || cfg.Map.Palette[1] != "#00ff00" {
		t.Fatalf("palette=%v", cfg.Map.Palette)
	}
	if cfg.Map.Clock.LatDeg != 35 || cfg.Map.Clock.LonDeg != 135 {
		t.Fatalf("clock=%+v", cfg.Map.Clock)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FLIGHTREPLAY_LISTEN", "0.0.0.0:7000")
	t.Setenv("FLIGHTREPLAY_INTERVAL", "2s")
	t.Setenv("FLIGHTREPLAY_OPEN_BROWSER", "true")

	path := writeTempConfig(t, "web:\n  listen: ':1'\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Web.Listen != "0.0.0.0:7000" {
		t.Fatalf("listen=%q", cfg.Web.Listen)
	}
	if cfg.Replay.Interval != 2*time.Second {
		t.Fatalf("interval=%s", cfg.Replay.Interval)
	}
	if !cfg.Web.OpenBrowser {
		t.Fatalf("expected open_browser from env")
	}
}

func TestLoadFile_IgnoresEnv(t *testing.T) {
	t.Setenv("FLIGHTREPLAY_LISTEN", "0.0.0.0:7000")
	t.Setenv("FLIGHTREPLAY_INTERVAL", "2s")

	path := writeTempConfig(t, "web:\n  listen: ':1'\n")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.Web.Listen != ":1" {
		t.Fatalf("listen=%q want %q", cfg.Web.Listen, ":1")
	}
	if cfg.Replay.Interval != time.Second {
		t.Fatalf("interval=%s want 1s", cfg.Replay.Interval)
	}
}

func TestDefaultAndValidate_AcceptsEveryTileStyle(t *testing.T) {
	for _, name := range render.TileNames() {
		var cfg Config
		cfg.Map.Tiles = name
		if err := DefaultAndValidate(&cfg); err != nil {
			t.Fatalf("tiles %q: %v", name, err)
		}
	}
}

func TestLoad_EnvInvalidInterval(t *testing.T) {
	t.Setenv("FLIGHTREPLAY_INTERVAL", "soon")
	_, err := Load("")
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"negative interval", "replay:\n  interval: -1s\n", "replay.interval must be > 0"},
		{"negative step", "replay:\n  step: -2\n", "replay.step must be > 0"},
		{"bad lat", "map:\n  center_lat_deg: 91\n  center_lon_deg: 1\n", "map.center_lat_deg must be in [-90,90]"},
		{"bad zoom", "map:\n  zoom: 30\n", "map.zoom must be in [1,19]"},
		{"bad tiles", "map:\n  tiles: stamen\n", "map.tiles \"stamen\" is not one of cartodb dark_matter, cartodb positron, openstreetmap"},
		{"blank color", "map:\n  palette: [red, ' ']\n", "map.palette[1] must be non-empty"},
		{"bad level", "log:\n  level: loud\n", "log.level \"loud\" must be one of debug, info, warn, error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempConfig(t, tc.yaml)
			_, err := Load(path)
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error")
	}
}
