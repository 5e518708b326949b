package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"flightreplay/internal/render"
)

type Config struct {
	Web    WebConfig    `yaml:"web"`
	Replay ReplayConfig `yaml:"replay"`
	Map    MapConfig    `yaml:"map"`
	Log    LogConfig    `yaml:"log"`
}

type WebConfig struct {
	Listen      string `yaml:"listen"`
	OpenBrowser bool   `yaml:"open_browser"`
	FileDialog  bool   `yaml:"file_dialog"`
}

type ReplayConfig struct {
	// File is loaded at startup when set.
	File     string        `yaml:"file"`
	Interval time.Duration `yaml:"interval"`
	Step     int           `yaml:"step"`
	// TimeLayout is a Go time layout for the first CSV column.
	TimeLayout string `yaml:"time_layout"`
	Location   string `yaml:"location"`
	CacheSize  int    `yaml:"cache_size"`
}

type MapConfig struct {
	CenterLatDeg float64     `yaml:"center_lat_deg"`
	CenterLonDeg float64     `yaml:"center_lon_deg"`
	Zoom         int         `yaml:"zoom"`
	Tiles        string      `yaml:"tiles"`
	Palette      []string    `yaml:"palette"`
	Clock        ClockConfig `yaml:"clock"`
}

type ClockConfig struct {
	Enable bool    `yaml:"enable"`
	LatDeg float64 `yaml:"lat_deg"`
	LonDeg float64 `yaml:"lon_deg"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}


var DefaultPalette = []string{"blue", "red", "green", "purple", "orange", "brown"}

// Load reads the YAML config at path, applies .env / environment overrides
// and fills defaults. A missing path yields a default config.
func Load(path string) (Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return Config{}, err
	}

	// .env is optional.
	_ = godotenv.Load()
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile is Load without the environment overrides: the config as the
// file alone describes it. Use it when the result is written back.
func LoadFile(path string) (Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("FLIGHTREPLAY_LISTEN"); v != "" {
		cfg.Web.Listen = v
	}
	if v := os.Getenv("FLIGHTREPLAY_FILE"); v != "" {
		cfg.Replay.File = v
	}
	if v := os.Getenv("FLIGHTREPLAY_TIME_LAYOUT"); v != "" {
		cfg.Replay.TimeLayout = v
	}
	if v := os.Getenv("FLIGHTREPLAY_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FLIGHTREPLAY_INTERVAL: %w", err)
		}
		cfg.Replay.Interval = d
	}
	if v := os.Getenv("FLIGHTREPLAY_OPEN_BROWSER"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FLIGHTREPLAY_OPEN_BROWSER: %w", err)
		}
		cfg.Web.OpenBrowser = b
	}
	if v := os.Getenv("FLIGHTREPLAY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FLIGHTREPLAY_LOG_DIR"); v != "" {
		cfg.Log.Dir = v
	}
	return nil
}

// DefaultAndValidate fills zero values with defaults and rejects invalid settings.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if strings.TrimSpace(cfg.Web.Listen) == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}

	if cfg.Replay.Interval == 0 {
		cfg.Replay.Interval = 1 * time.Second
	}
	if cfg.Replay.Interval < 0 {
		return fmt.Errorf("replay.interval must be > 0")
	}
	if cfg.Replay.Step == 0 {
		cfg.Replay.Step = 1
	}
	if cfg.Replay.Step < 0 {
		return fmt.Errorf("replay.step must be > 0")
	}
	if strings.TrimSpace(cfg.Replay.TimeLayout) == "" {
		cfg.Replay.TimeLayout = "15:04:05"
	}
	if cfg.Replay.Location == "" {
		cfg.Replay.Location = "UTC"
	}
	if _, err := time.LoadLocation(cfg.Replay.Location); err != nil {
		return fmt.Errorf("replay.location %q: %w", cfg.Replay.Location, err)
	}
	if cfg.Replay.CacheSize <= 0 {
		cfg.Replay.CacheSize = 256
	}

	// Default view is centred on Japan, where the recorder runs.
	if cfg.Map.CenterLatDeg == 0 && cfg.Map.CenterLonDeg == 0 {
		cfg.Map.CenterLatDeg = 36.2048
		cfg.Map.CenterLonDeg = 138.2529
	}
	if cfg.Map.CenterLatDeg < -90 || cfg.Map.CenterLatDeg > 90 {
		return fmt.Errorf("map.center_lat_deg must be in [-90,90]")
	}
	if cfg.Map.CenterLonDeg < -180 || cfg.Map.CenterLonDeg > 180 {
		return fmt.Errorf("map.center_lon_deg must be in [-180,180]")
	}
	if cfg.Map.Zoom == 0 {
		cfg.Map.Zoom = 5
	}
	if cfg.Map.Zoom < 0 || cfg.Map.Zoom > 19 {
		return fmt.Errorf("map.zoom must be in [1,19]")
	}
	if cfg.Map.Tiles == "" {
		cfg.Map.Tiles = "cartodb dark_matter"
	}
	cfg.Map.Tiles = strings.ToLower(strings.TrimSpace(cfg.Map.Tiles))
	if _, err := render.LookupTiles(cfg.Map.Tiles); err != nil {
		return fmt.Errorf("map.tiles %q is not one of %s", cfg.Map.Tiles, strings.Join(render.TileNames(), ", "))
	}
	if len(cfg.Map.Palette) == 0 {
		cfg.Map.Palette = append([]string(nil), DefaultPalette...)
	}
	for i, c := range cfg.Map.Palette {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("map.palette[%d] must be non-empty", i)
		}
	}
	if cfg.Map.Clock.Enable && cfg.Map.Clock.LatDeg == 0 && cfg.Map.Clock.LonDeg == 0 {
		cfg.Map.Clock.LatDeg = 35
		cfg.Map.Clock.LonDeg = 135
	}

	switch cfg.Log.Level {
	case "":
		cfg.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be one of debug, info, warn, error", cfg.Log.Level)
	}

	return nil
}
