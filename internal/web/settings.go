package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"flightreplay/internal/config"
)

type SettingsPayload struct {
	Interval     string   `json:"interval"`
	Step         int      `json:"step"`
	TimeLayout   string   `json:"time_layout"`
	Palette      []string `json:"palette"`
	Tiles        string   `json:"tiles"`
	Zoom         int      `json:"zoom"`
	CenterLatDeg float64  `json:"center_lat_deg"`
	CenterLonDeg float64  `json:"center_lon_deg"`
	Clock        bool     `json:"clock"`
}

// SettingsPayloadIn is the strict POST schema.
//
// All fields are required (no partial updates) to avoid hidden defaults.
type SettingsPayloadIn struct {
	Interval     *string   `json:"interval"`
	Step         *int      `json:"step"`
	TimeLayout   *string   `json:"time_layout"`
	Palette      *[]string `json:"palette"`
	Tiles        *string   `json:"tiles"`
	Zoom         *int      `json:"zoom"`
	CenterLatDeg *float64  `json:"center_lat_deg"`
	CenterLonDeg *float64  `json:"center_lon_deg"`
	Clock        *bool     `json:"clock"`
}

var settingsPostKeys = []string{
	"interval",
	"step",
	"time_layout",
	"palette",
	"tiles",
	"zoom",
	"center_lat_deg",
	"center_lon_deg",
	"clock",
}

func decodeSettingsPayloadInStrict(body []byte) (SettingsPayloadIn, error) {
	dec := json.NewDecoder(bytes.NewReader(body))

	// First pass: stream tokens to enforce strict object rules and detect duplicate keys.
	allowed := make(map[string]struct{}, len(settingsPostKeys))
	for _, k := range settingsPostKeys {
		allowed[k] = struct{}{}
	}
	seen := make(map[string]struct{}, len(settingsPostKeys))

	tok, err := dec.Token()
	if err != nil {
		return SettingsPayloadIn{}, fmt.Errorf("invalid json: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return SettingsPayloadIn{}, errors.New("invalid json: expected object")
	}

	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: %w", err)
		}
		key, ok := kt.(string)
		if !ok {
			return SettingsPayloadIn{}, errors.New("invalid json: expected string key")
		}
		if _, ok := allowed[key]; !ok {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: unknown key %q", key)
		}
		if _, dup := seen[key]; dup {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: duplicate key %q", key)
		}
		seen[key] = struct{}{}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: %w", err)
		}
		if strings.TrimSpace(string(raw)) == "null" {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: %q cannot be null", key)
		}
	}

	end, err := dec.Token()
	if err != nil {
		return SettingsPayloadIn{}, fmt.Errorf("invalid json: %w", err)
	}
	delim, ok = end.(json.Delim)
	if !ok || delim != '}' {
		return SettingsPayloadIn{}, errors.New("invalid json: expected end of object")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return SettingsPayloadIn{}, errors.New("invalid json: trailing data")
	}

	for _, k := range settingsPostKeys {
		if _, ok := seen[k]; !ok {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: missing required key %q", k)
		}
	}

	// Second pass: decode into the typed struct.
	var out SettingsPayloadIn
	dec2 := json.NewDecoder(bytes.NewReader(body))
	dec2.DisallowUnknownFields()
	if err := dec2.Decode(&out); err != nil {
		return SettingsPayloadIn{}, fmt.Errorf("invalid json: %w", err)
	}
	return out, nil
}

func configToSettingsPayload(cfg config.Config) SettingsPayload {
	return SettingsPayload{
		Interval:     cfg.Replay.Interval.String(),
		Step:         cfg.Replay.Step,
		TimeLayout:   cfg.Replay.TimeLayout,
		Palette:      append([]string(nil), cfg.Map.Palette...),
		Tiles:        cfg.Map.Tiles,
		Zoom:         cfg.Map.Zoom,
		CenterLatDeg: cfg.Map.CenterLatDeg,
		CenterLonDeg: cfg.Map.CenterLonDeg,
		Clock:        cfg.Map.Clock.Enable,
	}
}

func applySettingsPayload(cfg *config.Config, p SettingsPayloadIn) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	intervalStr := strings.TrimSpace(*p.Interval)
	d, err := time.ParseDuration(intervalStr)
	if err != nil {
		return fmt.Errorf("invalid interval %q: %w", intervalStr, err)
	}
	if d <= 0 {
		return errors.New("interval must be > 0")
	}
	if *p.Step <= 0 {
		return errors.New("step must be > 0")
	}
	if strings.TrimSpace(*p.TimeLayout) == "" {
		return errors.New("time_layout must be non-empty")
	}
	if len(*p.Palette) == 0 {
		return errors.New("palette must be non-empty")
	}
	if *p.Zoom <= 0 {
		return errors.New("zoom must be > 0")
	}

	cfg.Replay.Interval = d
	cfg.Replay.Step = *p.Step
	cfg.Replay.TimeLayout = strings.TrimSpace(*p.TimeLayout)
	cfg.Map.Palette = append([]string(nil), (*p.Palette)...)
	cfg.Map.Tiles = strings.TrimSpace(*p.Tiles)
	cfg.Map.Zoom = *p.Zoom
	cfg.Map.CenterLatDeg = *p.CenterLatDeg
	cfg.Map.CenterLonDeg = *p.CenterLonDeg
	cfg.Map.Clock.Enable = *p.Clock
	return nil
}

type SettingsStore struct {
	ConfigPath string
	// Apply, when set, is called after validation and before saving.
	// If Apply returns an error, the config is not saved.
	Apply func(cfg config.Config) error
}

// load reads the file without environment overrides so a save never
// persists values that only came from the environment.
func (s SettingsStore) load() (config.Config, error) {
	return config.LoadFile(s.ConfigPath)
}

func (s SettingsStore) save(cfg config.Config) error {
	if err := config.DefaultAndValidate(&cfg); err != nil {
		return err
	}
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	// Temp file in the same directory so os.Rename is atomic.
	dir := filepath.Dir(s.ConfigPath)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.ConfigPath)+".tmp.*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.ConfigPath)
}

func (s SettingsStore) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(s.ConfigPath) == "" {
			http.Error(w, "settings not available (no config path)", http.StatusNotImplemented)
			return
		}

		switch r.Method {
		case http.MethodGet:
			cfg, err := s.load()
			if err != nil {
				http.Error(w, fmt.Sprintf("load failed: %v", err), http.StatusInternalServerError)
				return
			}
			writeJSON(w, configToSettingsPayload(cfg))

		case http.MethodPost:
			if ct := strings.TrimSpace(r.Header.Get("Content-Type")); ct != "application/json" {
				http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, fmt.Sprintf("read failed: %v", err), http.StatusBadRequest)
				return
			}
			p, err := decodeSettingsPayloadInStrict(body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			oldCfg, err := s.load()
			if err != nil {
				http.Error(w, fmt.Sprintf("load failed: %v", err), http.StatusInternalServerError)
				return
			}

			cfg := oldCfg
			if err := applySettingsPayload(&cfg, p); err != nil {
				http.Error(w, fmt.Sprintf("invalid settings: %v", err), http.StatusBadRequest)
				return
			}
			if err := config.DefaultAndValidate(&cfg); err != nil {
				http.Error(w, fmt.Sprintf("invalid config: %v", err), http.StatusBadRequest)
				return
			}

			if s.Apply != nil {
				if err := s.Apply(cfg); err != nil {
					http.Error(w, fmt.Sprintf("apply failed: %v", err), http.StatusBadRequest)
					return
				}
			}

			if err := s.save(cfg); err != nil {
				// Roll back so the running session matches the file.
				if s.Apply != nil {
					_ = s.Apply(oldCfg)
				}
				http.Error(w, fmt.Sprintf("save failed: %v", err), http.StatusInternalServerError)
				return
			}
			writeJSON(w, configToSettingsPayload(cfg))

		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}
