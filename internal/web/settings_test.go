package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"flightreplay/internal/config"
)

func writeTempConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return p
}

func validSettingsPayload() SettingsPayloadIn {
	interval := "500ms"
	step := 2
	layout := "15:04:05"
	palette := []string{"red", "blue"}
	tiles := "openstreetmap"
	zoom := 7
	lat := 35.5
	lon := 139.7
	clock := true
	return SettingsPayloadIn{
		Interval:     &interval,
		Step:         &step,
		TimeLayout:   &layout,
		Palette:      &palette,
		Tiles:        &tiles,
		Zoom:         &zoom,
		CenterLatDeg: &lat,
		CenterLonDeg: &lon,
		Clock:        &clock,
	}
}

func TestSettingsGET(t *testing.T) {
	cfgPath := writeTempConfigFile(t, "replay:\n  interval: 2s\n  step: 3\n")

	ts := httptest.NewServer(SettingsStore{ConfigPath: cfgPath}.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/settings")
	if err != nil {
		t.Fatalf("GET /api/settings error: %v", err)
	}
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusOK)

	var got SettingsPayload
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Interval != "2s" || got.Step != 3 {
		t.Fatalf("interval=%q step=%d", got.Interval, got.Step)
	}
	if got.Tiles != "cartodb dark_matter" || got.Zoom != 5 || len(got.Palette) != len(config.DefaultPalette) {
		t.Fatalf("settings=%+v", got)
	}
}

func TestSettings_NoConfigPath(t *testing.T) {
	ts := httptest.NewServer(SettingsStore{}.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/settings")
	if err != nil {
		t.Fatalf("GET /api/settings error: %v", err)
	}
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusNotImplemented)
}

func TestSettingsPOST_AppliesAndSaves(t *testing.T) {
	cfgPath := writeTempConfigFile(t, "web:\n  listen: '127.0.0.1:9000'\n")

	appliedCh := make(chan config.Config, 1)
	store := SettingsStore{
		ConfigPath: cfgPath,
		Apply: func(cfg config.Config) error {
			appliedCh <- cfg
			return nil
		},
	}

	ts := httptest.NewServer(store.Handler())
	defer ts.Close()

	b, _ := json.Marshal(validSettingsPayload())
	resp, err := http.Post(ts.URL+"/api/settings", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST /api/settings error: %v", err)
	}
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusOK)

	select {
	case got := <-appliedCh:
		if got.Replay.Interval != 500*time.Millisecond || got.Replay.Step != 2 {
			t.Fatalf("applied interval=%s step=%d", got.Replay.Interval, got.Replay.Step)
		}
		if got.Map.Tiles != "openstreetmap" || got.Map.Zoom != 7 || !got.Map.Clock.Enable {
			t.Fatalf("applied map=%+v", got.Map)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("Apply was not called")
	}

	saved, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("reload saved config: %v", err)
	}
	if saved.Web.Listen != "127.0.0.1:9000" {
		t.Fatalf("listen=%q (untouched keys must survive)", saved.Web.Listen)
	}
	if saved.Replay.Interval != 500*time.Millisecond {
		t.Fatalf("saved interval=%s", saved.Replay.Interval)
	}
	if strings.Join(saved.Map.Palette, ",") != "red,blue" {
		t.Fatalf("saved palette=%v", saved.Map.Palette)
	}
	if saved.Map.CenterLatDeg != 35.5 || saved.Map.CenterLonDeg != 139.7 {
		t.Fatalf("saved center=%v,%v", saved.Map.CenterLatDeg, saved.Map.CenterLonDeg)
	}
}

func TestSettingsPOST_DoesNotPersistEnvOverrides(t *testing.T) {
	t.Setenv("FLIGHTREPLAY_LISTEN", "0.0.0.0:7000")
	t.Setenv("FLIGHTREPLAY_LOG_LEVEL", "debug")
	cfgPath := writeTempConfigFile(t, "web:\n  listen: '127.0.0.1:9000'\n")

	ts := httptest.NewServer(SettingsStore{ConfigPath: cfgPath}.Handler())
	defer ts.Close()

	b, _ := json.Marshal(validSettingsPayload())
	resp, err := http.Post(ts.URL+"/api/settings", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST /api/settings error: %v", err)
	}
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusOK)

	saved, err := config.LoadFile(cfgPath)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if saved.Web.Listen != "127.0.0.1:9000" {
		t.Fatalf("listen=%q want the file value", saved.Web.Listen)
	}
	if saved.Log.Level != "info" {
		t.Fatalf("log level=%q want info", saved.Log.Level)
	}
	if saved.Replay.Interval != 500*time.Millisecond {
		t.Fatalf("interval=%s want 500ms", saved.Replay.Interval)
	}
}

func TestSettingsPOST_ApplyFailureDoesNotSave(t *testing.T) {
	orig := "replay:\n  interval: 3s\n"
	cfgPath := writeTempConfigFile(t, orig)

	store := SettingsStore{
		ConfigPath: cfgPath,
		Apply: func(cfg config.Config) error {
			return errors.New("boom")
		},
	}
	ts := httptest.NewServer(store.Handler())
	defer ts.Close()

	b, _ := json.Marshal(validSettingsPayload())
	resp, err := http.Post(ts.URL+"/api/settings", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST /api/settings error: %v", err)
	}
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusBadRequest)

	after, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(after) != orig {
		t.Fatalf("config was modified on apply failure: %q", string(after))
	}
}

func TestSettingsPOST_Rejected(t *testing.T) {
	cfgPath := writeTempConfigFile(t, "")
	ts := httptest.NewServer(SettingsStore{ConfigPath: cfgPath}.Handler())
	defer ts.Close()

	full, _ := json.Marshal(validSettingsPayload())

	var partial map[string]any
	_ = json.Unmarshal(full, &partial)
	delete(partial, "interval")
	missing, _ := json.Marshal(partial)

	var unknown map[string]any
	_ = json.Unmarshal(full, &unknown)
	unknown["color"] = "red"
	extra, _ := json.Marshal(unknown)

	badStep := validSettingsPayload()
	zero := 0
	badStep.Step = &zero
	step0, _ := json.Marshal(badStep)

	badTiles := validSettingsPayload()
	nope := "nope"
	badTiles.Tiles = &nope
	tiles, _ := json.Marshal(badTiles)

	emptyPalette := validSettingsPayload()
	none := []string{}
	emptyPalette.Palette = &none
	palette, _ := json.Marshal(emptyPalette)

	dup := strings.Replace(string(full), `"step":2`, `"step":2,"step":3`, 1)

	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing", string(missing), `missing required key "interval"`},
		{"unknown", string(extra), `unknown key "color"`},
		{"duplicate", dup, `duplicate key "step"`},
		{"null", strings.Replace(string(full), `"zoom":7`, `"zoom":null`, 1), `"zoom" cannot be null`},
		{"step", string(step0), "step must be > 0"},
		{"palette", string(palette), "palette must be non-empty"},
		{"tiles", string(tiles), `map.tiles "nope"`},
		{"trailing", string(full) + "{}", "trailing data"},
		{"array", "[]", "expected object"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/settings", "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("POST /api/settings error: %v", err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status=%d want %d body=%s", resp.StatusCode, http.StatusBadRequest, string(body))
			}
			if !strings.Contains(string(body), tc.want) {
				t.Fatalf("body=%q want substring %q", string(body), tc.want)
			}
		})
	}
}

func TestSettingsPOST_RequiresJSON(t *testing.T) {
	cfgPath := writeTempConfigFile(t, "")
	ts := httptest.NewServer(SettingsStore{ConfigPath: cfgPath}.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/settings", "text/plain", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST /api/settings error: %v", err)
	}
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusUnsupportedMediaType)
}
