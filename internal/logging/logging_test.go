package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	for _, lvl := range []string{"", "debug", "info", "warn", "error"} {
		if _, err := ParseLevel(lvl); err != nil {
			t.Fatalf("ParseLevel(%q) error: %v", lvl, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNew_ConsoleAndTee(t *testing.T) {
	var console, tee bytes.Buffer
	l, err := New(Options{Level: "info", Console: &console, Tee: &tee, NoFile: true})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	l.Debug("hidden")
	l.Info("loaded", "flights", 2)

	for name, buf := range map[string]*bytes.Buffer{"console": &console, "tee": &tee} {
		s := buf.String()
		if !strings.Contains(s, "msg=loaded") || !strings.Contains(s, "flights=2") {
			t.Fatalf("%s=%q", name, s)
		}
		if strings.Contains(s, "hidden") {
			t.Fatalf("%s contains debug line", name)
		}
	}
}

func TestNew_RotatingFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	l, err := New(Options{Level: "debug", Dir: dir, Console: &console})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	l.With("component", "test").Warn("tick overran", "index", 7)
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	b, err := os.ReadFile(l.LogFile)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(b), &rec); err != nil {
		t.Fatalf("log file is not one JSON record: %v (%q)", err, b)
	}
	if rec["msg"] != "tick overran" || rec["component"] != "test" || rec["index"] != float64(7) {
		t.Fatalf("record=%v", rec)
	}
}

func TestNew_FansOutToConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	l, err := New(Options{Level: "info", Dir: t.TempDir(), Console: &console})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	l.WithGroup("session").Info("opened", "flights", 3)
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	if s := console.String(); !strings.Contains(s, "session.flights=3") {
		t.Fatalf("console=%q", s)
	}
	b, err := os.ReadFile(l.LogFile)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(b), &rec); err != nil {
		t.Fatalf("log file is not one JSON record: %v (%q)", err, b)
	}
	group, _ := rec["session"].(map[string]any)
	if rec["msg"] != "opened" || group["flights"] != float64(3) {
		t.Fatalf("record=%v", rec)
	}
}
