package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLogBuffer_PartialLinesAndSeq(t *testing.T) {
	b := NewLogBuffer(10)
	_, _ = b.Write([]byte("one\ntw"))
	_, _ = b.Write([]byte("o\n\nthree"))

	lines, dropped := b.Snapshot(0, 0)
	if dropped != 0 {
		t.Fatalf("dropped=%d want 0", dropped)
	}
	if len(lines) != 2 || lines[0].Text != "one" || lines[1].Text != "two" {
		t.Fatalf("lines=%+v", lines)
	}
	if lines[0].Seq != 1 || lines[1].Seq != 2 {
		t.Fatalf("seq=%d,%d want 1,2", lines[0].Seq, lines[1].Seq)
	}

	_, _ = b.Write([]byte("\n"))
	lines, _ = b.Snapshot(0, 2)
	if len(lines) != 1 || lines[0].Text != "three" || lines[0].Seq != 3 {
		t.Fatalf("since=2 lines=%+v", lines)
	}
}

func TestLogBuffer_DropsOldest(t *testing.T) {
	b := NewLogBuffer(3)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		_, _ = b.Write([]byte(s + "\n"))
	}
	lines, dropped := b.Snapshot(0, 0)
	if dropped != 2 {
		t.Fatalf("dropped=%d want 2", dropped)
	}
	if len(lines) != 3 || lines[0].Text != "c" || lines[2].Text != "e" {
		t.Fatalf("lines=%+v", lines)
	}

	lines, _ = b.Snapshot(2, 0)
	if len(lines) != 2 || lines[0].Text != "d" {
		t.Fatalf("tail=2 lines=%+v", lines)
	}
}

func TestLogsHandler(t *testing.T) {
	b := NewLogBuffer(100)
	_, _ = b.Write([]byte("level=INFO msg=\"flight log loaded\"\nlevel=WARN msg=\"flight skipped\"\n"))

	ts := httptest.NewServer(b.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/?since=1")
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusOK)
	var out LogsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Lines) != 1 || !strings.Contains(out.Lines[0].Text, "flight skipped") {
		t.Fatalf("lines=%+v", out.Lines)
	}

	resp2, err := http.Get(ts.URL + "/?format=text")
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	defer resp2.Body.Close()
	requireStatus(t, resp2, http.StatusOK)
	body, _ := io.ReadAll(resp2.Body)
	if strings.Count(string(body), "\n") != 2 {
		t.Fatalf("text body=%q", string(body))
	}

	for _, q := range []string{"tail=0", "tail=x", "since=-1"} {
		resp, err := http.Get(ts.URL + "/?" + q)
		if err != nil {
			t.Fatalf("get logs: %v", err)
		}
		resp.Body.Close()
		requireStatus(t, resp, http.StatusBadRequest)
	}
}
