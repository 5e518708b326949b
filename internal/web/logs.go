package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LogBuffer keeps the most recent log lines for /api/logs. Each line gets a
// sequence number so the viewer can poll for lines it has not seen.
type LogBuffer struct {
	mu      sync.Mutex
	max     int
	lines   []LogLine
	nextSeq uint64
	partial []byte
	dropped uint64
}

type LogLine struct {
	Seq  uint64 `json:"seq"`
	Text string `json:"text"`
}

func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = 2000
	}
	return &LogBuffer{max: maxLines, nextSeq: 1}
}

// Write implements io.Writer. Bytes after the last newline are held until
// the line is completed by a later write.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := append(b.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		b.appendLineLocked(string(data[:i]))
		data = data[i+1:]
	}
	b.partial = append([]byte(nil), data...)
	return len(p), nil
}

func (b *LogBuffer) appendLineLocked(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	b.lines = append(b.lines, LogLine{Seq: b.nextSeq, Text: line})
	b.nextSeq++
	if len(b.lines) > b.max {
		over := len(b.lines) - b.max
		b.lines = b.lines[over:]
		b.dropped += uint64(over)
	}
}

// Snapshot returns at most tail lines with Seq > since.
func (b *LogBuffer) Snapshot(tail int, since uint64) (lines []LogLine, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped = b.dropped
	if tail <= 0 {
		tail = 200
	}
	start := 0
	for start < len(b.lines) && b.lines[start].Seq <= since {
		start++
	}
	if n := len(b.lines) - start; n > tail {
		start += n - tail
	}
	lines = append([]LogLine(nil), b.lines[start:]...)
	return lines, dropped
}

type LogsResponse struct {
	NowUTC  string    `json:"now_utc"`
	Dropped uint64    `json:"dropped"`
	Lines   []LogLine `json:"lines"`
}

func (b *LogBuffer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}

		q := r.URL.Query()
		tail := 200
		if s := strings.TrimSpace(q.Get("tail")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > 5000 {
				http.Error(w, "tail must be an integer in [1,5000]", http.StatusBadRequest)
				return
			}
			tail = v
		}
		var since uint64
		if s := strings.TrimSpace(q.Get("since")); s != "" {
			v, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				http.Error(w, "since must be a non-negative integer", http.StatusBadRequest)
				return
			}
			since = v
		}

		lines, dropped := b.Snapshot(tail, since)

		if strings.EqualFold(q.Get("format"), "text") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			if dropped > 0 {
				_, _ = fmt.Fprintf(w, "[dropped=%d]\n", dropped)
			}
			for _, line := range lines {
				_, _ = w.Write([]byte(line.Text))
				_, _ = w.Write([]byte("\n"))
			}
			return
		}

		if lines == nil {
			lines = []LogLine{}
		}
		writeJSON(w, LogsResponse{
			NowUTC:  time.Now().UTC().Format(time.RFC3339Nano),
			Dropped: dropped,
			Lines:   lines,
		})
	})
}
