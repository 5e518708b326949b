package web

import (
	"sync/atomic"
	"time"

	"flightreplay/internal/playback"
)

type Status struct {
	startUnixNano int64
	listen        atomic.Value // string
	configPath    atomic.Value // string
	logFile       atomic.Value // string
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.listen.Store("")
	s.configPath.Store("")
	s.logFile.Store("")
	return s
}

func (s *Status) SetStatic(listen string, configPath string, logFile string) {
	if listen != "" {
		s.listen.Store(listen)
	}
	if configPath != "" {
		s.configPath.Store(configPath)
	}
	if logFile != "" {
		s.logFile.Store(logFile)
	}
}

type StatusSnapshot struct {
	Service    string            `json:"service"`
	NowUTC     string            `json:"now_utc"`
	UptimeSec  int64             `json:"uptime_sec"`
	Listen     string            `json:"listen,omitempty"`
	ConfigPath string            `json:"config_path,omitempty"`
	LogFile    string            `json:"log_file,omitempty"`
	Playback   playback.Snapshot `json:"playback"`
}

func (s *Status) Snapshot(nowUTC time.Time, pb playback.Snapshot) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	return StatusSnapshot{
		Service:    "flightreplay",
		NowUTC:     nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:  int64(nowUTC.Sub(start).Seconds()),
		Listen:     s.listen.Load().(string),
		ConfigPath: s.configPath.Load().(string),
		LogFile:    s.logFile.Load().(string),
		Playback:   pb,
	}
}
