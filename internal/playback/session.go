package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/skypies/geo"

	"flightreplay/internal/config"
	"flightreplay/internal/flightlog"
	"flightreplay/internal/render"
)

var (
	ErrNoLog   = errors.New("no flight log loaded")
	ErrNoFrame = errors.New("no frame rendered yet")
)

// Settings are the knobs a running session can change.
type Settings struct {
	Interval time.Duration
	Step     int
	Palette  render.Palette
	Map      render.MapOptions
	Load     flightlog.Options
}

func SettingsFromConfig(cfg config.Config) (Settings, error) {
	loc, err := time.LoadLocation(cfg.Replay.Location)
	if err != nil {
		return Settings{}, fmt.Errorf("replay.location: %w", err)
	}
	s := Settings{
		Interval: cfg.Replay.Interval,
		Step:     cfg.Replay.Step,
		Palette:  render.Palette(append([]string(nil), cfg.Map.Palette...)),
		Map: render.MapOptions{
			Center: geo.Latlong{Lat: cfg.Map.CenterLatDeg, Long: cfg.Map.CenterLonDeg},
			Zoom:   cfg.Map.Zoom,
			Tiles:  cfg.Map.Tiles,
		},
		Load: flightlog.Options{TimeLayout: cfg.Replay.TimeLayout, Location: loc},
	}
	if cfg.Map.Clock.Enable {
		s.Map.Clock = &geo.Latlong{Lat: cfg.Map.Clock.LatDeg, Long: cfg.Map.Clock.LonDeg}
	}
	return s, s.validate()
}

func (s Settings) validate() error {
	if s.Interval <= 0 {
		return errors.New("interval must be > 0")
	}
	if s.Step <= 0 {
		return errors.New("step must be > 0")
	}
	if len(s.Palette) == 0 {
		return render.ErrEmptyPalette
	}
	if _, err := render.LookupTiles(s.Map.Tiles); err != nil {
		return err
	}
	return nil
}

type frameKey struct {
	log   string
	gen   uint64
	index int
}

// Session owns the loaded flight log and the playback position. Run drives
// it from a timer; the HTTP layer calls the other methods.
type Session struct {
	logger *slog.Logger
	pages  *lru.Cache[frameKey, []byte]
	wake   chan struct{}

	mu           sync.Mutex
	settings     Settings
	gen          uint64
	log          *flightlog.Log
	next         int
	running      bool
	frame        *render.MapImage
	ticks        uint64
	renderErrors uint64
	lastTick     time.Time
}

func New(settings Settings, cacheSize int, logger *slog.Logger) (*Session, error) {
	if err := settings.validate(); err != nil {
		return nil, err
	}
	if cacheSize <= 0 {
		cacheSize = 256
	}
	pages, err := lru.New[frameKey, []byte](cacheSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		logger:   logger,
		pages:    pages,
		wake:     make(chan struct{}, 1),
		settings: settings,
	}, nil
}

// Open loads path and replaces the current log. Playback stops and the
// first frame is rendered. On error the previous log is kept.
func (s *Session) Open(path string) error {
	s.mu.Lock()
	opt := s.settings.Load
	s.mu.Unlock()

	start := time.Now()
	l, err := flightlog.Load(path, opt)
	if err != nil {
		s.logger.Error("open failed", "path", path, "err", err)
		return err
	}
	s.logger.Info("flight log loaded", "path", path, "samples", l.Len(), "flights", len(l.FlightIDs),
		"session", l.ID, "took", time.Since(start))
	return s.replace(l)
}

// OpenReader is Open for uploaded content; name is used for display and
// for the date in the file name.
func (s *Session) OpenReader(name string, r io.Reader) error {
	s.mu.Lock()
	opt := s.settings.Load
	s.mu.Unlock()

	if opt.Date.IsZero() {
		if d, ok := flightlog.DateFromName(name); ok {
			opt.Date = d
		}
	}
	l, err := flightlog.Parse(r, opt)
	if err != nil {
		s.logger.Error("open failed", "name", name, "err", err)
		return err
	}
	l.Path = name
	s.logger.Info("flight log uploaded", "name", name, "samples", l.Len(), "flights", len(l.FlightIDs), "session", l.ID)
	return s.replace(l)
}

func (s *Session) replace(l *flightlog.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = l
	s.running = false
	s.next = 0
	s.frame = nil
	s.signal()
	return s.tickLocked()
}

func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log == nil {
		return ErrNoLog
	}
	if !s.running {
		s.running = true
		s.logger.Info("playback started", "index", s.next, "interval", s.settings.Interval)
		s.signal()
	}
	return nil
}

func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.running = false
		s.logger.Info("playback stopped", "index", s.next)
		s.signal()
	}
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Tick renders the frame at the playback position and advances it by the
// configured step. A step past the end stops on the last sample, and the
// tick after the last sample goes back to 0.
func (s *Session) Tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickLocked()
}

func (s *Session) tickLocked() error {
	if s.log == nil {
		return ErrNoLog
	}
	if err := s.renderLocked(s.next); err != nil {
		return err
	}
	last := s.log.Len() - 1
	switch {
	case s.next >= last:
		s.next = 0
	case s.next+s.settings.Step > last:
		// Show the final frame once before wrapping.
		s.next = last
	default:
		s.next += s.settings.Step
	}
	return nil
}

func (s *Session) renderLocked(index int) error {
	img, err := render.Render(render.Frame{
		Log:       s.log,
		FlightIDs: s.log.FlightIDs,
		Palette:   s.settings.Palette,
		Index:     index,
	}, s.settings.Map)
	if err != nil {
		return err
	}
	for _, re := range img.Errors {
		s.logger.Warn("flight skipped", "flight", re.FlightID, "line", re.Line, "index", index, "err", re.Err)
	}
	s.frame = img
	s.ticks++
	s.renderErrors += uint64(len(img.Errors))
	s.lastTick = time.Now().UTC()
	return nil
}

// Seek renders the frame at index and continues playback from there.
func (s *Session) Seek(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log == nil {
		return ErrNoLog
	}
	if index < 0 || index >= s.log.Len() {
		return fmt.Errorf("%w: %d not in [0,%d)", render.ErrIndexRange, index, s.log.Len())
	}
	s.next = index
	return s.tickLocked()
}

// SeekSlot seeks to the first sample at or after clock ("HH:MM").
func (s *Session) SeekSlot(clock string) error {
	s.mu.Lock()
	l := s.log
	s.mu.Unlock()
	if l == nil {
		return ErrNoLog
	}
	i, err := l.IndexAt(strings.TrimSpace(clock))
	if err != nil {
		return err
	}
	return s.Seek(i)
}

func (s *Session) Slots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log == nil {
		return nil
	}
	return s.log.Slots(flightlog.SlotStep)
}

// Frame returns the last rendered frame.
func (s *Session) Frame() (*render.MapImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, ErrNoFrame
	}
	return s.frame, nil
}

// FrameHTML returns the last rendered frame as a standalone page.
func (s *Session) FrameHTML() ([]byte, error) {
	s.mu.Lock()
	img := s.frame
	var key frameKey
	if img != nil {
		key = frameKey{log: s.log.ID, gen: s.gen, index: img.Index}
	}
	s.mu.Unlock()
	if img == nil {
		return nil, ErrNoFrame
	}

	if b, ok := s.pages.Get(key); ok {
		return b, nil
	}
	var buf bytes.Buffer
	if err := img.WriteHTML(&buf); err != nil {
		return nil, err
	}
	b := buf.Bytes()
	s.pages.Add(key, b)
	return b, nil
}

func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Apply replaces the settings and re-renders the current frame with them.
// The time layout only affects the next Open.
func (s *Session) Apply(settings Settings) error {
	if err := settings.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.gen++
	s.signal()
	if s.frame == nil {
		return nil
	}
	return s.renderLocked(s.frame.Index)
}

func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run is the playback loop. The next timer is armed only after the
// current tick has returned, so renders never overlap.
func (s *Session) Run(ctx context.Context) error {
	timer := time.NewTimer(s.Settings().Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-timer.C:
			if s.Running() {
				if err := s.Tick(); err != nil && !errors.Is(err, ErrNoLog) {
					s.logger.Error("tick failed", "err", err)
				}
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.Settings().Interval)
	}
}

type Snapshot struct {
	Loaded       bool   `json:"loaded"`
	File         string `json:"file,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	Samples      int    `json:"samples"`
	Flights      int    `json:"flights"`
	Running      bool   `json:"running"`
	Index        int    `json:"index"`
	Next         int    `json:"next"`
	Clock        string `json:"clock,omitempty"`
	Interval     string `json:"interval"`
	Step         int    `json:"step"`
	Ticks        uint64 `json:"ticks"`
	RenderErrors uint64 `json:"render_errors"`
	LastTickUTC  string `json:"last_tick_utc,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Running:      s.running,
		Next:         s.next,
		Interval:     s.settings.Interval.String(),
		Step:         s.settings.Step,
		Ticks:        s.ticks,
		RenderErrors: s.renderErrors,
	}
	if s.log != nil {
		snap.Loaded = true
		snap.File = s.log.Path
		snap.SessionID = s.log.ID
		snap.Samples = s.log.Len()
		snap.Flights = len(s.log.FlightIDs)
	}
	if s.frame != nil {
		snap.Index = s.frame.Index
		snap.Clock = s.log.Samples[s.frame.Index].Time.Format(render.ClockLayout)
	}
	if !s.lastTick.IsZero() {
		snap.LastTickUTC = s.lastTick.Format(time.RFC3339Nano)
	}
	return snap
}
