package flightlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skypies/geo"
)

// Input format: comma separated, no header, 8 positional fields:
//
//	Time, Flight, Latitude, Longitude, Altitude, Flight Type, Depart, Arrival
//
// Time is parsed with Options.TimeLayout. Latitude, longitude and altitude
// are kept as text and only parsed when used, so a bad coordinate affects
// that flight's rendering rather than the whole load.
const fieldsPerRow = 8

var ErrNoSamples = errors.New("no samples")

// ParseError reports a load failure. Line is 0 when the failure is not tied
// to a row (unreadable file, empty file).
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	where := e.Path
	if where == "" {
		where = "input"
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %v", where, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", where, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Sample is one timestamped aircraft position.
type Sample struct {
	// Seq is the 0-based position of the row in the file. It orders
	// the replay.
	Seq int
	// Line is the 1-based source line.
	Line int

	Time       time.Time
	FlightID   string
	Latitude   string
	Longitude  string
	Altitude   string
	FlightType string
	Depart     string
	Arrival    string
}

// Position parses the sample's coordinates.
func (s Sample) Position() (geo.Latlong, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(s.Latitude), 64)
	if err != nil {
		return geo.Latlong{}, fmt.Errorf("latitude %q: %w", s.Latitude, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(s.Longitude), 64)
	if err != nil {
		return geo.Latlong{}, fmt.Errorf("longitude %q: %w", s.Longitude, err)
	}
	if lat < -90 || lat > 90 {
		return geo.Latlong{}, fmt.Errorf("latitude %v out of range", lat)
	}
	if lon < -180 || lon > 180 {
		return geo.Latlong{}, fmt.Errorf("longitude %v out of range", lon)
	}
	return geo.Latlong{Lat: lat, Long: lon}, nil
}

func (s Sample) AltitudeFeet() (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s.Altitude), 64)
}

// Log is a parsed flight log. It is not modified after Parse returns.
type Log struct {
	ID   string
	Path string

	// Samples in file order.
	Samples []Sample
	// FlightIDs in first-seen order, each once.
	FlightIDs []string

	// byFlight holds, per flight id, sample positions in the stable
	// (flight, type, depart, arrival) order.
	byFlight map[string][]int
}

type Options struct {
	// TimeLayout is a Go time layout. Defaults to "15:04:05"; a trailing
	// fractional second is accepted without being named in the layout.
	TimeLayout string
	// Date is applied to time-only layouts. When zero, a YYYYMMDD run in
	// the file name is used if present.
	Date     time.Time
	Location *time.Location
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.TimeLayout) == "" {
		o.TimeLayout = "15:04:05"
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// Load opens and parses a flight log file.
func Load(path string, opt Options) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	defer f.Close()

	if opt.Date.IsZero() {
		if d, ok := DateFromName(path); ok {
			opt.Date = d
		}
	}

	l, err := parse(f, path, opt)
	if err != nil {
		return nil, err
	}
	l.Path = path
	return l, nil
}

// Parse reads a flight log from r.
func Parse(r io.Reader, opt Options) (*Log, error) {
	return parse(r, "", opt)
}

func parse(r io.Reader, path string, opt Options) (*Log, error) {
	opt = opt.withDefaults()

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = fieldsPerRow
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	l := &Log{
		ID:       uuid.New().String(),
		byFlight: map[string][]int{},
	}
	seen := map[string]struct{}{}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &ParseError{Path: path, Line: pe.Line, Err: pe.Err}
			}
			return nil, &ParseError{Path: path, Err: err}
		}
		line, _ := cr.FieldPos(0)
		if line == 1 {
			// Spreadsheet exports often start with a UTF-8 byte order mark.
			rec[0] = strings.TrimPrefix(rec[0], "\ufeff")
		}

		ts, err := parseTime(rec[0], opt)
		if err != nil {
			return nil, &ParseError{Path: path, Line: line, Err: err}
		}
		id := strings.TrimSpace(rec[1])
		if id == "" {
			return nil, &ParseError{Path: path, Line: line, Err: errors.New("empty flight id")}
		}

		s := Sample{
			Seq:        len(l.Samples),
			Line:       line,
			Time:       ts,
			FlightID:   id,
			Latitude:   strings.TrimSpace(rec[2]),
			Longitude:  strings.TrimSpace(rec[3]),
			Altitude:   strings.TrimSpace(rec[4]),
			FlightType: strings.TrimSpace(rec[5]),
			Depart:     strings.TrimSpace(rec[6]),
			Arrival:    strings.TrimSpace(rec[7]),
		}
		l.Samples = append(l.Samples, s)

		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			l.FlightIDs = append(l.FlightIDs, id)
		}
	}

	if len(l.Samples) == 0 {
		return nil, &ParseError{Path: path, Err: ErrNoSamples}
	}

	order := make([]int, len(l.Samples))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return sortKeyLess(l.Samples[order[a]], l.Samples[order[b]])
	})
	for _, i := range order {
		id := l.Samples[i].FlightID
		l.byFlight[id] = append(l.byFlight[id], i)
	}

	return l, nil
}

func sortKeyLess(a, b Sample) bool {
	if a.FlightID != b.FlightID {
		return a.FlightID < b.FlightID
	}
	if a.FlightType != b.FlightType {
		return a.FlightType < b.FlightType
	}
	if a.Depart != b.Depart {
		return a.Depart < b.Depart
	}
	return a.Arrival < b.Arrival
}

func parseTime(raw string, opt Options) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	t, err := time.ParseInLocation(opt.TimeLayout, raw, opt.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q (layout %q): %w", raw, opt.TimeLayout, err)
	}
	// Time-only layouts parse into year 0.
	if t.Year() == 0 && !opt.Date.IsZero() {
		y, m, d := opt.Date.Date()
		t = time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), opt.Location)
	}
	return t, nil
}

var nameDateRE = regexp.MustCompile(`\d{8}`)

// DateFromName extracts a YYYYMMDD date from a file name such as
// "RPL20210313.csv".
func DateFromName(path string) (time.Time, bool) {
	for _, m := range nameDateRE.FindAllString(filepath.Base(path), -1) {
		d, err := time.Parse("20060102", m)
		if err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// Len returns the number of samples.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Samples)
}

// Trajectory returns every sample of a flight in sorted order.
func (l *Log) Trajectory(flightID string) []Sample {
	if l == nil {
		return nil
	}
	idx := l.byFlight[flightID]
	out := make([]Sample, 0, len(idx))
	for _, i := range idx {
		out = append(out, l.Samples[i])
	}
	return out
}

// TrajectoryUntil returns the flight's samples whose file position is at or
// before index, in sorted order.
func (l *Log) TrajectoryUntil(flightID string, index int) []Sample {
	if l == nil {
		return nil
	}
	var out []Sample
	for _, i := range l.byFlight[flightID] {
		if i <= index {
			out = append(out, l.Samples[i])
		}
	}
	return out
}

// TrackUntil is TrajectoryUntil in time order: the selection is the same,
// ordered by file position. This is the order positions are drawn in.
func (l *Log) TrackUntil(flightID string, index int) []Sample {
	out := l.TrajectoryUntil(flightID, index)
	sort.SliceStable(out, func(a, b int) bool { return out[a].Seq < out[b].Seq })
	return out
}
