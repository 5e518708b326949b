package render

import (
	"errors"
	"fmt"

	"github.com/skypies/geo"

	"flightreplay/internal/flightlog"
)

var (
	ErrNoLog           = errors.New("no flight log")
	ErrIndexRange      = errors.New("time index out of range")
	ErrEmptyPalette    = errors.New("palette is empty")
	ErrEmptyTrajectory = errors.New("no samples at or before time index")
)

// RenderError is a per-flight failure. The flight is left out of the frame;
// other flights are unaffected.
type RenderError struct {
	FlightID string
	Line     int
	Err      error
}

func (e *RenderError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("render flight %s (line %d): %v", e.FlightID, e.Line, e.Err)
	}
	return fmt.Sprintf("render flight %s: %v", e.FlightID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Palette colours flights by their position in the flight id list,
// cycling when there are more flights than colours.
type Palette []string

func (p Palette) Color(i int) string {
	if len(p) == 0 {
		return ""
	}
	if i < 0 {
		i = -i
	}
	return p[i%len(p)]
}

// Frame selects what to draw: every flight in FlightIDs, cut at Index.
type Frame struct {
	Log       *flightlog.Log
	FlightIDs []string
	Palette   Palette
	Index     int
}

type MapOptions struct {
	Center geo.Latlong
	Zoom   int
	Tiles  string

	// Clock, when non-nil, places the current sample time on the map.
	Clock *geo.Latlong
}

type Polyline struct {
	FlightID  string        `json:"flight_id"`
	Color     string        `json:"color"`
	Weight    float64       `json:"weight"`
	Opacity   float64       `json:"opacity"`
	DashArray string        `json:"dash_array"`
	Points    []geo.Latlong `json:"-"`
}

type Label struct {
	FlightID   string `json:"flight_id"`
	FlightType string `json:"flight_type"`
	Depart     string `json:"depart"`
	Arrival    string `json:"arrival"`
	Latitude   string `json:"latitude"`
	Longitude  string `json:"longitude"`
}

type Marker struct {
	FlightID    string      `json:"flight_id"`
	Position    geo.Latlong `json:"-"`
	Radius      float64     `json:"radius"`
	Stroke      string      `json:"stroke"`
	Fill        string      `json:"fill"`
	FillOpacity float64     `json:"fill_opacity"`
	Label       Label       `json:"label"`
}

type Overlay struct {
	Text     string      `json:"text"`
	Position geo.Latlong `json:"-"`
}

// MapImage is one rendered frame.
type MapImage struct {
	Index     int            `json:"index"`
	Total     int            `json:"total"`
	Center    geo.Latlong    `json:"-"`
	Zoom      int            `json:"zoom"`
	Tiles     TileStyle      `json:"tiles"`
	Polylines []Polyline     `json:"polylines"`
	Markers   []Marker       `json:"markers"`
	Clock     *Overlay       `json:"clock,omitempty"`
	Errors    []*RenderError `json:"-"`
}

// Points returns the number of positions drawn for a flight.
func (m *MapImage) Points(flightID string) int {
	for _, pl := range m.Polylines {
		if pl.FlightID == flightID {
			return len(pl.Points)
		}
	}
	for _, mk := range m.Markers {
		if mk.FlightID == flightID {
			return 1
		}
	}
	return 0
}

const ClockLayout = "15:04:05.000000"

// Trajectory returns the positions of a flight's samples at or before index,
// oldest first. It returns ErrEmptyTrajectory when there are none and a
// *RenderError when a sample's position does not parse.
func Trajectory(l *flightlog.Log, flightID string, index int) ([]flightlog.Sample, []geo.Latlong, error) {
	samples := l.TrackUntil(flightID, index)
	if len(samples) == 0 {
		return nil, nil, ErrEmptyTrajectory
	}
	pts := make([]geo.Latlong, 0, len(samples))
	for _, s := range samples {
		pos, err := s.Position()
		if err != nil {
			return nil, nil, &RenderError{FlightID: flightID, Line: s.Line, Err: err}
		}
		pts = append(pts, pos)
	}
	return samples, pts, nil
}

// Render draws f. It only fails for invalid input; per-flight problems are
// recorded on the returned image.
func Render(f Frame, opt MapOptions) (*MapImage, error) {
	if f.Log.Len() == 0 {
		return nil, ErrNoLog
	}
	if f.Index < 0 || f.Index >= f.Log.Len() {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexRange, f.Index, f.Log.Len())
	}
	if len(f.Palette) == 0 {
		return nil, ErrEmptyPalette
	}
	tiles, err := LookupTiles(opt.Tiles)
	if err != nil {
		return nil, err
	}

	img := &MapImage{
		Index:  f.Index,
		Total:  f.Log.Len(),
		Center: opt.Center,
		Zoom:   opt.Zoom,
		Tiles:  tiles,
	}

	for i, id := range f.FlightIDs {
		samples, pts, err := Trajectory(f.Log, id, f.Index)
		if errors.Is(err, ErrEmptyTrajectory) {
			continue
		}
		if err != nil {
			var re *RenderError
			if !errors.As(err, &re) {
				re = &RenderError{FlightID: id, Err: err}
			}
			img.Errors = append(img.Errors, re)
			continue
		}

		color := f.Palette.Color(i)
		if len(pts) > 1 {
			img.Polylines = append(img.Polylines, Polyline{
				FlightID:  id,
				Color:     color,
				Weight:    2,
				Opacity:   0.8,
				DashArray: "5, 5",
				Points:    pts,
			})
		}

		latest := samples[len(samples)-1]
		img.Markers = append(img.Markers, Marker{
			FlightID:    id,
			Position:    pts[len(pts)-1],
			Radius:      5,
			Stroke:      "white",
			Fill:        color,
			FillOpacity: 0.5,
			Label: Label{
				FlightID:   latest.FlightID,
				FlightType: latest.FlightType,
				Depart:     latest.Depart,
				Arrival:    latest.Arrival,
				Latitude:   latest.Latitude,
				Longitude:  latest.Longitude,
			},
		})
	}

	if opt.Clock != nil {
		img.Clock = &Overlay{
			Text:     f.Log.Samples[f.Index].Time.Format(ClockLayout),
			Position: *opt.Clock,
		}
	}

	return img, nil
}
