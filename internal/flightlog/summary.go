package flightlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/skypies/geo"
)

type FlightSummary struct {
	FlightID   string
	FlightType string
	Depart     string
	Arrival    string
	Samples    int
	// BadPositions counts samples whose coordinates do not parse.
	BadPositions int
	PathKM       float64
}

type Summary struct {
	Samples int
	Flights []FlightSummary
	First   time.Time
	Last    time.Time
	// Bounds encloses every parseable position. Nil when there are none.
	Bounds *geo.LatlongBox
}

func (s Summary) Span() time.Duration {
	return s.Last.Sub(s.First)
}

// Summary walks each flight in time order.
func (l *Log) Summary() Summary {
	var s Summary
	if l == nil || len(l.Samples) == 0 {
		return s
	}
	s.Samples = len(l.Samples)
	s.First = l.Samples[0].Time
	s.Last = l.Samples[0].Time
	for _, smp := range l.Samples {
		if smp.Time.Before(s.First) {
			s.First = smp.Time
		}
		if smp.Time.After(s.Last) {
			s.Last = smp.Time
		}
	}

	for _, id := range l.FlightIDs {
		traj := l.TrackUntil(id, len(l.Samples)-1)
		fs := FlightSummary{FlightID: id, Samples: len(traj)}
		if len(traj) > 0 {
			fs.FlightType = traj[0].FlightType
			fs.Depart = traj[0].Depart
			fs.Arrival = traj[0].Arrival
		}

		var prev geo.Latlong
		havePrev := false
		for _, smp := range traj {
			pos, err := smp.Position()
			if err != nil {
				fs.BadPositions++
				continue
			}
			if s.Bounds == nil {
				box := pos.BoxTo(pos)
				s.Bounds = &box
			}
			s.Bounds.Enclose(pos)
			if havePrev {
				fs.PathKM += prev.DistKM(pos)
			}
			prev = pos
			havePrev = true
		}
		s.Flights = append(s.Flights, fs)
	}
	return s
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "samples: %d\n", s.Samples)
	fmt.Fprintf(&b, "flights: %d\n", len(s.Flights))
	fmt.Fprintf(&b, "first: %s\n", s.First.Format("2006-01-02 15:04:05.000000"))
	fmt.Fprintf(&b, "last: %s\n", s.Last.Format("2006-01-02 15:04:05.000000"))
	fmt.Fprintf(&b, "span: %s\n", s.Span())
	for _, f := range s.Flights {
		fmt.Fprintf(&b, "  %-10s %-6s %s->%s samples=%d path_km=%.1f", f.FlightID, f.FlightType, f.Depart, f.Arrival, f.Samples, f.PathKM)
		if f.BadPositions > 0 {
			fmt.Fprintf(&b, " bad_positions=%d", f.BadPositions)
		}
		b.WriteString("\n")
	}
	return b.String()
}
