package flightlog

import (
	"fmt"
	"time"
)

// SlotStep is the spacing of the viewer's time-slot list.
const SlotStep = 30 * time.Minute

// Slots returns the "HH:MM" slot labels, spaced by step, from the first
// slot after midnight up to 23:59, that contain at least one sample at or
// after them. Clock times compare by time of day only.
func (l *Log) Slots(step time.Duration) []string {
	if l.Len() == 0 {
		return nil
	}
	if step <= 0 {
		step = SlotStep
	}
	var last time.Duration
	for _, s := range l.Samples {
		if tod := timeOfDay(s.Time); tod > last {
			last = tod
		}
	}

	var out []string
	for at := step; at < 24*time.Hour; at += step {
		if at > last {
			break
		}
		out = append(out, formatClock(at))
	}
	return out
}

// IndexAt returns the position of the first sample, in file order, whose
// time of day is at or after clock ("HH:MM" or "HH:MM:SS").
func (l *Log) IndexAt(clock string) (int, error) {
	want, err := parseClock(clock)
	if err != nil {
		return 0, err
	}
	for i, s := range l.Samples {
		if timeOfDay(s.Time) >= want {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no sample at or after %s", clock)
}

func timeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

func parseClock(clock string) (time.Duration, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		t, err := time.Parse(layout, clock)
		if err == nil {
			return timeOfDay(t), nil
		}
	}
	return 0, fmt.Errorf("invalid clock %q (want HH:MM)", clock)
}

func formatClock(d time.Duration) string {
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%02d:%02d", h, m)
}
