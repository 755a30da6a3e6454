package parse

import (
	"fmt"
	"time"
)

// Interval is a UTC-normalized half-open time window parsed from request
// parameters.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Timestamp parses a single RFC3339 timestamp and normalizes it to UTC.
// The core never interprets local timezones; offsets in the input are
// converted, not preserved.
func Timestamp(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: expected RFC3339", raw)
	}
	return t.UTC(), nil
}

// ParseInterval parses a start/end parameter pair. Both values are required;
// ordering is not checked here, that belongs to reservation validation.
func ParseInterval(rawStart, rawEnd string) (Interval, error) {
	if rawStart == "" || rawEnd == "" {
		return Interval{}, fmt.Errorf("both start and end timestamps are required")
	}
	start, err := Timestamp(rawStart)
	if err != nil {
		return Interval{}, err
	}
	end, err := Timestamp(rawEnd)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Start: start, End: end}, nil
}
