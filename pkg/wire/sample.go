package wire

import (
	"math"
	"time"
)

// Sample is one accepted position reading. It is a plain value and is never
// mutated once created.
type Sample struct {
	Latitude  float64
	Longitude float64
	// Timestamp is seconds since the Unix epoch, with sub-second precision.
	Timestamp float64
}

// NewSample builds a Sample from a position and a wall-clock time.
func NewSample(lat, lon float64, t time.Time) Sample {
	return Sample{
		Latitude:  lat,
		Longitude: lon,
		Timestamp: float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second),
	}
}

// Time converts Timestamp back to a time.Time in UTC.
func (s Sample) Time() time.Time {
	sec, frac := math.Modf(s.Timestamp)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}

// validate reports the first field of s that cannot be put on the wire.
func (s Sample) validate() (field string, value float64, ok bool) {
	switch {
	case !finite(s.Latitude) || s.Latitude < -90 || s.Latitude > 90:
		return "latitude", s.Latitude, false
	case !finite(s.Longitude) || s.Longitude < -180 || s.Longitude > 180:
		return "longitude", s.Longitude, false
	case !finite(s.Timestamp) || s.Timestamp < 0:
		return "timestamp", s.Timestamp, false
	}
	return "", 0, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
