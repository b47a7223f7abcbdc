package fix

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// metersPerDegree is the length of one degree of latitude.
const metersPerDegree = 111_320.0

// SimulatedSource emits a random walk around a start point. Roughly one fix
// in ten is given a poor accuracy so the filter has something to reject.
type SimulatedSource struct {
	Interval time.Duration
	Lat, Lon float64

	rnd *rand.Rand
	now func() time.Time
}

// NewSimulatedSource starts the walk at a fixed point.
func NewSimulatedSource(interval time.Duration) *SimulatedSource {
	return &SimulatedSource{
		Interval: interval,
		Lat:      61.4978,
		Lon:      23.7610,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // not crypto
		now:      time.Now,
	}
}

// Run emits one fix per Interval until ctx is cancelled.
func (s *SimulatedSource) Run(ctx context.Context, emit func(Fix)) error {
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			emit(s.next())
		}
	}
}

func (s *SimulatedSource) next() Fix {
	// Up to ~5 m per step in each axis.
	s.Lat += (s.rnd.Float64() - 0.5) * 10 / metersPerDegree
	s.Lon += (s.rnd.Float64() - 0.5) * 10 / (metersPerDegree * math.Cos(s.Lat*math.Pi/180))

	acc := 3 + s.rnd.Float64()*12
	if s.rnd.Intn(10) == 0 {
		acc = 60 + s.rnd.Float64()*100
	}
	return Fix{
		Latitude:           s.Lat,
		Longitude:          s.Lon,
		Time:               s.now(),
		HorizontalAccuracy: acc,
	}
}
