package fix

import (
	"math"
	"sync"
	"time"

	"github.com/trackrelay/trackrelay/agent/internal/metrics"
	"github.com/trackrelay/trackrelay/pkg/wire"
)

// Appender is the producer side of the sample buffer.
type Appender interface {
	Append(wire.Sample)
}

// Ingestor filters fixes by accuracy and appends accepted ones.
type Ingestor struct {
	buf         Appender
	maxAccuracy float64
	metrics     *metrics.Metrics

	mu      sync.Mutex
	lastFix time.Time
}

// NewIngestor returns an Ingestor accepting fixes with an accuracy radius of
// at most maxAccuracy meters.
func NewIngestor(buf Appender, maxAccuracy float64, m *metrics.Metrics) *Ingestor {
	return &Ingestor{buf: buf, maxAccuracy: maxAccuracy, metrics: m}
}

// Accept appends f to the buffer if it is accurate enough and reports
// whether it did. Fixes with a negative or NaN accuracy are invalid.
func (in *Ingestor) Accept(f Fix) bool {
	acc := f.HorizontalAccuracy
	if math.IsNaN(acc) || acc < 0 || acc > in.maxAccuracy {
		in.metrics.FixRejected()
		return false
	}

	in.buf.Append(wire.NewSample(f.Latitude, f.Longitude, f.Time))
	in.metrics.FixAccepted()

	// Fixes arriving less than a second after the last one are buffered but
	// do not count as a newer position.
	in.mu.Lock()
	if in.lastFix.IsZero() || f.Time.Sub(in.lastFix) >= time.Second {
		in.lastFix = f.Time
	}
	in.mu.Unlock()
	return true
}

// LastFix returns the time of the last accepted fix that came at least a
// second after its predecessor, and false before the first one.
func (in *Ingestor) LastFix() (time.Time, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.lastFix, !in.lastFix.IsZero()
}

// SecondsSinceLastFix is the age of the newest accepted fix at now.
func (in *Ingestor) SecondsSinceLastFix(now time.Time) (float64, bool) {
	last, ok := in.LastFix()
	if !ok {
		return 0, false
	}
	age := now.Sub(last).Seconds()
	if age < 0 {
		age = 0
	}
	return age, true
}
