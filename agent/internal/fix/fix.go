package fix

import (
	"context"
	"fmt"
	"time"

	"github.com/trackrelay/trackrelay/agent/internal/config"
)

// Fix is one position report from a receiver.
type Fix struct {
	Latitude  float64
	Longitude float64
	Time      time.Time
	// HorizontalAccuracy is the estimated error radius in meters.
	HorizontalAccuracy float64
}

// Source produces fixes. Run blocks until ctx is cancelled or the source is
// exhausted, calling emit from a single goroutine.
type Source interface {
	Run(ctx context.Context, emit func(Fix)) error
}

// New returns the Source selected by cfg.
func New(cfg config.FixSourceConfig) (Source, error) {
	switch cfg.Type {
	case "serial":
		return &SerialSource{Device: cfg.Device, Baud: cfg.Baud, UERE: cfg.UEREMeters}, nil
	case "file":
		return &FileSource{Path: cfg.Path, Interval: cfg.Interval, UERE: cfg.UEREMeters}, nil
	case "simulated":
		return NewSimulatedSource(cfg.Interval), nil
	default:
		return nil, fmt.Errorf("fix: unsupported source type %q", cfg.Type)
	}
}
