package fix

import (
	"context"
	"fmt"
	"os"
	"time"
)

// FileSource replays an NMEA log, emitting at most one fix per Interval.
// Fix times are re-anchored to the current date.
type FileSource struct {
	Path     string
	Interval time.Duration
	UERE     float64
}

// Run replays the file once and returns at EOF or when ctx is cancelled.
func (s *FileSource) Run(ctx context.Context, emit func(Fix)) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("fix: open nmea log: %w", err)
	}
	defer f.Close()

	var tick <-chan time.Time
	if s.Interval > 0 {
		t := time.NewTicker(s.Interval)
		defer t.Stop()
		tick = t.C
	}

	paced := func(fx Fix) {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}
		}
		if ctx.Err() == nil {
			emit(fx)
		}
	}
	return NewNMEAReader(f, s.UERE).Run(ctx, paced)
}
