package fix

import (
	"context"
	"fmt"
	"log/slog"

	serial "go.bug.st/serial"
)

// SerialSource reads NMEA sentences from a GPS receiver on a serial port.
type SerialSource struct {
	Device string
	Baud   int
	UERE   float64
}

// Run opens the port and decodes sentences until ctx is cancelled. Closing
// the port on cancellation unblocks the pending read.
func (s *SerialSource) Run(ctx context.Context, emit func(Fix)) error {
	port, err := serial.Open(s.Device, &serial.Mode{BaudRate: s.Baud})
	if err != nil {
		return fmt.Errorf("fix: open serial %s: %w", s.Device, err)
	}
	slog.Info("fix: serial receiver opened", "device", s.Device, "baud", s.Baud)

	stop := context.AfterFunc(ctx, func() {
		if err := port.Close(); err != nil {
			slog.Warn("fix: close serial port", "device", s.Device, "err", err)
		}
	})
	defer func() {
		if stop() {
			_ = port.Close()
		}
	}()

	return NewNMEAReader(port, s.UERE).Run(ctx, emit)
}
