package device

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/trackrelay/trackrelay/pkg/wire"
)

// SysfsBattery reads <Dir>/capacity.
type SysfsBattery struct {
	Dir string

	warnOnce sync.Once
}

// NewSysfsBattery reads the power supply at dir.
func NewSysfsBattery(dir string) *SysfsBattery {
	return &SysfsBattery{Dir: dir}
}

// Battery returns the charge percentage, or false if it cannot be read.
func (b *SysfsBattery) Battery() (int, bool) {
	data, err := os.ReadFile(filepath.Join(b.Dir, "capacity"))
	if err != nil {
		b.warnOnce.Do(func() {
			slog.Warn("device: battery level unavailable", "dir", b.Dir, "err", err)
		})
		return 0, false
	}
	pct, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pct < wire.MinBattery || pct > wire.MaxBattery {
		return 0, false
	}
	return pct, true
}

// StaticBattery always reports the same level. A value outside 0..100, such
// as wire.BatteryUnavailable, reports no reading.
type StaticBattery int

// Battery implements the battery provider.
func (s StaticBattery) Battery() (int, bool) {
	pct := int(s)
	if pct < wire.MinBattery || pct > wire.MaxBattery {
		return 0, false
	}
	return pct, true
}
