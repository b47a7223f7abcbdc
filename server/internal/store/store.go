package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/trackrelay/trackrelay/pkg/wire"
)

// Track is a copy of one device's state.
type Track struct {
	DeviceID string
	// Points are in arrival order, newest last.
	Points []wire.Sample
	// Battery is wire.BatteryUnavailable until a batch carries a reading.
	Battery  int
	LastSeen time.Time
	// Received counts every sample ever accepted, including dropped ones.
	Received int
	Batches  int
}

// Last returns the newest point.
func (t Track) Last() (wire.Sample, bool) {
	if len(t.Points) == 0 {
		return wire.Sample{}, false
	}
	return t.Points[len(t.Points)-1], true
}

// Store is a thread-safe per-device track store.
type Store struct {
	mu        sync.RWMutex
	data      map[string]*Track
	retention time.Duration
	maxPoints int
	now       func() time.Time // injectable for deterministic tests
}

// New creates a Store.
func New(retention time.Duration, maxPoints int) *Store {
	return &Store{
		data:      make(map[string]*Track),
		retention: retention,
		maxPoints: maxPoints,
		now:       time.Now,
	}
}

// Add appends a batch to its device's track and returns the number of points
// now held for that device.
func (s *Store) Add(b *wire.Batch) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data[b.DeviceID]
	if !ok {
		t = &Track{DeviceID: b.DeviceID, Battery: wire.BatteryUnavailable}
		s.data[b.DeviceID] = t
	}
	t.Points = append(t.Points, b.Samples...)
	if over := len(t.Points) - s.maxPoints; over > 0 {
		n := copy(t.Points, t.Points[over:])
		clear(t.Points[n:])
		t.Points = t.Points[:n]
	}
	if b.Battery != wire.BatteryUnavailable {
		t.Battery = b.Battery
	}
	t.LastSeen = s.now()
	t.Received += len(b.Samples)
	t.Batches++
	return len(t.Points)
}

// Get returns a copy of the device's track. Devices outside the retention
// window are reported as missing.
func (s *Store) Get(deviceID string) (Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.data[deviceID]
	if !ok || !t.LastSeen.After(s.now().Add(-s.retention)) {
		return Track{}, false
	}
	return clone(t), true
}

// List returns copies of all live tracks, ordered by device id.
func (s *Store) List() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.retention)
	out := make([]Track, 0, len(s.data))
	for _, t := range s.data {
		if t.LastSeen.After(cutoff) {
			out = append(out, clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Count returns the number of devices held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes devices last seen at or before now minus retention and
// returns how many were removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.retention)
	removed := 0
	for id, t := range s.data {
		if !t.LastSeen.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run evicts stale devices every half retention (at least once a second)
// until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.retention / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Info("store: evicted silent devices", "count", n)
			}
		}
	}
}

func clone(t *Track) Track {
	c := *t
	c.Points = append([]wire.Sample(nil), t.Points...)
	return c
}
