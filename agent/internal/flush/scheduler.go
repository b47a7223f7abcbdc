package flush

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/trackrelay/trackrelay/agent/internal/buffer"
	"github.com/trackrelay/trackrelay/agent/internal/config"
	"github.com/trackrelay/trackrelay/agent/internal/metrics"
	"github.com/trackrelay/trackrelay/agent/internal/upload"
	"github.com/trackrelay/trackrelay/pkg/wire"
)

// Identity supplies the device identifier. It is read on every cycle.
type Identity interface {
	DeviceID() string
}

// Battery supplies the current battery percentage, if known.
type Battery interface {
	Battery() (percent int, ok bool)
}

// Report summarises one flush sequence.
type Report struct {
	// Requests is the number of batches sent, including catch-up cycles.
	Requests int
	// Delivered is the number of samples acknowledged and removed.
	Delivered int
	// Last is the outcome of the final request. Zero if none was sent.
	Last upload.Outcome
	// Err is set when the slot could not be claimed or encoding failed.
	Err error
}

// Scheduler runs flush cycles against a Buffer.
type Scheduler struct {
	buf      *buffer.Buffer
	up       *upload.Uploader
	identity Identity
	battery  Battery
	metrics  *metrics.Metrics

	maxBatch int
	interval time.Duration

	mu           sync.Mutex
	running      bool
	cancel       context.CancelFunc
	loopDone     chan struct{}
	cycles       sync.WaitGroup
	backoff      *upload.Backoff // nil when disabled
	retryAt      time.Time
	lastDelivery time.Time
	now          func() time.Time // injectable for deterministic tests
}

// New creates a stopped Scheduler.
func New(cfg config.AgentConfig, buf *buffer.Buffer, up *upload.Uploader,
	identity Identity, battery Battery, m *metrics.Metrics) *Scheduler {
	s := &Scheduler{
		buf:      buf,
		up:       up,
		identity: identity,
		battery:  battery,
		metrics:  m,
		maxBatch: cfg.MaxBatch,
		interval: cfg.FlushInterval,
		now:      time.Now,
	}
	if cfg.Backoff.Enabled {
		s.backoff = upload.NewBackoff(cfg.Backoff.Initial, cfg.Backoff.Max)
	}
	return s
}

// Start begins periodic flushing. It is a no-op while already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	go s.loop(ctx, s.loopDone)
	slog.Info("flush: scheduler started", "interval", s.interval, "max_batch", s.maxBatch)
}

// Stop halts the ticker, supersedes any pending request and performs one
// final flush sequence bounded by ctx. Stop on a stopped Scheduler only
// performs the final flush.
func (s *Scheduler) Stop(ctx context.Context) Report {
	s.mu.Lock()
	cancel, loopDone := s.cancel, s.loopDone
	s.running = false
	s.cancel, s.loopDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-loopDone
	}

	rep := s.Flush(ctx)
	s.cycles.Wait()
	slog.Info("flush: scheduler stopped",
		"delivered", rep.Delivered, "pending", s.buf.Len())
	return rep
}

// Running reports whether the ticker is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastDelivery returns the time of the most recent acknowledged batch.
func (s *Scheduler) LastDelivery() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDelivery
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if wait := s.backingOff(); wait > 0 {
				slog.Debug("flush: backing off", "retry_in", wait)
				continue
			}
			s.cycles.Add(1)
			go func() {
				defer s.cycles.Done()
				s.Flush(ctx)
			}()
		}
	}
}

// Flush runs one flush sequence synchronously: a cycle, followed by catch-up
// cycles while full batches keep succeeding. A sequence still pending from
// an earlier call is superseded first. Catch-up cycles never supersede: if
// a newer sequence has claimed the uploader, this one ends and leaves the
// rest of the drain to it.
func (s *Scheduler) Flush(ctx context.Context) Report {
	var rep Report
	for first := true; ; first = false {
		a, err := s.claim(ctx, first)
		if err != nil {
			rep.Err = err
			return rep
		}
		if a == nil {
			slog.Debug("flush: catch-up yielded to a newer sequence", "pending", s.buf.Len())
			break
		}
		more := s.cycle(a, &rep)
		a.Release()
		if !more {
			break
		}
		slog.Debug("flush: catch-up drain", "pending", s.buf.Len())
	}
	s.recordResult(rep)
	return rep
}

// claim takes the uploader slot, superseding the holder only for the first
// cycle of a sequence. A nil attempt with a nil error means the slot was busy.
func (s *Scheduler) claim(ctx context.Context, first bool) (*upload.Attempt, error) {
	if first {
		return s.up.Begin(ctx)
	}
	a, _, err := s.up.BeginIfIdle(ctx)
	return a, err
}

// cycle performs one peek/encode/send/remove round while holding the
// uploader slot. It reports whether a catch-up cycle should follow.
func (s *Scheduler) cycle(a *upload.Attempt, rep *Report) bool {
	batch := s.buf.PeekPrefix(s.maxBatch)
	if len(batch) == 0 {
		return false
	}

	body, err := wire.Encode(batch, s.identity.DeviceID(), s.batteryPercent())
	if err != nil {
		// The offending samples stay queued; nothing later can be sent
		// until they are dealt with.
		slog.Error("flush: cannot encode batch, samples retained",
			"count", len(batch), "err", err)
		rep.Err = err
		rep.Last = upload.Outcome{Kind: upload.Failed, Err: err}
		s.metrics.ObserveBatch(upload.Failed.String(), 0, 0)
		return false
	}

	out := a.Send(body, len(batch))
	rep.Requests++
	rep.Last = out
	s.metrics.ObserveBatch(out.Kind.String(), out.Count, out.Duration)

	switch out.Kind {
	case upload.Delivered:
		if err := s.buf.RemovePrefix(out.Count); err != nil {
			rep.Err = err
			return false
		}
		rep.Delivered += out.Count
		pending := s.buf.Len()
		slog.Info("flush: batch delivered",
			"count", out.Count, "pending", pending, "duration", out.Duration)
		return len(batch) == s.maxBatch && pending > 0

	case upload.Superseded:
		slog.Debug("flush: batch superseded", "count", len(batch))

	default:
		var rej *upload.RejectedError
		if errors.As(out.Err, &rej) {
			slog.Warn("flush: batch rejected, will retry",
				"count", len(batch), "status", rej.StatusCode, "err", out.Err)
		} else {
			slog.Warn("flush: batch not delivered, will retry",
				"count", len(batch), "err", out.Err)
		}
	}
	return false
}

func (s *Scheduler) batteryPercent() int {
	if s.battery == nil {
		return wire.BatteryUnavailable
	}
	p, ok := s.battery.Battery()
	if !ok {
		return wire.BatteryUnavailable
	}
	return p
}

// recordResult updates delivery bookkeeping and the backoff window.
func (s *Scheduler) recordResult(rep Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if rep.Delivered > 0 {
		s.lastDelivery = now
	}
	if s.backoff == nil {
		return
	}
	switch {
	case rep.Last.Kind == upload.Delivered:
		s.backoff.Reset()
		s.retryAt = time.Time{}
	case rep.Last.Kind == upload.Failed && rep.Last.Err != nil:
		s.retryAt = now.Add(s.backoff.Next())
	}
}

// backingOff returns how long ticks should still be skipped.
func (s *Scheduler) backingOff() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retryAt.IsZero() {
		return 0
	}
	if d := s.retryAt.Sub(s.now()); d > 0 {
		return d
	}
	return 0
}
