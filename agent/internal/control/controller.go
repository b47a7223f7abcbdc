package control

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/trackrelay/trackrelay/agent/internal/buffer"
	"github.com/trackrelay/trackrelay/agent/internal/fix"
	"github.com/trackrelay/trackrelay/agent/internal/flush"
	"github.com/trackrelay/trackrelay/agent/internal/upload"
)

// Status is the JSON status document.
type Status struct {
	Running bool `json:"running"`
	// SecondsSinceLastFix is null until the first accepted fix.
	SecondsSinceLastFix *float64   `json:"seconds_since_last_fix"`
	Pending             int        `json:"pending"`
	UploaderState       string     `json:"uploader_state"`
	LastDelivery        *time.Time `json:"last_delivery"`
}

// Controller starts and stops location updates.
type Controller struct {
	src         fix.Source
	ingest      *fix.Ingestor
	buf         *buffer.Buffer
	up          *upload.Uploader
	sched       *flush.Scheduler
	stopTimeout time.Duration

	mu        sync.Mutex
	srcCancel context.CancelFunc
	srcDone   chan struct{}

	now func() time.Time
}

// New creates a stopped Controller.
func New(src fix.Source, ingest *fix.Ingestor, buf *buffer.Buffer, up *upload.Uploader,
	sched *flush.Scheduler, stopTimeout time.Duration) *Controller {
	return &Controller{
		src:         src,
		ingest:      ingest,
		buf:         buf,
		up:          up,
		sched:       sched,
		stopTimeout: stopTimeout,
		now:         time.Now,
	}
}

// StartUpdates starts the fix source and the flush scheduler. It is a no-op
// while updates are running.
func (c *Controller) StartUpdates() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.srcCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.srcCancel, c.srcDone = cancel, done

	go func() {
		defer close(done)
		err := c.src.Run(ctx, func(f fix.Fix) {
			if !c.ingest.Accept(f) {
				slog.Debug("control: fix rejected", "accuracy", f.HorizontalAccuracy)
			}
		})
		switch {
		case err != nil:
			slog.Error("control: fix source stopped", "err", err)
		case ctx.Err() == nil:
			slog.Info("control: fix source exhausted")
		}
	}()

	c.sched.Start()
	slog.Info("control: updates started")
}

// StopUpdates stops the fix source, then stops the scheduler with a final
// flush bounded by the stop timeout and ctx.
func (c *Controller) StopUpdates(ctx context.Context) flush.Report {
	c.mu.Lock()
	cancel, done := c.srcCancel, c.srcDone
	c.srcCancel, c.srcDone = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	ctx, stop := context.WithTimeout(ctx, c.stopTimeout)
	defer stop()
	rep := c.sched.Stop(ctx)
	slog.Info("control: updates stopped", "delivered", rep.Delivered, "pending", c.buf.Len())
	return rep
}

// Flush runs one flush sequence immediately, whether or not updates are
// running.
func (c *Controller) Flush(ctx context.Context) flush.Report {
	return c.sched.Flush(ctx)
}

// Status returns a point-in-time view of the agent.
func (c *Controller) Status() Status {
	st := Status{
		Running:       c.sched.Running(),
		Pending:       c.buf.Len(),
		UploaderState: c.up.State().String(),
	}
	if age, ok := c.ingest.SecondsSinceLastFix(c.now()); ok {
		st.SecondsSinceLastFix = &age
	}
	if last := c.sched.LastDelivery(); !last.IsZero() {
		last = last.UTC()
		st.LastDelivery = &last
	}
	return st
}
