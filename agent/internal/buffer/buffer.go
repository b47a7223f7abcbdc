package buffer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/trackrelay/trackrelay/pkg/wire"
)

// ErrInconsistentRemoval is returned by RemovePrefix when asked to remove more
// samples than are queued. It means the peek/remove protocol was violated.
var ErrInconsistentRemoval = errors.New("buffer: removal exceeds pending samples")

// Buffer is a mutex-guarded FIFO of pending samples.
type Buffer struct {
	mu       sync.Mutex
	data     []wire.Sample
	onChange func(pending int)
}

// New returns an empty Buffer. onChange, if non-nil, is called with the new
// length after every mutation, while the lock is held; it must not call back
// into the Buffer.
func New(onChange func(pending int)) *Buffer {
	return &Buffer{onChange: onChange}
}

// Append adds s to the tail. It never fails.
func (b *Buffer) Append(s wire.Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, s)
	b.notify()
}

// PeekPrefix returns a copy of the first min(Len(), max) samples.
// The buffer is not modified.
func (b *Buffer) PeekPrefix(max int) []wire.Sample {
	b.mu.Lock()
	defer b.mu.Unlock()
	if max <= 0 || len(b.data) == 0 {
		return nil
	}
	if max > len(b.data) {
		max = len(b.data)
	}
	out := make([]wire.Sample, max)
	copy(out, b.data[:max])
	return out
}

// RemovePrefix drops the first count samples. If count exceeds the number of
// pending samples nothing is removed and ErrInconsistentRemoval is returned.
func (b *Buffer) RemovePrefix(count int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if count < 0 || count > len(b.data) {
		slog.Error("buffer: inconsistent prefix removal",
			"requested", count, "pending", len(b.data))
		return fmt.Errorf("%w: requested %d, pending %d", ErrInconsistentRemoval, count, len(b.data))
	}
	if count == 0 {
		return nil
	}
	n := copy(b.data, b.data[count:])
	// Clear the vacated tail so the backing array does not pin old samples.
	clear(b.data[n:])
	b.data = b.data[:n]
	b.notify()
	return nil
}

// Len returns the number of pending samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

func (b *Buffer) notify() {
	if b.onChange != nil {
		b.onChange(len(b.data))
	}
}
