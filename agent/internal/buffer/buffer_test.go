package buffer

import (
	"errors"
	"sync"
	"testing"

	"github.com/trackrelay/trackrelay/pkg/wire"
)

func sample(i int) wire.Sample {
	return wire.Sample{Latitude: float64(i) / 1000, Longitude: float64(i) / 100, Timestamp: 1700000000 + float64(i)}
}

func fill(b *Buffer, from, to int) {
	for i := from; i < to; i++ {
		b.Append(sample(i))
	}
}

func TestBuffer_PeekIsOrderedPrefix(t *testing.T) {
	b := New(nil)
	fill(b, 0, 10)

	got := b.PeekPrefix(4)
	if len(got) != 4 {
		t.Fatalf("PeekPrefix(4) returned %d samples", len(got))
	}
	for i, s := range got {
		if s != sample(i) {
			t.Errorf("got[%d] = %+v, want %+v", i, s, sample(i))
		}
	}
	if b.Len() != 10 {
		t.Errorf("Len() after peek = %d, want 10", b.Len())
	}
}

func TestBuffer_PeekCapsAtLength(t *testing.T) {
	b := New(nil)
	fill(b, 0, 3)
	if got := b.PeekPrefix(300); len(got) != 3 {
		t.Errorf("PeekPrefix(300) on 3 samples returned %d", len(got))
	}
	if got := New(nil).PeekPrefix(300); got != nil {
		t.Errorf("PeekPrefix on empty buffer = %v, want nil", got)
	}
}

func TestBuffer_PeekReturnsCopy(t *testing.T) {
	b := New(nil)
	fill(b, 0, 2)
	got := b.PeekPrefix(2)
	got[0].Latitude = 89
	if b.PeekPrefix(1)[0] != sample(0) {
		t.Error("mutating a peeked slice changed the buffer")
	}
}

func TestBuffer_RemovePrefixExact(t *testing.T) {
	b := New(nil)
	fill(b, 0, 650)

	if err := b.RemovePrefix(300); err != nil {
		t.Fatalf("RemovePrefix(300) error = %v", err)
	}
	if b.Len() != 350 {
		t.Errorf("Len() = %d, want 350", b.Len())
	}
	if first := b.PeekPrefix(1)[0]; first != sample(300) {
		t.Errorf("first remaining = %+v, want sample 300", first)
	}
}

func TestBuffer_RemovePrefixTooLarge(t *testing.T) {
	b := New(nil)
	fill(b, 0, 5)

	err := b.RemovePrefix(6)
	if !errors.Is(err, ErrInconsistentRemoval) {
		t.Fatalf("RemovePrefix(6) error = %v, want ErrInconsistentRemoval", err)
	}
	if b.Len() != 5 {
		t.Errorf("Len() after failed removal = %d, want 5", b.Len())
	}
	if err := b.RemovePrefix(-1); !errors.Is(err, ErrInconsistentRemoval) {
		t.Errorf("RemovePrefix(-1) error = %v", err)
	}
}

func TestBuffer_AppendAfterPeekSurvivesRemoval(t *testing.T) {
	b := New(nil)
	fill(b, 0, 3)
	peeked := b.PeekPrefix(300)

	fill(b, 3, 5) // arrives while the batch is in flight

	if err := b.RemovePrefix(len(peeked)); err != nil {
		t.Fatalf("RemovePrefix error = %v", err)
	}
	rest := b.PeekPrefix(300)
	if len(rest) != 2 || rest[0] != sample(3) || rest[1] != sample(4) {
		t.Errorf("remaining = %+v, want samples 3 and 4", rest)
	}
}

func TestBuffer_OnChange(t *testing.T) {
	var seen []int
	b := New(func(n int) { seen = append(seen, n) })
	fill(b, 0, 2)
	_ = b.RemovePrefix(1)
	_ = b.RemovePrefix(0)

	want := []int{1, 2, 1}
	if len(seen) != len(want) {
		t.Fatalf("onChange calls = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("onChange[%d] = %d, want %d", i, seen[i], want[i])
		}
	}
}

func TestBuffer_ConcurrentAppendAndDrain(t *testing.T) {
	b := New(nil)
	const total = 5000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fill(b, 0, total)
	}()

	var drained []wire.Sample
	for len(drained) < total {
		batch := b.PeekPrefix(300)
		if err := b.RemovePrefix(len(batch)); err != nil {
			t.Fatalf("RemovePrefix error = %v", err)
		}
		drained = append(drained, batch...)
	}
	wg.Wait()

	for i, s := range drained {
		if s != sample(i) {
			t.Fatalf("drained[%d] = %+v, want sample %d", i, s, i)
		}
	}
}
