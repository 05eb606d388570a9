// ABOUTME: Tests for the bounded buffer queue
// ABOUTME: Covers FIFO order, half-capacity resume, cancellation and flush epochs
package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/Resonate-Protocol/cadence/pkg/audio"
)

func bufferAt(index int64) *audio.PCMBuffer {
	b := audio.NewPCMBuffer()
	b.Index = index
	return b
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(4)
	for i := int64(0); i < 3; i++ {
		if err := q.Push(bufferAt(i), q.Epoch()); err != nil {
			t.Fatalf("push %d failed: %v", i, err)
		}
	}

	for i := int64(0); i < 3; i++ {
		b := q.Poll()
		if b == nil || b.Index != i {
			t.Fatalf("expected buffer %d, got %+v", i, b)
		}
	}
	if q.Poll() != nil {
		t.Error("expected nil from empty queue")
	}
}

func TestQueueDefaultCapacity(t *testing.T) {
	if q := NewQueue(0); q.Cap() != DefaultQueueCapacity {
		t.Errorf("expected capacity %d, got %d", DefaultQueueCapacity, q.Cap())
	}
}

func TestQueueBlocksUntilHalfDrained(t *testing.T) {
	q := NewQueue(4)
	for i := int64(0); i < 4; i++ {
		q.Push(bufferAt(i), 0)
	}

	pushed := make(chan error, 1)
	go func() {
		pushed <- q.Push(bufferAt(4), 0)
	}()

	select {
	case <-pushed:
		t.Fatal("push should block while queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	// Depth 3 is above half capacity; producer stays asleep
	q.Poll()
	select {
	case <-pushed:
		t.Fatal("push should stay blocked above half capacity")
	case <-time.After(50 * time.Millisecond):
	}

	// Depth 2 reaches half capacity
	q.Poll()
	select {
	case err := <-pushed:
		if err != nil {
			t.Fatalf("push failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("push did not resume at half capacity")
	}

	if q.Len() != 3 {
		t.Errorf("expected 3 queued, got %d", q.Len())
	}
	if q.HighWater() > q.Cap() {
		t.Errorf("queue exceeded capacity: high water %d", q.HighWater())
	}
}

func TestQueueCancelUnblocksProducer(t *testing.T) {
	q := NewQueue(1)
	q.Push(bufferAt(0), 0)

	pushed := make(chan error, 1)
	go func() {
		pushed <- q.Push(bufferAt(1), 0)
	}()

	time.Sleep(20 * time.Millisecond)
	q.Cancel()

	select {
	case err := <-pushed:
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancel did not unblock producer")
	}

	if err := q.Push(bufferAt(2), 0); !errors.Is(err, ErrCancelled) {
		t.Errorf("expected push after cancel to fail, got %v", err)
	}

	q.Reopen()
	q.Poll()
	if err := q.Push(bufferAt(3), 0); err != nil {
		t.Errorf("expected push after reopen to succeed, got %v", err)
	}
}

func TestQueueFlushStartsNewEpoch(t *testing.T) {
	q := NewQueue(2)
	epoch := q.Epoch()
	q.Push(bufferAt(0), epoch)
	q.Push(bufferAt(1), epoch)

	pushed := make(chan error, 1)
	go func() {
		pushed <- q.Push(bufferAt(2), epoch)
	}()
	time.Sleep(20 * time.Millisecond)

	drained := q.Flush()
	if len(drained) != 2 {
		t.Fatalf("expected 2 flushed buffers, got %d", len(drained))
	}

	select {
	case err := <-pushed:
		if !errors.Is(err, ErrStale) {
			t.Errorf("expected ErrStale, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("flush did not unblock producer")
	}

	if q.Epoch() == epoch {
		t.Error("expected flush to advance the epoch")
	}
	if err := q.Push(bufferAt(3), q.Epoch()); err != nil {
		t.Errorf("expected push with new epoch to succeed, got %v", err)
	}
}
