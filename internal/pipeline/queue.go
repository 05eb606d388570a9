// ABOUTME: Bounded buffer queue between the decode and playback stages
// ABOUTME: Producer blocks when full and resumes once the consumer drains it to half
package pipeline

import (
	"errors"
	"sync"

	"github.com/Resonate-Protocol/cadence/pkg/audio"
)

// DefaultQueueCapacity is the number of buffers decoded ahead of playback
const DefaultQueueCapacity = 300

var (
	// ErrCancelled is returned by Push once the queue has been cancelled
	ErrCancelled = errors.New("queue cancelled")

	// ErrStale is returned by Push when the queue was flushed after the
	// buffer was filled
	ErrStale = errors.New("buffer predates flush")
)

// Queue is a FIFO of PCM buffers with hysteresis backpressure
type Queue struct {
	mu        sync.Mutex
	notFull   *sync.Cond
	items     []*audio.PCMBuffer
	capacity  int
	cancelled bool
	epoch     uint64
	highWater int
}

// NewQueue creates a queue holding at most capacity buffers
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	q := &Queue{
		items:    make([]*audio.PCMBuffer, 0, capacity),
		capacity: capacity,
	}
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Epoch identifies the current flush generation
func (q *Queue) Epoch() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.epoch
}

// Push appends b, blocking while the queue is at capacity.
// epoch must be the value of Epoch when b started filling.
func (q *Queue) Push(b *audio.PCMBuffer, epoch uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) >= q.capacity && !q.cancelled && epoch == q.epoch {
		q.notFull.Wait()
	}
	if q.cancelled {
		return ErrCancelled
	}
	if epoch != q.epoch {
		return ErrStale
	}

	q.items = append(q.items, b)
	if len(q.items) > q.highWater {
		q.highWater = len(q.items)
	}
	return nil
}

// Poll removes the oldest buffer without blocking; nil when empty.
// Producers are woken once depth is at or below half capacity.
func (q *Queue) Poll() *audio.PCMBuffer {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	b := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]

	if len(q.items) <= q.capacity/2 {
		q.notFull.Broadcast()
	}
	return b
}

// Len returns the number of queued buffers
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the queue capacity
func (q *Queue) Cap() int {
	return q.capacity
}

// HighWater returns the deepest the queue has been
func (q *Queue) HighWater() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.highWater
}

// Cancel wakes a blocked producer; every Push fails until Reopen
func (q *Queue) Cancel() {
	q.mu.Lock()
	q.cancelled = true
	q.mu.Unlock()
	q.notFull.Broadcast()
}

// Reopen clears the cancelled flag
func (q *Queue) Reopen() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = false
}

// Flush removes and returns every queued buffer and starts a new epoch
func (q *Queue) Flush() []*audio.PCMBuffer {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := q.items
	q.items = make([]*audio.PCMBuffer, 0, q.capacity)
	q.epoch++
	q.notFull.Broadcast()
	return drained
}
