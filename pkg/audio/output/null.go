// ABOUTME: Null audio sink implementation
// ABOUTME: Discards audio, optionally pacing writes in real time for headless playback
package output

import (
	"sync"
	"time"

	"github.com/Resonate-Protocol/cadence/pkg/audio"
)

// Null discards samples. With realtime set, Write sleeps for the
// duration of the audio it was given.
type Null struct {
	mu       sync.Mutex
	realtime bool
	open     bool
	started  bool
	format   audio.Format
	frames   int64
}

// NewNull creates a new Null sink
func NewNull(realtime bool) *Null {
	return &Null{realtime: realtime}
}

// Open records the format
func (n *Null) Open(format audio.Format) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.format = format
	n.open = true
	return nil
}

// Start marks the sink as consuming
func (n *Null) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.open {
		return ErrNotOpen
	}
	n.started = true
	return nil
}

// Write counts the frames and paces if realtime
func (n *Null) Write(samples []int16) (int, error) {
	n.mu.Lock()
	if !n.open {
		n.mu.Unlock()
		return 0, ErrNotOpen
	}
	channels := n.format.Channels
	if channels < 1 {
		channels = 1
	}
	frames := int64(len(samples) / channels)
	n.frames += frames
	wait := time.Duration(n.format.FramesToUs(frames)) * time.Microsecond
	realtime := n.realtime
	n.mu.Unlock()

	if realtime {
		time.Sleep(wait)
	}
	return len(samples), nil
}

// Stop marks the sink as paused
func (n *Null) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = false
	return nil
}

// Close marks the sink closed
func (n *Null) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.open = false
	n.started = false
	return nil
}

// Frames returns the total frames written since creation
func (n *Null) Frames() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.frames
}
