// ABOUTME: Playback stage draining the decode queue into an output sink
// ABOUTME: Runs the data hook, applies volume, tracks position and detects natural completion
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/cadence/pkg/audio"
	"github.com/Resonate-Protocol/cadence/pkg/audio/output"
)

// idleWait is how long the loop sleeps when the queue is empty
const idleWait = 5 * time.Millisecond

// PlaybackHooks connect the stage to its controller
type PlaybackHooks struct {
	// Running reports whether playback should continue
	Running func() bool

	// Looping reports whether the stream wraps at the range end
	Looping func() bool

	// Volume returns the current gain
	Volume func() float32

	// OnData sees raw samples and the frame count before volume
	OnData func(samples []int16, frames int)

	// OnPosition receives the timestamp of every buffer written
	OnPosition func(us int64)

	// OnComplete is called once when the stream ends naturally
	OnComplete func()

	// OnError is called when the sink rejects a write
	OnError func(error)
}

// PlaybackStats tracks playback metrics
type PlaybackStats struct {
	Buffers int64
	Frames  int64
	Idle    int64
}

// PlaybackStage writes buffers from a decode stage to a sink
type PlaybackStage struct {
	decoder *DecodeStage
	sink    output.Sink
	hooks   PlaybackHooks
	tag     string
	timeout time.Duration
	worker  *worker

	buffers atomic.Int64
	frames  atomic.Int64
	idle    atomic.Int64
}

// NewPlaybackStage creates a playback stage
func NewPlaybackStage(decoder *DecodeStage, sink output.Sink, hooks PlaybackHooks, tag string) *PlaybackStage {
	return &PlaybackStage{
		decoder: decoder,
		sink:    sink,
		hooks:   hooks,
		tag:     tag,
		timeout: decoder.config.JoinTimeout,
	}
}

// Start launches the playback goroutine. A previous goroutine must already
// be on its way out; it is joined first so two never write to the sink.
func (p *PlaybackStage) Start() {
	if p.worker != nil {
		p.worker.join(p.timeout)
	}
	p.worker = spawn("playback "+p.tag, p.run)
}

// Join waits for the playback goroutine to exit, with the stage timeout
func (p *PlaybackStage) Join() bool {
	if p.worker == nil {
		return true
	}
	ok := p.worker.join(p.timeout)
	p.worker = nil
	return ok
}

// Stats returns playback counters
func (p *PlaybackStage) Stats() PlaybackStats {
	return PlaybackStats{
		Buffers: p.buffers.Load(),
		Frames:  p.frames.Load(),
		Idle:    p.idle.Load(),
	}
}

// run is the consumer loop
func (p *PlaybackStage) run(ctx context.Context) {
	if err := p.sink.Start(); err != nil {
		p.fail(fmt.Errorf("sink start: %w", err))
		return
	}

	queue := p.decoder.Queue()
	completed := false

	for ctx.Err() == nil && p.hooks.Running() {
		buf := queue.Poll()
		if buf == nil {
			if !p.hooks.Looping() && p.decoder.IsEOS() && queue.Len() == 0 {
				completed = true
				break
			}
			p.idle.Add(1)
			select {
			case <-ctx.Done():
			case <-time.After(idleWait):
			}
			continue
		}

		if err := p.write(buf); err != nil {
			p.decoder.Recycle(buf)
			p.sink.Stop()
			p.fail(err)
			return
		}
		p.decoder.Recycle(buf)
	}

	if err := p.sink.Stop(); err != nil {
		log.Printf("[playback %s] sink stop: %v", p.tag, err)
	}

	if completed {
		log.Printf("[playback %s] completed after %d buffers", p.tag, p.buffers.Load())
		if p.hooks.OnComplete != nil {
			p.hooks.OnComplete()
		}
	}
}

// write hands one buffer to the hook and the sink
func (p *PlaybackStage) write(buf *audio.PCMBuffer) error {
	samples := buf.Data()
	frames := buf.Size / audio.OutputChannels

	if p.hooks.OnData != nil {
		p.hooks.OnData(samples, frames)
	}
	audio.ApplyVolume(samples, p.hooks.Volume())

	if _, err := p.sink.Write(samples); err != nil {
		return fmt.Errorf("sink write: %w", err)
	}

	if p.hooks.OnPosition != nil {
		p.hooks.OnPosition(buf.PresentationTimeUs)
	}
	p.buffers.Add(1)
	p.frames.Add(int64(frames))
	return nil
}

func (p *PlaybackStage) fail(err error) {
	log.Printf("[playback %s] %v", p.tag, err)
	if p.hooks.OnError != nil {
		p.hooks.OnError(err)
	}
}
