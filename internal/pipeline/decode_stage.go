// ABOUTME: Decode stage producing PCM buffers from a media source
// ABOUTME: Handles play range, loop wraparound, end-of-stream detection and seeking
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/cadence/pkg/audio"
	"github.com/Resonate-Protocol/cadence/pkg/audio/decode"
	"github.com/Resonate-Protocol/cadence/pkg/audio/pool"
)

var (
	// ErrNotConfigured is returned when the stage has no source
	ErrNotConfigured = errors.New("decode stage not configured")

	// ErrDataSourceInvalid wraps every failure to open a source
	ErrDataSourceInvalid = errors.New("data source invalid")
)

// Opener opens a media file as a source
type Opener func(path string, encoded bool, raw audio.Format) (decode.Source, error)

// DecodeConfig holds decode stage configuration
type DecodeConfig struct {
	// QueueCapacity bounds buffered audio (default: 300 buffers)
	QueueCapacity int

	// JoinTimeout bounds Stop (default: 2s)
	JoinTimeout time.Duration

	// RawFormat describes headerless PCM input
	RawFormat audio.Format

	// Open builds sources (default: decode.Open)
	Open Opener

	// OnError is called from the decode goroutine when reading fails
	OnError func(error)
}

// DecodeStage owns the media source and the producer goroutine
type DecodeStage struct {
	config DecodeConfig
	queue  *Queue
	pool   *pool.Pool[audio.PCMBuffer]
	tag    string

	rangeStartUs atomic.Int64
	rangeEndUs   atomic.Int64
	looping      atomic.Bool
	eos          atomic.Bool

	// mu guards the source and accumulation state
	mu         sync.Mutex
	src        decode.Source
	format     audio.Format
	durationUs int64
	readerEOS  bool
	pending    []int16
	pendingOff int
	pendingUs  int64
	current    *audio.PCMBuffer
	index      int64
	worker     *worker
	exited     bool
}

// NewDecodeStage creates an unconfigured decode stage
func NewDecodeStage(config DecodeConfig, tag string) *DecodeStage {
	if config.QueueCapacity == 0 {
		config.QueueCapacity = DefaultQueueCapacity
	}
	if config.JoinTimeout == 0 {
		config.JoinTimeout = DefaultJoinTimeout
	}
	if config.RawFormat.SampleRate == 0 {
		config.RawFormat = decode.DefaultRawFormat
	}
	if config.Open == nil {
		config.Open = decode.Open
	}

	return &DecodeStage{
		config: config,
		queue:  NewQueue(config.QueueCapacity),
		pool:   pool.New("pcm", audio.NewPCMBuffer, (*audio.PCMBuffer).Reset),
		tag:    tag,
	}
}

// Configure opens path and records its stream parameters
func (d *DecodeStage) Configure(path string, encoded bool) error {
	src, err := d.config.Open(path, encoded, d.config.RawFormat)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDataSourceInvalid, err)
	}

	format := src.Format()
	if format.Channels < 1 || format.SampleRate < 1 {
		src.Close()
		return fmt.Errorf("%w: %s has no audio stream", ErrDataSourceInvalid, path)
	}

	d.mu.Lock()
	if d.src != nil {
		d.src.Close()
	}
	d.src = src
	d.format = format
	d.durationUs = src.DurationUs()
	d.mu.Unlock()

	log.Printf("[decode %s] configured %s: %s %dHz %dch, %dms", d.tag, path,
		format.Codec, format.SampleRate, format.Channels, d.durationUs/1000)
	return nil
}

// Format returns the source format
func (d *DecodeStage) Format() audio.Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format
}

// DurationUs returns the source duration
func (d *DecodeStage) DurationUs() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.durationUs
}

// SetRange sets the play range; end of 0 means the whole stream
func (d *DecodeStage) SetRange(startUs, endUs int64) {
	d.rangeStartUs.Store(startUs)
	d.rangeEndUs.Store(endUs)
}

// SetLooping enables wraparound at the range end
func (d *DecodeStage) SetLooping(looping bool) {
	d.looping.Store(looping)
}

// IsEOS reports whether the reader is exhausted and every sample was queued
func (d *DecodeStage) IsEOS() bool {
	return d.eos.Load()
}

// Queue returns the output queue
func (d *DecodeStage) Queue() *Queue {
	return d.queue
}

// Recycle hands a consumed buffer back to the pool
func (d *DecodeStage) Recycle(b *audio.PCMBuffer) {
	d.pool.Release(b)
}

// Start launches the producer goroutine
func (d *DecodeStage) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.src == nil {
		return ErrNotConfigured
	}
	if d.worker != nil && !d.exited {
		return nil
	}

	d.readerEOS = false
	d.spawnLocked()
	return nil
}

// spawnLocked starts a fresh producer goroutine
func (d *DecodeStage) spawnLocked() {
	d.eos.Store(false)
	d.exited = false
	d.queue.Reopen()
	d.worker = spawn("decode "+d.tag, d.run)
}

// Seek moves the source to timeUs and drops everything decoded so far
func (d *DecodeStage) Seek(timeUs int64) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.src == nil {
		return 0, ErrNotConfigured
	}
	pos, err := d.src.SeekTo(timeUs)
	if err != nil {
		return 0, fmt.Errorf("seek to %dus: %w", timeUs, err)
	}
	d.discardLocked()
	d.readerEOS = false
	for _, b := range d.queue.Flush() {
		d.pool.Release(b)
	}

	// A producer that already hit end-of-stream must resume
	if d.worker != nil && d.exited {
		d.spawnLocked()
	} else {
		d.eos.Store(false)
	}
	return pos, nil
}

// Stop halts the producer, joining it with a timeout, and recycles
// every buffer it produced
func (d *DecodeStage) Stop() {
	d.queue.Cancel()
	if d.worker != nil {
		d.worker.join(d.config.JoinTimeout)
		d.worker = nil
	}

	d.mu.Lock()
	d.discardLocked()
	d.mu.Unlock()

	for _, b := range d.queue.Flush() {
		d.pool.Release(b)
	}
}

// Release closes the source; Stop must have been called
func (d *DecodeStage) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.src != nil {
		if err := d.src.Close(); err != nil {
			log.Printf("[decode %s] release: %v", d.tag, err)
		}
		d.src = nil
	}
	d.pool.Clear()
}

// run is the producer loop
func (d *DecodeStage) run(ctx context.Context) {
	for ctx.Err() == nil {
		ready, epoch, finished, err := d.fill()
		if err != nil {
			log.Printf("[decode %s] %v", d.tag, err)
			d.abort()
			if d.config.OnError != nil {
				d.config.OnError(err)
			}
			return
		}

		stale := false
		for i, b := range ready {
			if err := d.queue.Push(b, epoch); err != nil {
				for _, rest := range ready[i:] {
					d.pool.Release(rest)
				}
				if errors.Is(err, ErrCancelled) {
					return
				}
				// Flushed by a seek; keep decoding from the new position
				stale = true
				break
			}
		}

		if finished && !stale && d.exit(epoch) {
			log.Printf("[decode %s] end of stream", d.tag)
			return
		}
	}
}

// exit marks the producer finished unless a seek started a new epoch
func (d *DecodeStage) exit(epoch uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.queue.Epoch() != epoch {
		return false
	}
	d.exited = true
	d.eos.Store(true)
	return true
}

// abort marks the producer finished after a read failure. End-of-stream
// stays unset so playback never mistakes the failure for completion.
func (d *DecodeStage) abort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exited = true
}

// Exited reports whether the producer goroutine has finished
func (d *DecodeStage) Exited() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.worker != nil && d.exited
}

// fill decodes and accumulates until it has full buffers to hand off
func (d *DecodeStage) fill() (ready []*audio.PCMBuffer, epoch uint64, finished bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	epoch = d.queue.Epoch()
	if d.src == nil {
		return nil, epoch, true, nil
	}

	if d.pendingOff >= len(d.pending) {
		if d.readerEOS {
			if d.current != nil && d.current.Size > 0 {
				ready = append(ready, d.finishLocked())
			}
			return ready, epoch, true, nil
		}
		if err := d.readLocked(); err != nil {
			return nil, epoch, false, err
		}
	}

	for d.pendingOff < len(d.pending) {
		if d.current == nil {
			d.current = d.pool.Acquire()
			d.current.PresentationTimeUs = d.pendingUs + d.format.FramesToUs(int64(d.pendingOff/d.format.Channels))
		}
		before := d.pendingOff
		d.interleaveLocked()
		if d.current.Full() {
			ready = append(ready, d.finishLocked())
		} else if d.pendingOff == before {
			// Trailing partial frame
			d.pending = nil
			d.pendingOff = 0
		}
	}
	return ready, epoch, false, nil
}

// readLocked pulls one chunk, wrapping or ending at the range end
func (d *DecodeStage) readLocked() error {
	pos := d.src.SampleTimeUs()
	end := d.rangeEndUs.Load()

	if pos < 0 || (end > 0 && pos >= end) {
		if !d.looping.Load() {
			d.readerEOS = true
			return nil
		}
		start := d.rangeStartUs.Load()
		if _, err := d.src.SeekTo(start); err != nil {
			return fmt.Errorf("loop seek to %dus: %w", start, err)
		}
		if d.src.SampleTimeUs() < 0 {
			d.readerEOS = true
		}
		return nil
	}

	chunk, err := d.src.ReadChunk()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read at %dus: %w", pos, err)
	}
	d.pending = chunk.Samples
	d.pendingOff = 0
	d.pendingUs = chunk.TimeUs
	return nil
}

// interleaveLocked copies pending frames into the current buffer as stereo
func (d *DecodeStage) interleaveLocked() {
	b := d.current
	src := d.pending[d.pendingOff:]
	dst := b.Samples[b.Size:]

	switch channels := d.format.Channels; channels {
	case 1:
		n := audio.MonoToStereo(dst, src)
		b.Size += n * 2
		d.pendingOff += n
	case 2:
		n := copy(dst, src)
		n -= n % 2
		b.Size += n
		d.pendingOff += n
	default:
		// Keep the first two channels
		frames := 0
		for frames*2+1 < len(dst) && (frames+1)*channels <= len(src) {
			dst[frames*2] = src[frames*channels]
			dst[frames*2+1] = src[frames*channels+1]
			frames++
		}
		b.Size += frames * 2
		d.pendingOff += frames * channels
	}
}

// finishLocked stamps the current buffer and detaches it
func (d *DecodeStage) finishLocked() *audio.PCMBuffer {
	b := d.current
	d.current = nil
	b.Index = d.index
	d.index++
	b.Duration = audio.BufferDuration(b.Size, audio.OutputChannels, d.format.SampleRate)
	return b
}

// discardLocked drops the partial buffer and undelivered samples
func (d *DecodeStage) discardLocked() {
	if d.current != nil {
		d.pool.Release(d.current)
		d.current = nil
	}
	d.pending = nil
	d.pendingOff = 0
}
