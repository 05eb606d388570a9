// ABOUTME: Oto-based audio sink implementation
// ABOUTME: Streams PCM into a persistent oto player through a pipe, resampling to the shared context rate
package output

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/Resonate-Protocol/cadence/pkg/audio"
	"github.com/Resonate-Protocol/cadence/pkg/audio/resample"
	"github.com/ebitengine/oto/v3"
)

// ErrFormatLocked is returned when a second channel layout is requested from
// oto, which allows only one context per process
var ErrFormatLocked = errors.New("oto context already initialized with another channel count")

var (
	otoMu     sync.Mutex
	otoCtx    *oto.Context
	otoFormat audio.Format
)

// sharedContext returns the process-wide oto context and its format,
// creating it on first use
func sharedContext(format audio.Format) (*oto.Context, audio.Format, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if otoFormat.Channels != format.Channels {
			return nil, otoFormat, fmt.Errorf("%w (%dch -> %dch)", ErrFormatLocked,
				otoFormat.Channels, format.Channels)
		}
		return otoCtx, otoFormat, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, format, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	otoCtx = ctx
	otoFormat = format
	return ctx, format, nil
}

// Oto sink implementation using oto library
type Oto struct {
	mu         sync.Mutex
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	scratch    []byte
	format     audio.Format
	resampler  *resample.Resampler
	resampled  []int16
}

// NewOto creates a new Oto sink
func NewOto() *Oto {
	return &Oto{}
}

// Open initializes the shared context and a player fed by a pipe
func (o *Oto) Open(format audio.Format) error {
	if format.BitDepth != 16 {
		log.Printf("[oto] only 16-bit output is supported, ignoring bitDepth=%d", format.BitDepth)
	}

	ctx, ctxFormat, err := sharedContext(format)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		log.Printf("[oto] output already open, reusing player")
		return nil
	}

	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = ctx.NewPlayer(o.pipeReader)
	o.format = format
	o.resampler = nil
	if ctxFormat.SampleRate != format.SampleRate {
		o.resampler = resample.New(format.SampleRate, ctxFormat.SampleRate, format.Channels)
		log.Printf("[oto] resampling %dHz -> %dHz", format.SampleRate, ctxFormat.SampleRate)
	}

	log.Printf("[oto] output initialized: %dHz, %d channels", format.SampleRate, format.Channels)
	return nil
}

// Start resumes the player
func (o *Oto) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return ErrNotOpen
	}
	o.player.Play()
	return nil
}

// Write pushes samples into the pipe (blocks until the player takes them)
func (o *Oto) Write(samples []int16) (int, error) {
	o.mu.Lock()
	w := o.pipeWriter
	if w == nil {
		o.mu.Unlock()
		return 0, ErrNotOpen
	}
	out := samples
	if o.resampler != nil {
		if need := o.resampler.OutputSamplesNeeded(len(samples)); cap(o.resampled) < need {
			o.resampled = make([]int16, need)
		}
		o.resampled = o.resampled[:cap(o.resampled)]
		out = o.resampled[:o.resampler.Resample(samples, o.resampled)]
	}
	o.scratch = int16ToBytes(o.scratch, out)
	buf := o.scratch
	o.mu.Unlock()

	if _, err := w.Write(buf); err != nil {
		return 0, fmt.Errorf("pipe write failed: %w", err)
	}
	return len(samples), nil
}

// Stop pauses the player
func (o *Oto) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player != nil {
		o.player.Pause()
	}
	return nil
}

// Close releases the player; the shared context stays alive
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	var err error
	if o.player != nil {
		err = o.player.Close()
		o.player = nil
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
		o.pipeReader = nil
	}
	o.resampler = nil
	if err != nil {
		return fmt.Errorf("failed to close oto player: %w", err)
	}
	return nil
}
