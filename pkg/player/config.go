// ABOUTME: Player configuration
// ABOUTME: Zero values are replaced with defaults when the player is created
package player

import (
	"math"
	"time"

	"github.com/Resonate-Protocol/cadence/internal/pipeline"
	"github.com/Resonate-Protocol/cadence/pkg/audio"
	"github.com/Resonate-Protocol/cadence/pkg/audio/decode"
	"github.com/Resonate-Protocol/cadence/pkg/audio/output"
	"github.com/google/uuid"
)

// Config holds player configuration
type Config struct {
	// Name tags log lines (default: short random id)
	Name string

	// Sink receives decoded audio (default: oto)
	Sink output.Sink

	// QueueCapacity is how many buffers are decoded ahead (default: 300)
	QueueCapacity int

	// JoinTimeout bounds goroutine teardown (default: 2s)
	JoinTimeout time.Duration

	// RawFormat describes headerless PCM data sources (default: 44100Hz stereo 16-bit)
	RawFormat audio.Format

	// Volume is the initial gain (default: 1.0)
	Volume float32

	// Muted starts the player at zero gain, overriding Volume
	Muted bool

	// Looping is the initial looping flag
	Looping bool

	// Open builds media sources (default: decode.Open)
	Open func(path string, encoded bool, raw audio.Format) (decode.Source, error)

	// Listeners are the initial callbacks
	Listeners Listeners
}

// withDefaults fills unset fields
func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = uuid.New().String()[:8]
	}
	if c.Sink == nil {
		c.Sink = output.NewOto()
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = pipeline.DefaultQueueCapacity
	}
	if c.JoinTimeout == 0 {
		c.JoinTimeout = pipeline.DefaultJoinTimeout
	}
	if c.RawFormat.SampleRate == 0 {
		c.RawFormat = decode.DefaultRawFormat
	}
	switch {
	case c.Muted, c.Volume < 0, math.IsNaN(float64(c.Volume)):
		c.Volume = 0
	case c.Volume == 0:
		c.Volume = 1.0
	}
	if c.Open == nil {
		c.Open = decode.Open
	}
	return c
}
