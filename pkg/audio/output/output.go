// ABOUTME: Audio sink interface definition
// ABOUTME: Common contract for the playback backends the playback stage writes to
package output

import (
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/cadence/pkg/audio"
)

var (
	// ErrNotOpen is returned when a sink is used before Open
	ErrNotOpen = errors.New("output not initialized")

	// ErrUnknownSink is returned by New for an unrecognized backend name
	ErrUnknownSink = errors.New("unknown output backend")
)

// Sink represents an audio output device accepting interleaved 16-bit PCM
type Sink interface {
	// Open prepares the device for the given format
	Open(format audio.Format) error

	// Start begins (or resumes) consuming written audio
	Start() error

	// Write queues samples for playback, blocking while the device is full
	Write(samples []int16) (int, error)

	// Stop pauses consumption, keeping the device open
	Stop() error

	// Close releases the device; Open may be called again afterwards
	Close() error
}

// New returns the sink backend with the given name
func New(name string) (Sink, error) {
	switch name {
	case "", "oto":
		return NewOto(), nil
	case "malgo":
		return NewMalgo(), nil
	case "null":
		return NewNull(true), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSink, name)
	}
}

// int16ToBytes encodes samples as little-endian bytes into dst
func int16ToBytes(dst []byte, samples []int16) []byte {
	need := len(samples) * 2
	if cap(dst) < need {
		dst = make([]byte, need)
	}
	dst = dst[:need]
	for i, s := range samples {
		dst[i*2] = byte(s)
		dst[i*2+1] = byte(s >> 8)
	}
	return dst
}
