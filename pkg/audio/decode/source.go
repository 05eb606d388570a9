// ABOUTME: Media source interface definition
// ABOUTME: Common contract for every seekable file decoder feeding the decode stage
package decode

import (
	"github.com/Resonate-Protocol/cadence/pkg/audio"
)

// chunkFrames is how many frames a source aims to return per ReadChunk
const chunkFrames = 1024

// Chunk is one block of decoded audio in the source's native channel layout
type Chunk struct {
	TimeUs  int64   // Presentation time of the first frame
	Samples []int16 // Interleaved samples, valid until the next ReadChunk
}

// Source decodes a single audio stream from a seekable file
type Source interface {
	// Format returns the decoded output format (always 16-bit)
	Format() audio.Format

	// DurationUs returns the stream length in microseconds
	DurationUs() int64

	// SampleTimeUs returns the time of the next chunk, or -1 once exhausted
	SampleTimeUs() int64

	// ReadChunk decodes the next chunk; io.EOF once nothing is left
	ReadChunk() (Chunk, error)

	// SeekTo moves to the nearest sync point at or before timeUs and
	// returns the position actually reached
	SeekTo(timeUs int64) (int64, error)

	// Close releases the file and decoder
	Close() error
}

// cursor tracks the frame position shared by every source
type cursor struct {
	format audio.Format
	frame  int64
	total  int64
	eof    bool
}

func (c *cursor) Format() audio.Format {
	return c.format
}

func (c *cursor) DurationUs() int64 {
	return c.format.FramesToUs(c.total)
}

func (c *cursor) SampleTimeUs() int64 {
	if c.eof {
		return -1
	}
	return c.format.FramesToUs(c.frame)
}

// target converts a seek time into a frame number clamped to the stream
func (c *cursor) target(timeUs int64) int64 {
	if timeUs < 0 {
		timeUs = 0
	}
	frame := c.format.UsToFrames(timeUs)
	if c.total > 0 && frame > c.total {
		frame = c.total
	}
	return frame
}

// advance records n frames as consumed and returns the chunk time
func (c *cursor) advance(n int) int64 {
	t := c.format.FramesToUs(c.frame)
	c.frame += int64(n)
	return t
}
