// ABOUTME: Test doubles for decode sources and output sinks
// ABOUTME: Provides in-memory sources, recording sinks and WAV fixtures shared across package tests
package audiotest

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/cadence/pkg/audio"
	"github.com/Resonate-Protocol/cadence/pkg/audio/decode"
)

// Source generates frames whose samples encode their own frame number,
// so tests can tell which part of the stream reached the sink
type Source struct {
	mu        sync.Mutex
	format    audio.Format
	total     int64
	frame     int64
	chunk     int
	eof       bool
	closed    bool
	seeks     []int64
	readErr   error
	out       []int16
	readDelay time.Duration
}

// NewSource creates a source of totalFrames frames delivered chunkFrames at a time
func NewSource(sampleRate, channels int, totalFrames int64, chunkFrames int) *Source {
	return &Source{
		format: audio.Format{
			Codec:      "test",
			SampleRate: sampleRate,
			Channels:   channels,
			BitDepth:   16,
		},
		total: totalFrames,
		chunk: chunkFrames,
		out:   make([]int16, chunkFrames*channels),
	}
}

// SampleValue is the value every channel of frame carries
func SampleValue(frame int64) int16 {
	return int16(frame % 30000)
}

// FailReads makes every following ReadChunk return err
func (s *Source) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// SetReadDelay slows every ReadChunk down
func (s *Source) SetReadDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readDelay = d
}

func (s *Source) Format() audio.Format { return s.format }

func (s *Source) DurationUs() int64 { return s.format.FramesToUs(s.total) }

func (s *Source) SampleTimeUs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eof {
		return -1
	}
	return s.format.FramesToUs(s.frame)
}

func (s *Source) ReadChunk() (decode.Chunk, error) {
	s.mu.Lock()
	delay := s.readDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readErr != nil {
		return decode.Chunk{}, s.readErr
	}
	if s.eof || s.frame >= s.total {
		s.eof = true
		return decode.Chunk{}, io.EOF
	}

	frames := int64(s.chunk)
	if remaining := s.total - s.frame; remaining < frames {
		frames = remaining
	}
	for i := int64(0); i < frames; i++ {
		v := SampleValue(s.frame + i)
		for ch := 0; ch < s.format.Channels; ch++ {
			s.out[int(i)*s.format.Channels+ch] = v
		}
	}
	t := s.format.FramesToUs(s.frame)
	s.frame += frames
	return decode.Chunk{TimeUs: t, Samples: s.out[:int(frames)*s.format.Channels]}, nil
}

func (s *Source) SeekTo(timeUs int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame := s.format.UsToFrames(timeUs)
	if frame > s.total {
		frame = s.total
	}
	if frame < 0 {
		frame = 0
	}
	s.frame = frame
	s.eof = frame >= s.total
	s.seeks = append(s.seeks, timeUs)
	return s.format.FramesToUs(frame), nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Seeks returns every requested seek time
func (s *Source) Seeks() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.seeks...)
}

// Closed reports whether Close was called
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ErrOpenFailed is what a Sink returns from Open when told to fail
var ErrOpenFailed = errors.New("sink open failed")

// Sink records everything written to it
type Sink struct {
	mu         sync.Mutex
	failOpen   bool
	writeDelay time.Duration
	opens      int
	starts     int
	stops      int
	closes     int
	open       bool
	format     audio.Format
	samples    []int16
	writes     int
}

// NewSink creates a recording sink
func NewSink() *Sink {
	return &Sink{}
}

// FailOpen makes Open return ErrOpenFailed
func (s *Sink) FailOpen(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOpen = fail
}

// SetWriteDelay slows every Write down to emulate a device draining
func (s *Sink) SetWriteDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeDelay = d
}

func (s *Sink) Open(format audio.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOpen {
		return ErrOpenFailed
	}
	s.opens++
	s.open = true
	s.format = format
	return nil
}

func (s *Sink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	return nil
}

func (s *Sink) Write(samples []int16) (int, error) {
	s.mu.Lock()
	delay := s.writeDelay
	s.samples = append(s.samples, samples...)
	s.writes++
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return len(samples), nil
}

func (s *Sink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.open = false
	return nil
}

// Samples returns a copy of every sample written
func (s *Sink) Samples() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int16(nil), s.samples...)
}

// Writes returns the number of Write calls
func (s *Sink) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Counts returns how many times Open, Start, Stop and Close were called
func (s *Sink) Counts() (opens, starts, stops, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens, s.starts, s.stops, s.closes
}

// Format returns the format passed to the last Open
func (s *Sink) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// PCM16 encodes samples as little-endian bytes
func PCM16(samples []int16) []byte {
	buf := new(bytes.Buffer)
	for _, s := range samples {
		binary.Write(buf, binary.LittleEndian, s)
	}
	return buf.Bytes()
}

// WAV builds a canonical 44-byte-header PCM WAV file around data
func WAV(sampleRate, channels, bitsPerSample int, data []byte) []byte {
	buf := new(bytes.Buffer)

	numChannels := uint16(channels)
	bits := uint16(bitsPerSample)
	byteRate := uint32(sampleRate) * uint32(numChannels) * uint32(bits/8)
	blockAlign := numChannels * (bits / 8)
	dataSize := uint32(len(data))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, numChannels)
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, bits)

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataSize)
	buf.Write(data)

	return buf.Bytes()
}

// WriteFile stores data under the test's temp dir and returns the path
func WriteFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}
