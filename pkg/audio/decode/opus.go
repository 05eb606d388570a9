// ABOUTME: Ogg Opus source
// ABOUTME: Decodes Opus files through libopusfile via hraban/opus streams
package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/cadence/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

const (
	// Opus always decodes at 48kHz
	opusSampleRate = 48000

	// 120ms at 48kHz, the largest Opus frame
	opusMaxFrame = 5760

	// How much of the file tail is scanned for the final granule position
	opusTailScan = 64 * 1024
)

var (
	opusHeadMagic = []byte("OpusHead")
	oggPageMagic  = []byte("OggS")
)

// OpusSource streams an Ogg Opus file
type OpusSource struct {
	cursor
	r      io.ReadSeekCloser
	stream *opus.Stream
	out    []int16
}

// NewOpus creates an Opus source reading from r
func NewOpus(r io.ReadSeekCloser) (*OpusSource, error) {
	channels, preSkip, err := readOpusHead(r)
	if err != nil {
		return nil, err
	}
	granule, err := lastGranule(r)
	if err != nil {
		return nil, err
	}

	s := &OpusSource{
		r:   r,
		out: make([]int16, opusMaxFrame*channels),
	}
	s.format = audio.Format{
		Codec:      "opus",
		SampleRate: opusSampleRate,
		Channels:   channels,
		BitDepth:   16,
	}
	if granule > preSkip {
		s.total = granule - preSkip
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// open (re)creates the opusfile stream from the start of the file
func (s *OpusSource) open() error {
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
	if _, err := s.r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind opus stream: %w", err)
	}
	stream, err := opus.NewStream(s.r)
	if err != nil {
		return fmt.Errorf("failed to create opus stream: %w", err)
	}
	s.stream = stream
	s.frame = 0
	s.eof = false
	return nil
}

// ReadChunk decodes the next Opus packet
func (s *OpusSource) ReadChunk() (Chunk, error) {
	if s.eof {
		return Chunk{}, io.EOF
	}

	n, err := s.stream.Read(s.out)
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.eof = true
			return Chunk{}, io.EOF
		}
		return Chunk{}, fmt.Errorf("opus decode error: %w", err)
	}
	return Chunk{TimeUs: s.advance(n), Samples: s.out[:n*s.format.Channels]}, nil
}

// SeekTo restarts decoding and discards audio up to timeUs
func (s *OpusSource) SeekTo(timeUs int64) (int64, error) {
	frame := s.target(timeUs)
	if frame < s.frame || s.eof {
		if err := s.open(); err != nil {
			return 0, err
		}
	}

	for s.frame < frame {
		want := frame - s.frame
		if want > opusMaxFrame {
			want = opusMaxFrame
		}
		n, err := s.stream.Read(s.out[:want*int64(s.format.Channels)])
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.eof = true
				break
			}
			return 0, fmt.Errorf("opus seek failed: %w", err)
		}
		s.frame += int64(n)
	}
	return s.format.FramesToUs(s.frame), nil
}

// Close releases the decoder and file
func (s *OpusSource) Close() error {
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
	return s.r.Close()
}

// readOpusHead finds the OpusHead packet in the first page and returns
// the channel count and pre-skip
func readOpusHead(r io.ReadSeeker) (int, int64, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, 0, fmt.Errorf("failed to rewind opus stream: %w", err)
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, 0, fmt.Errorf("failed to read opus header: %w", err)
	}
	head = head[:n]

	i := bytes.Index(head, opusHeadMagic)
	if i < 0 || len(head) < i+12 {
		return 0, 0, fmt.Errorf("%w: missing OpusHead", ErrUnsupportedFormat)
	}
	channels := int(head[i+9])
	if channels < 1 {
		return 0, 0, ErrNoAudio
	}
	preSkip := int64(binary.LittleEndian.Uint16(head[i+10:]))
	return channels, preSkip, nil
}

// lastGranule returns the granule position of the final Ogg page
func lastGranule(r io.ReadSeeker) (int64, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to size opus stream: %w", err)
	}
	start := size - opusTailScan
	if start < 0 {
		start = 0
	}
	if _, err := r.Seek(start, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to seek opus tail: %w", err)
	}
	tail, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("failed to read opus tail: %w", err)
	}

	i := bytes.LastIndex(tail, oggPageMagic)
	if i < 0 || len(tail) < i+14 {
		return 0, nil
	}
	return int64(binary.LittleEndian.Uint64(tail[i+6:])), nil
}
