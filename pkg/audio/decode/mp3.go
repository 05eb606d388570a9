// ABOUTME: MP3 source
// ABOUTME: Decodes MP3 to 16-bit stereo with go-mp3 and seeks on frame boundaries
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/cadence/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

const (
	// go-mp3 always produces 16-bit stereo
	mp3BytesPerFrame = 4

	// Samples per MPEG-1 Layer III frame
	mp3FrameSamples = 1152
)

// MP3Source streams an MP3 file
type MP3Source struct {
	cursor
	r       io.ReadSeekCloser
	decoder *mp3.Decoder
	raw     []byte
	out     []int16
}

// NewMP3 creates an MP3 source reading from r
func NewMP3(r io.ReadSeekCloser) (*MP3Source, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	s := &MP3Source{
		r:       r,
		decoder: decoder,
		raw:     make([]byte, chunkFrames*mp3BytesPerFrame),
		out:     make([]int16, chunkFrames*2),
	}
	s.format = audio.Format{
		Codec:      "mp3",
		SampleRate: decoder.SampleRate(),
		Channels:   2,
		BitDepth:   16,
	}
	if length := decoder.Length(); length > 0 {
		s.total = length / mp3BytesPerFrame
	}
	return s, nil
}

// ReadChunk decodes up to chunkFrames frames
func (s *MP3Source) ReadChunk() (Chunk, error) {
	if s.eof {
		return Chunk{}, io.EOF
	}

	n, err := io.ReadFull(s.decoder, s.raw)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Chunk{}, fmt.Errorf("mp3 decode error: %w", err)
	}
	frames := n / mp3BytesPerFrame
	if frames == 0 {
		s.eof = true
		return Chunk{}, io.EOF
	}

	count := frames * 2
	for i := 0; i < count; i++ {
		s.out[i] = int16(binary.LittleEndian.Uint16(s.raw[i*2:]))
	}
	return Chunk{TimeUs: s.advance(frames), Samples: s.out[:count]}, nil
}

// SeekTo moves to the start of the MPEG frame holding timeUs
func (s *MP3Source) SeekTo(timeUs int64) (int64, error) {
	frame := s.target(timeUs)
	frame -= frame % mp3FrameSamples

	if _, err := s.decoder.Seek(frame*mp3BytesPerFrame, io.SeekStart); err != nil {
		return 0, fmt.Errorf("mp3 seek failed: %w", err)
	}
	s.frame = frame
	s.eof = s.total > 0 && frame >= s.total
	return s.format.FramesToUs(frame), nil
}

// Close releases the file
func (s *MP3Source) Close() error {
	return s.r.Close()
}
