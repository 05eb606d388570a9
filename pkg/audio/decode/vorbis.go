// ABOUTME: Ogg Vorbis source
// ABOUTME: Decodes Vorbis with jfreymuth/oggvorbis and converts float samples to int16
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/cadence/pkg/audio"
	"github.com/jfreymuth/oggvorbis"
)

// VorbisSource streams an Ogg Vorbis file
type VorbisSource struct {
	cursor
	r      io.ReadSeekCloser
	reader *oggvorbis.Reader
	floats []float32
	out    []int16
}

// NewVorbis creates a Vorbis source reading from r
func NewVorbis(r io.ReadSeekCloser) (*VorbisSource, error) {
	reader, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create vorbis decoder: %w", err)
	}
	if reader.Channels() < 1 {
		return nil, ErrNoAudio
	}

	channels := reader.Channels()
	s := &VorbisSource{
		r:      r,
		reader: reader,
		floats: make([]float32, chunkFrames*channels),
		out:    make([]int16, chunkFrames*channels),
	}
	s.format = audio.Format{
		Codec:      "vorbis",
		SampleRate: reader.SampleRate(),
		Channels:   channels,
		BitDepth:   16,
	}
	s.total = reader.Length()
	return s, nil
}

// ReadChunk decodes up to chunkFrames frames
func (s *VorbisSource) ReadChunk() (Chunk, error) {
	if s.eof {
		return Chunk{}, io.EOF
	}

	n, err := s.reader.Read(s.floats)
	if err != nil && !errors.Is(err, io.EOF) {
		return Chunk{}, fmt.Errorf("vorbis decode error: %w", err)
	}
	// Read reports interleaved values; drop any partial frame
	n -= n % s.format.Channels
	if n == 0 {
		if err != nil {
			s.eof = true
			return Chunk{}, io.EOF
		}
		return Chunk{TimeUs: s.advance(0)}, nil
	}

	for i := 0; i < n; i++ {
		s.out[i] = audio.SampleFromFloat(s.floats[i])
	}
	return Chunk{TimeUs: s.advance(n / s.format.Channels), Samples: s.out[:n]}, nil
}

// SeekTo moves to the frame for timeUs
func (s *VorbisSource) SeekTo(timeUs int64) (int64, error) {
	frame := s.target(timeUs)
	if err := s.reader.SetPosition(frame); err != nil {
		return 0, fmt.Errorf("vorbis seek failed: %w", err)
	}
	s.frame = s.reader.Position()
	s.eof = s.total > 0 && s.frame >= s.total
	return s.format.FramesToUs(s.frame), nil
}

// Close releases the file
func (s *VorbisSource) Close() error {
	return s.r.Close()
}
