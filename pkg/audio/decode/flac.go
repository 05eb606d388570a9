// ABOUTME: FLAC source
// ABOUTME: Decodes FLAC frames with mewkiz/flac and seeks through its seek table
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/cadence/pkg/audio"
	"github.com/mewkiz/flac"
)

// FLACSource streams a FLAC file one frame at a time
type FLACSource struct {
	cursor
	stream   *flac.Stream
	bitDepth int
	out      []int16
}

// NewFLAC creates a FLAC source reading from r
func NewFLAC(r io.ReadSeekCloser) (*FLACSource, error) {
	stream, err := flac.NewSeek(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create flac decoder: %w", err)
	}

	info := stream.Info
	if info.NChannels == 0 || info.SampleRate == 0 {
		return nil, ErrNoAudio
	}

	s := &FLACSource{
		stream:   stream,
		bitDepth: int(info.BitsPerSample),
	}
	s.format = audio.Format{
		Codec:      "flac",
		SampleRate: int(info.SampleRate),
		Channels:   int(info.NChannels),
		BitDepth:   16,
	}
	s.total = int64(info.NSamples)
	return s, nil
}

// ReadChunk decodes the next FLAC frame
func (s *FLACSource) ReadChunk() (Chunk, error) {
	if s.eof {
		return Chunk{}, io.EOF
	}

	frame, err := s.stream.ParseNext()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.eof = true
			return Chunk{}, io.EOF
		}
		return Chunk{}, fmt.Errorf("flac decode error: %w", err)
	}

	channels := len(frame.Subframes)
	if channels == 0 {
		return Chunk{TimeUs: s.advance(0)}, nil
	}
	frames := len(frame.Subframes[0].Samples)
	if cap(s.out) < frames*channels {
		s.out = make([]int16, frames*channels)
	}
	out := s.out[:frames*channels]
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			out[i*channels+ch] = audio.SampleFromBits(frame.Subframes[ch].Samples[i], s.bitDepth)
		}
	}
	return Chunk{TimeUs: s.advance(frames), Samples: out}, nil
}

// SeekTo moves to the first sample of the FLAC frame holding timeUs
func (s *FLACSource) SeekTo(timeUs int64) (int64, error) {
	frame := s.target(timeUs)
	if s.total > 0 && frame >= s.total {
		s.frame = s.total
		s.eof = true
		return s.format.FramesToUs(s.total), nil
	}

	start, err := s.stream.Seek(uint64(frame))
	if err != nil {
		return 0, fmt.Errorf("flac seek failed: %w", err)
	}
	s.frame = int64(start)
	s.eof = false
	return s.format.FramesToUs(s.frame), nil
}

// Close releases the decoder, which also closes the file
func (s *FLACSource) Close() error {
	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("failed to close flac stream: %w", err)
	}
	return nil
}
