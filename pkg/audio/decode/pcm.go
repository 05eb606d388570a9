// ABOUTME: Uncompressed PCM source
// ABOUTME: Reads 8/16/24/32-bit little-endian frames from a byte range of a seekable file
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/cadence/pkg/audio"
)

// PCMSource streams raw interleaved PCM from a region of a file
type PCMSource struct {
	cursor
	r         io.ReadSeekCloser
	dataStart int64
	bitDepth  int
	frameSize int
	raw       []byte
	out       []int16
}

// NewRaw creates a source for headerless PCM described by format
func NewRaw(r io.ReadSeekCloser, format audio.Format) (*PCMSource, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to size raw stream: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind raw stream: %w", err)
	}
	format.Codec = "pcm"
	return newPCMSource(r, format, 0, size)
}

func newPCMSource(r io.ReadSeekCloser, format audio.Format, dataStart, dataSize int64) (*PCMSource, error) {
	switch format.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, format.BitDepth)
	}
	if format.Channels < 1 || format.SampleRate < 1 {
		return nil, fmt.Errorf("%w: %d channels at %dHz", ErrNoAudio, format.Channels, format.SampleRate)
	}

	frameSize := format.BytesPerFrame()
	s := &PCMSource{
		r:         r,
		dataStart: dataStart,
		bitDepth:  format.BitDepth,
		frameSize: frameSize,
		raw:       make([]byte, chunkFrames*frameSize),
		out:       make([]int16, chunkFrames*format.Channels),
	}
	format.BitDepth = 16
	s.format = format
	s.total = dataSize / int64(frameSize)
	if s.total == 0 {
		return nil, ErrNoAudio
	}
	return s, nil
}

// ReadChunk decodes up to chunkFrames frames
func (s *PCMSource) ReadChunk() (Chunk, error) {
	if s.eof {
		return Chunk{}, io.EOF
	}
	remaining := s.total - s.frame
	frames := int64(chunkFrames)
	if remaining < frames {
		frames = remaining
	}
	if frames <= 0 {
		s.eof = true
		return Chunk{}, io.EOF
	}

	n, err := io.ReadFull(s.r, s.raw[:frames*int64(s.frameSize)])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Chunk{}, fmt.Errorf("pcm read failed: %w", err)
	}
	got := n / s.frameSize
	if got == 0 {
		s.eof = true
		return Chunk{}, io.EOF
	}

	count := got * s.format.Channels
	convertPCM(s.out[:count], s.raw[:got*s.frameSize], s.bitDepth)

	return Chunk{TimeUs: s.advance(got), Samples: s.out[:count]}, nil
}

// SeekTo repositions at the exact frame for timeUs
func (s *PCMSource) SeekTo(timeUs int64) (int64, error) {
	frame := s.target(timeUs)
	if _, err := s.r.Seek(s.dataStart+frame*int64(s.frameSize), io.SeekStart); err != nil {
		return 0, fmt.Errorf("pcm seek failed: %w", err)
	}
	s.frame = frame
	s.eof = frame >= s.total
	return s.format.FramesToUs(frame), nil
}

// Close releases the file
func (s *PCMSource) Close() error {
	return s.r.Close()
}

// convertPCM converts little-endian PCM bytes of the given depth to int16
func convertPCM(dst []int16, src []byte, bitDepth int) {
	switch bitDepth {
	case 8:
		// 8-bit WAV is unsigned
		for i := range dst {
			dst[i] = int16(int(src[i])-128) << 8
		}
	case 16:
		for i := range dst {
			dst[i] = int16(binary.LittleEndian.Uint16(src[i*2:]))
		}
	case 24:
		for i := range dst {
			b := [3]byte{src[i*3], src[i*3+1], src[i*3+2]}
			dst[i] = audio.SampleFromBits(audio.SampleFrom24Bit(b), 24)
		}
	case 32:
		for i := range dst {
			dst[i] = audio.SampleFromBits(int32(binary.LittleEndian.Uint32(src[i*4:])), 32)
		}
	}
}
