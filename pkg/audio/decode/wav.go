// ABOUTME: WAV source built on go-audio/wav header parsing
// ABOUTME: Locates the data chunk then streams it through the PCM source
package decode

import (
	"fmt"
	"io"

	"github.com/Resonate-Protocol/cadence/pkg/audio"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// NewWAV parses the RIFF header of r and returns a source over its PCM data
func NewWAV(r io.ReadSeekCloser) (*PCMSource, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, ErrNotWAV
	}
	if d.WavAudioFormat != wavFormatPCM && d.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("%w: wav format tag %d", ErrUnsupportedEncoding, d.WavAudioFormat)
	}

	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to locate wav data chunk: %w", err)
	}
	dataStart, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to read wav data offset: %w", err)
	}

	format := formatFromWAV(d.Format(), int(d.BitDepth))
	return newPCMSource(r, format, dataStart, int64(d.PCMSize))
}

// formatFromWAV maps a go-audio format onto ours
func formatFromWAV(f *goaudio.Format, bitDepth int) audio.Format {
	if f == nil {
		return audio.Format{Codec: "wav", BitDepth: bitDepth}
	}
	return audio.Format{
		Codec:      "wav",
		SampleRate: f.SampleRate,
		Channels:   f.NumChannels,
		BitDepth:   bitDepth,
	}
}
