// ABOUTME: Source selection for media files
// ABOUTME: Sniffs magic bytes (falling back to the extension) and builds the matching source
package decode

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/cadence/pkg/audio"
)

// Kind names a container/codec a Source can be built for
type Kind string

const (
	KindUnknown Kind = ""
	KindWAV     Kind = "wav"
	KindRaw     Kind = "pcm"
	KindMP3     Kind = "mp3"
	KindFLAC    Kind = "flac"
	KindVorbis  Kind = "vorbis"
	KindOpus    Kind = "opus"
)

// DefaultRawFormat is assumed for headerless PCM when no format is given
var DefaultRawFormat = audio.Format{
	Codec:      "pcm",
	SampleRate: 44100,
	Channels:   2,
	BitDepth:   16,
}

// Open opens path and returns a source for its first audio stream.
// With encoded=false the file is WAV or headerless PCM in raw format;
// otherwise the codec is detected.
func Open(path string, encoded bool, raw audio.Format) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	src, err := NewSource(f, filepath.Ext(path), encoded, raw)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return src, nil
}

// NewSource builds a source over r. ext is a filename extension hint.
func NewSource(r io.ReadSeekCloser, ext string, encoded bool, raw audio.Format) (Source, error) {
	head := make([]byte, 64)
	n, _ := io.ReadFull(r, head)
	head = head[:n]
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind: %w", err)
	}

	kind := Sniff(head)
	if !encoded {
		if kind == KindWAV {
			return NewWAV(r)
		}
		if raw.SampleRate == 0 {
			raw = DefaultRawFormat
		}
		return NewRaw(r, raw)
	}

	if kind == KindUnknown {
		kind = kindFromExt(ext)
	}

	switch kind {
	case KindWAV:
		return NewWAV(r)
	case KindMP3:
		return NewMP3(r)
	case KindFLAC:
		return NewFLAC(r)
	case KindVorbis:
		return NewVorbis(r)
	case KindOpus:
		return NewOpus(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Sniff identifies a file from its leading bytes
func Sniff(head []byte) Kind {
	switch {
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return KindWAV
	case bytes.HasPrefix(head, []byte("fLaC")):
		return KindFLAC
	case bytes.HasPrefix(head, oggPageMagic):
		if bytes.Contains(head, opusHeadMagic) {
			return KindOpus
		}
		if bytes.Contains(head, []byte("\x01vorbis")) {
			return KindVorbis
		}
		return KindUnknown
	case bytes.HasPrefix(head, []byte("ID3")):
		return KindMP3
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return KindMP3
	}
	return KindUnknown
}

func kindFromExt(ext string) Kind {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "wav", "wave":
		return KindWAV
	case "mp3":
		return KindMP3
	case "flac":
		return KindFLAC
	case "ogg", "oga":
		return KindVorbis
	case "opus":
		return KindOpus
	}
	return KindUnknown
}
