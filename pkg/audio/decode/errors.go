// ABOUTME: Sentinel errors for media sources
// ABOUTME: Callers match these with errors.Is
package decode

import "errors"

var (
	// ErrUnsupportedFormat is returned when no source recognizes the file
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrNotWAV is returned when a RIFF/WAVE header is missing or malformed
	ErrNotWAV = errors.New("not a RIFF/WAVE file")

	// ErrUnsupportedEncoding is returned for compressed or float WAV payloads
	ErrUnsupportedEncoding = errors.New("unsupported sample encoding")

	// ErrUnsupportedBitDepth is returned for PCM depths other than 8, 16, 24 or 32
	ErrUnsupportedBitDepth = errors.New("unsupported bit depth")

	// ErrNoAudio is returned when a stream carries no samples or channels
	ErrNoAudio = errors.New("no decodable audio")
)
