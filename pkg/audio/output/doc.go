// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the Sink interface with oto, malgo and null backends
// Package output provides audio playback sinks.
//
// Backends:
//   - Oto: default, pure Go on most platforms (one context per process)
//   - Malgo: miniaudio device with a callback-drained ring buffer
//   - Null: discards audio, optionally paced in real time
//
// Example:
//
//	sink, err := output.New("oto")
//	err = sink.Open(audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16})
//	err = sink.Start()
//	_, err = sink.Write(samples)
package output
