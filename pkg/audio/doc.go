// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, PCMBuffer and sample conversion helpers
// Package audio provides the fundamental types shared by the decode and playback stages.
//
// This package defines:
//   - Format: Describes a stream (codec, sample rate, channels, bit depth)
//   - PCMBuffer: A fixed-size block of interleaved int16 samples with timing
//
// It also provides sample utilities:
//   - 24-bit and arbitrary bit depth to int16 conversion
//   - Software volume with clipping
//   - Mono to stereo expansion
//
// Example:
//
//	buf := audio.NewPCMBuffer()
//	n := audio.MonoToStereo(buf.Samples[:], mono)
//	buf.Size = n * 2
//	audio.ApplyVolume(buf.Data(), 0.5)
package audio
