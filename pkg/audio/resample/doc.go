// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts 16-bit streams between sample rates for fixed-rate outputs
// Package resample provides audio sample rate conversion.
//
// The oto output shares one device context per process; streams whose rate
// differs from it are converted here before being written.
//
// Example:
//
//	r := resample.New(44100, 48000, 2)
//	out := make([]int16, r.OutputSamplesNeeded(len(in)))
//	n := r.Resample(in, out)
package resample
