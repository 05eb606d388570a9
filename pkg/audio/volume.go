// ABOUTME: Software volume scaling for 16-bit PCM
// ABOUTME: Rounds each scaled sample and clips it into the int16 range
package audio

import (
	"math"
)

// ClampInt16 clips v into [-32768, 32767]
func ClampInt16(v int64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// ClampFloat rounds v and clips it into the int16 range before converting.
// NaN maps to 0.
func ClampFloat(v float64) int16 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(math.Round(v))
}

// ApplyVolume scales samples in place by volume with clipping protection
func ApplyVolume(samples []int16, volume float32) {
	if volume == 1 {
		return
	}
	if math.IsNaN(float64(volume)) {
		volume = 0
	}
	for i, s := range samples {
		samples[i] = ClampFloat(float64(s) * float64(volume))
	}
}

// MonoToStereo duplicates each mono sample into dst as a left/right pair.
// It returns the number of mono samples consumed.
func MonoToStereo(dst, src []int16) int {
	n := len(dst) / 2
	if n > len(src) {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		dst[2*i] = src[i]
		dst[2*i+1] = src[i]
	}
	return n
}
