// ABOUTME: Linear resampler for interleaved 16-bit audio
// ABOUTME: Carries the last frame across calls so chunk boundaries interpolate cleanly
package resample

import (
	"math"

	"github.com/Resonate-Protocol/cadence/pkg/audio"
)

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	step       float64 // input frames advanced per output frame
	position   float64 // read position; frame 0 is prev
	prev       []int16 // last input frame of the previous call
	primed     bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		step:       float64(inputRate) / float64(outputRate),
		prev:       make([]int16, channels),
	}
}

// InputRate returns the source rate
func (r *Resampler) InputRate() int {
	return r.inputRate
}

// OutputRate returns the target rate
func (r *Resampler) OutputRate() int {
	return r.outputRate
}

// Resample converts interleaved input into output and returns the number
// of samples written. output should hold OutputSamplesNeeded(len(input)).
func (r *Resampler) Resample(input []int16, output []int16) int {
	ch := r.channels
	frames := len(input) / ch
	if frames == 0 {
		return 0
	}

	start := 0
	if !r.primed {
		copy(r.prev, input[:ch])
		r.primed = true
		start = 1
	}
	avail := frames - start

	// frame k of the virtual stream: prev, then input[start:]
	at := func(k, c int) float64 {
		if k == 0 {
			return float64(r.prev[c])
		}
		return float64(input[(start+k-1)*ch+c])
	}

	out := 0
	for out+ch <= len(output) {
		idx := int(r.position)
		if idx+1 > avail {
			break
		}
		frac := r.position - float64(idx)
		for c := 0; c < ch; c++ {
			a, b := at(idx, c), at(idx+1, c)
			output[out+c] = audio.ClampInt16(int64(math.Round(a + (b-a)*frac)))
		}
		out += ch
		r.position += r.step
	}

	if avail > 0 {
		copy(r.prev, input[(start+avail-1)*ch:(start+avail)*ch])
		r.position -= float64(avail)
		if r.position < 0 {
			r.position = 0
		}
	}
	return out
}

// Reset drops the carried frame and read position
func (r *Resampler) Reset() {
	r.position = 0
	r.primed = false
	for i := range r.prev {
		r.prev[i] = 0
	}
}

// OutputSamplesNeeded is an upper bound on the samples produced from inputSamples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames)/r.step) + 2
	return outputFrames * r.channels
}
