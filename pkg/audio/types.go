// ABOUTME: Audio type definitions
// ABOUTME: Defines stream formats and the fixed-size PCM buffer passed between pipeline stages
package audio

const (
	// BufferSamples is the capacity of a PCM buffer in interleaved int16 samples
	BufferSamples = 1024

	// OutputChannels is the channel count every buffer is normalized to
	OutputChannels = 2

	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Format describes audio stream format
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// BytesPerFrame returns the byte size of one interleaved frame
func (f Format) BytesPerFrame() int {
	return f.Channels * (f.BitDepth / 8)
}

// FramesToUs converts a frame count to microseconds at the format's rate
func (f Format) FramesToUs(frames int64) int64 {
	if f.SampleRate <= 0 {
		return 0
	}
	return frames * 1_000_000 / int64(f.SampleRate)
}

// UsToFrames converts microseconds to a frame count at the format's rate
func (f Format) UsToFrames(us int64) int64 {
	return us * int64(f.SampleRate) / 1_000_000
}

// PCMBuffer holds interleaved 16-bit samples owned by exactly one stage at a time
type PCMBuffer struct {
	Samples            [BufferSamples]int16
	Size               int     // Valid samples in Samples
	PresentationTimeUs int64   // Timestamp of the first sample
	Index              int64   // Sequence number
	Duration           float32 // Milliseconds of audio held
}

// NewPCMBuffer allocates an empty buffer
func NewPCMBuffer() *PCMBuffer {
	return &PCMBuffer{}
}

// Reset zeroes every field so a recycled buffer carries nothing over
func (b *PCMBuffer) Reset() {
	*b = PCMBuffer{}
}

// Full reports whether no more samples fit
func (b *PCMBuffer) Full() bool {
	return b.Size >= BufferSamples
}

// Data returns the valid portion of the sample array
func (b *PCMBuffer) Data() []int16 {
	return b.Samples[:b.Size]
}

// BufferDuration returns the milliseconds represented by size interleaved samples
func BufferDuration(size, channels, sampleRate int) float32 {
	if channels <= 0 || sampleRate <= 0 {
		return 0
	}
	return float32(size/channels) * 1000 / float32(sampleRate)
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit to 16-bit range
	return int16(sample >> 8)
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}

// SampleFromFloat converts a normalized float sample to int16 with clipping
func SampleFromFloat(sample float32) int16 {
	return ClampFloat(float64(sample) * 32767)
}

// SampleFromBits scales a signed sample of the given bit depth to int16
func SampleFromBits(sample int32, bits int) int16 {
	switch {
	case bits == 16:
		return int16(sample)
	case bits > 16:
		return int16(sample >> (bits - 16))
	default:
		return int16(sample << (16 - bits))
	}
}
