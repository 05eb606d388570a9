// ABOUTME: Malgo-based audio sink implementation
// ABOUTME: Uses miniaudio via malgo with a ring buffer drained by the device callback
package output

import (
	"fmt"
	"log"
	"sync"

	"github.com/Resonate-Protocol/cadence/pkg/audio"
	"github.com/gen2brain/malgo"
)

// ringMs is the ring buffer capacity in milliseconds
const ringMs = 250

// Malgo sink implementation using malgo/miniaudio library
type Malgo struct {
	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	format   audio.Format
	ring     *RingBuffer
}

// RingBuffer is a blocking circular buffer of int16 samples
type RingBuffer struct {
	buffer   []int16
	readPos  int
	writePos int
	count    int
	closed   bool
	mu       sync.Mutex
	space    *sync.Cond
}

// NewRingBuffer creates a ring buffer with given capacity (in samples)
func NewRingBuffer(capacity int) *RingBuffer {
	rb := &RingBuffer{buffer: make([]int16, capacity)}
	rb.space = sync.NewCond(&rb.mu)
	return rb
}

// Write copies all samples in, waiting for space while full.
// It returns early with the count written if the buffer is closed.
func (rb *RingBuffer) Write(samples []int16) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for written < len(samples) {
		for rb.count == len(rb.buffer) && !rb.closed {
			rb.space.Wait()
		}
		if rb.closed {
			break
		}
		for written < len(samples) && rb.count < len(rb.buffer) {
			rb.buffer[rb.writePos] = samples[written]
			rb.writePos = (rb.writePos + 1) % len(rb.buffer)
			rb.count++
			written++
		}
	}
	return written
}

// Read fills samples, zero-filling on underrun, and wakes blocked writers
func (rb *RingBuffer) Read(samples []int16) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for read < len(samples) && rb.count > 0 {
		samples[read] = rb.buffer[rb.readPos]
		rb.readPos = (rb.readPos + 1) % len(rb.buffer)
		rb.count--
		read++
	}
	for i := read; i < len(samples); i++ {
		samples[i] = 0
	}
	if read > 0 {
		rb.space.Broadcast()
	}
	return read
}

// Available returns the number of samples available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Close wakes any blocked writer and rejects further writes
func (rb *RingBuffer) Close() {
	rb.mu.Lock()
	rb.closed = true
	rb.mu.Unlock()
	rb.space.Broadcast()
}

// NewMalgo creates a new Malgo sink
func NewMalgo() *Malgo {
	return &Malgo{}
}

// Open initializes the malgo context and a stopped playback device
func (m *Malgo) Open(format audio.Format) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil && m.format == format {
		log.Printf("[malgo] output already initialized with same format, reusing device")
		return nil
	}
	if m.device != nil {
		log.Printf("[malgo] format change detected (%dHz/%dch -> %dHz/%dch), reinitializing device",
			m.format.SampleRate, m.format.Channels, format.SampleRate, format.Channels)
		m.closeDevice()
	}

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}

	ring := NewRingBuffer(format.SampleRate * format.Channels * ringMs / 1000)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	channels := format.Channels
	var scratch []int16
	onSamples := func(pOutputSample, pInputSamples []byte, frameCount uint32) {
		n := int(frameCount) * channels
		if cap(scratch) < n {
			scratch = make([]int16, n)
		}
		scratch = scratch[:n]
		ring.Read(scratch)
		int16ToBytes(pOutputSample[:0], scratch)
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	m.device = device
	m.ring = ring
	m.format = format

	log.Printf("[malgo] output initialized: %dHz, %d channels, 16-bit", format.SampleRate, format.Channels)
	return nil
}

// Start starts the device callback
func (m *Malgo) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return ErrNotOpen
	}
	if m.device.IsStarted() {
		return nil
	}
	if err := m.device.Start(); err != nil {
		return fmt.Errorf("failed to start device: %w", err)
	}
	return nil
}

// Write queues samples, blocking while the ring buffer is full
func (m *Malgo) Write(samples []int16) (int, error) {
	m.mu.Lock()
	ring := m.ring
	m.mu.Unlock()
	if ring == nil {
		return 0, ErrNotOpen
	}

	n := ring.Write(samples)
	if n < len(samples) {
		return n, ErrNotOpen
	}
	return n, nil
}

// Stop stops the device callback, keeping buffered audio
func (m *Malgo) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil || !m.device.IsStarted() {
		return nil
	}
	if err := m.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop device: %w", err)
	}
	return nil
}

// Close releases the device and context
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeDevice()

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			log.Printf("[malgo] context uninit error: %v", err)
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}

// closeDevice stops and uninitializes the device (must hold m.mu)
func (m *Malgo) closeDevice() {
	if m.ring != nil {
		m.ring.Close()
		m.ring = nil
	}
	if m.device != nil {
		if m.device.IsStarted() {
			if err := m.device.Stop(); err != nil {
				log.Printf("[malgo] device stop error: %v", err)
			}
		}
		m.device.Uninit()
		m.device = nil
	}
}
