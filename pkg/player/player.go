// ABOUTME: Player controller and lifecycle state machine
// ABOUTME: Validates every operation against the current state and owns the decode and playback goroutines
package player

import (
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/cadence/internal/pipeline"
	"github.com/Resonate-Protocol/cadence/pkg/audio"
	"github.com/Resonate-Protocol/cadence/pkg/audio/output"
	"golang.org/x/sync/errgroup"
)

// ErrDataSourceInvalid is returned by SetDataSource when the file cannot be decoded
var ErrDataSourceInvalid = pipeline.ErrDataSourceInvalid

// maxWorkers bounds concurrent prepare and callback tasks
const maxWorkers = 2

// Player decodes a media file and plays it through a sink
type Player struct {
	config Config
	id     string
	sink   output.Sink

	// mu serializes every lifecycle operation
	mu           sync.Mutex
	decoder      *pipeline.DecodeStage
	playback     *pipeline.PlaybackStage
	sinkOpen     bool
	rangeStartUs int64
	rangeEndUs   int64

	state      atomic.Int32
	volume     atomic.Uint32
	looping    atomic.Bool
	positionUs atomic.Int64
	durationUs atomic.Int64

	lmu       sync.RWMutex
	listeners Listeners

	workers errgroup.Group
}

// New creates an idle player
func New(config Config) *Player {
	config = config.withDefaults()

	p := &Player{
		config:    config,
		id:        config.Name,
		sink:      config.Sink,
		listeners: config.Listeners,
	}
	p.volume.Store(math.Float32bits(config.Volume))
	p.looping.Store(config.Looping)
	p.workers.SetLimit(maxWorkers)
	return p
}

// ID returns the player's log tag
func (p *Player) ID() string {
	return p.id
}

// State returns the current lifecycle state
func (p *Player) State() State {
	return State(p.state.Load())
}

// setStateLocked moves to next and logs the transition (must hold p.mu)
func (p *Player) setStateLocked(next State) {
	prev := State(p.state.Swap(int32(next)))
	log.Printf("[player %s] state: %s->%s", p.id, prev, next)

	if l := p.getListeners(); l.OnStateChange != nil {
		l.OnStateChange(p, prev, next)
	}
}

// requireLocked returns a StateError unless the state is one of states
func (p *Player) requireLocked(op string, states []State) error {
	if s := p.State(); !s.in(states) {
		return invalidState(op, s, states)
	}
	return nil
}

// SetDataSource opens path; encoded=false means WAV or headerless PCM
func (p *Player) SetDataSource(path string, encoded bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireLocked("setDataSource", setDataSourceStates); err != nil {
		return err
	}

	if p.decoder == nil {
		p.newStagesLocked()
	}
	if err := p.decoder.Configure(path, encoded); err != nil {
		return fmt.Errorf("setDataSource: %w", err)
	}

	p.durationUs.Store(p.decoder.DurationUs())
	p.positionUs.Store(0)
	p.setStateLocked(StateInitialized)
	return nil
}

// newStagesLocked builds the decode and playback stages
func (p *Player) newStagesLocked() {
	p.decoder = pipeline.NewDecodeStage(pipeline.DecodeConfig{
		QueueCapacity: p.config.QueueCapacity,
		JoinTimeout:   p.config.JoinTimeout,
		RawFormat:     p.config.RawFormat,
		Open:          p.config.Open,
		OnError: func(err error) {
			p.fail(ErrorUnknown, ErrorDataSourceInvalid)
		},
	}, p.id)
	p.decoder.SetLooping(p.looping.Load())

	p.playback = pipeline.NewPlaybackStage(p.decoder, p.sink, pipeline.PlaybackHooks{
		Running:    func() bool { return p.State() == StateStarted },
		Looping:    p.looping.Load,
		Volume:     p.Volume,
		OnData:     p.onDataProcess,
		OnPosition: p.positionUs.Store,
		OnComplete: p.complete,
		OnError: func(err error) {
			p.fail(ErrorUnknown, ErrorUnknown)
		},
	}, p.id)
}

// Prepare opens the sink synchronously. A sink failure moves the player to
// Error and is reported through OnError, not returned.
func (p *Player) Prepare() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireLocked("prepare", prepareStates); err != nil {
		return err
	}
	p.prepareLocked()
	return nil
}

// PrepareAsync moves to Preparing and prepares on a worker goroutine,
// then calls OnPrepared
func (p *Player) PrepareAsync() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireLocked("prepareAsync", prepareStates); err != nil {
		return err
	}
	p.setStateLocked(StatePreparing)

	p.dispatch(func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[player %s] prepare panicked: %v", p.id, r)
				p.fail(ErrorInitialize, ErrorAudioTrackInitializeFailed)
			}
		}()

		if !p.prepareAsyncStep() {
			return
		}
		if l := p.getListeners(); l.OnPrepared != nil {
			l.OnPrepared(p)
		}
	})
	return nil
}

func (p *Player) prepareAsyncStep() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Reset or Release may have won the race
	if p.State() != StatePreparing {
		return false
	}
	return p.prepareLocked()
}

// prepareLocked clamps the range and opens the sink (must hold p.mu)
func (p *Player) prepareLocked() bool {
	duration := p.durationUs.Load()
	if p.rangeEndUs == 0 || p.rangeEndUs > duration {
		p.rangeEndUs = duration
	}
	p.decoder.SetRange(p.rangeStartUs, p.rangeEndUs)

	src := p.decoder.Format()
	format := audio.Format{
		Codec:      "pcm",
		SampleRate: src.SampleRate,
		Channels:   audio.OutputChannels,
		BitDepth:   16,
	}
	if !p.sinkOpen {
		if err := p.sink.Open(format); err != nil {
			log.Printf("[player %s] prepare: sink open failed: %v", p.id, err)
			p.setStateLocked(StateError)
			p.notifyError(ErrorInitialize, ErrorAudioTrackInitializeFailed)
			return false
		}
		p.sinkOpen = true
	}

	p.setStateLocked(StatePrepared)
	return true
}

// Start begins playback. From Prepared or Completed the decoder restarts at
// the range start; from Paused only playback resumes.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireLocked("start", startStates); err != nil {
		return err
	}

	if p.State() != StatePaused {
		p.decoder.Stop()
		pos, err := p.decoder.Seek(p.rangeStartUs)
		if err != nil {
			return fmt.Errorf("start: %w", err)
		}
		p.positionUs.Store(pos)
		if err := p.decoder.Start(); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	}

	p.setStateLocked(StateStarted)
	p.playback.Start()
	return nil
}

// Pause stops playback; the decoder keeps its queue filled
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireLocked("pause", pauseStates); err != nil {
		return err
	}
	p.setStateLocked(StatePaused)
	p.playback.Join()
	return nil
}

// Stop halts playback and decoding and closes the sink. Stopping while
// stopped is a no-op.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireLocked("stop", stopStates); err != nil {
		return err
	}
	if p.State() == StateStopped {
		return nil
	}

	p.setStateLocked(StateStopped)
	p.teardownLocked(false)
	return nil
}

// ReStart is Stop, Prepare, then Start
func (p *Player) ReStart() error {
	if err := p.Stop(); err != nil {
		return err
	}
	if err := p.Prepare(); err != nil {
		return err
	}
	if p.State() == StateError {
		return fmt.Errorf("reStart: %w", invalidState("start", StateError, startStates))
	}
	return p.Start()
}

// Release tears everything down and moves to End
func (p *Player) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() == StateEnd {
		return
	}
	p.setStateLocked(StateEnd)
	p.teardownLocked(true)
}

// Reset tears everything down and returns to Idle
func (p *Player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.setStateLocked(StateIdle)
	p.teardownLocked(true)
	p.rangeStartUs = 0
	p.rangeEndUs = 0
	p.positionUs.Store(0)
	p.durationUs.Store(0)
}

// teardownLocked joins playback, closes the sink and stops the decoder,
// releasing it as well when release is set (must hold p.mu)
func (p *Player) teardownLocked(release bool) {
	if p.playback != nil {
		p.playback.Join()
	}
	if p.sinkOpen {
		if err := p.sink.Close(); err != nil {
			log.Printf("[player %s] sink close: %v", p.id, err)
		}
		p.sinkOpen = false
	}
	if p.decoder != nil {
		p.decoder.Stop()
		if release {
			p.decoder.Release()
			p.decoder = nil
			p.playback = nil
		}
	}
}

// SeekTo moves playback to msec
func (p *Player) SeekTo(msec int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireLocked("seekTo", seekStates); err != nil {
		return err
	}

	us := msToUs(msec)
	if us < 0 {
		us = 0
	}
	if d := p.durationUs.Load(); us > d {
		us = d
	}
	pos, err := p.decoder.Seek(us)
	if err != nil {
		return fmt.Errorf("seekTo: %w", err)
	}
	p.positionUs.Store(pos)
	return nil
}

// SetPlayRange restricts playback to [startMs, endMs]. Each bound is only
// taken when positive and start < end; once prepared, the range is
// clamped to the duration. It is accepted in every state and returns no
// error: before Prepare the range is stored and clamped when Prepare runs.
func (p *Player) SetPlayRange(startMs, endMs int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if startMs > 0 && startMs < endMs {
		p.rangeStartUs = msToUs(startMs)
	}
	if endMs > 0 && startMs < endMs {
		p.rangeEndUs = msToUs(endMs)
	}

	if p.State().rangeClamped() {
		duration := p.durationUs.Load()
		if p.rangeEndUs > duration {
			p.rangeEndUs = duration
		}
		if p.rangeStartUs > duration {
			p.rangeStartUs = 0
		}
	}

	if p.decoder != nil {
		p.decoder.SetRange(p.rangeStartUs, p.rangeEndUs)
	}
}

// PlayRange returns the current range in milliseconds
func (p *Player) PlayRange() (startMs, endMs int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return usToMs(p.rangeStartUs), usToMs(p.rangeEndUs)
}

// IsPlaying reports whether the player is Started
func (p *Player) IsPlaying() (bool, error) {
	s := p.State()
	if !s.in(isPlayingStates) {
		return false, invalidState("isPlaying", s, isPlayingStates)
	}
	return s == StateStarted, nil
}

// SetVolume sets the gain applied to every sample
func (p *Player) SetVolume(volume float32) {
	if volume < 0 || math.IsNaN(float64(volume)) {
		volume = 0
	}
	p.volume.Store(math.Float32bits(volume))
	log.Printf("[player %s] volume set to %.2f", p.id, volume)
}

// Volume returns the current gain
func (p *Player) Volume() float32 {
	return math.Float32frombits(p.volume.Load())
}

// SetLooping enables or disables wraparound at the range end
func (p *Player) SetLooping(looping bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.looping.Store(looping)
	if p.decoder != nil {
		p.decoder.SetLooping(looping)
	}
}

// IsLooping returns the looping flag
func (p *Player) IsLooping() bool {
	return p.looping.Load()
}

// Duration returns the stream length in milliseconds
func (p *Player) Duration() int {
	return usToMs(p.durationUs.Load())
}

// CurrentPosition returns the timestamp of the last played buffer in milliseconds
func (p *Player) CurrentPosition() int {
	return usToMs(p.positionUs.Load())
}

// Stats returns playback counters
func (p *Player) Stats() pipeline.PlaybackStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playback == nil {
		return pipeline.PlaybackStats{}
	}
	return p.playback.Stats()
}

// SetOnPrepared replaces the prepared callback
func (p *Player) SetOnPrepared(fn func(p *Player)) {
	p.lmu.Lock()
	defer p.lmu.Unlock()
	p.listeners.OnPrepared = fn
}

// SetOnCompletion replaces the completion callback
func (p *Player) SetOnCompletion(fn func(p *Player)) {
	p.lmu.Lock()
	defer p.lmu.Unlock()
	p.listeners.OnCompletion = fn
}

// SetOnError replaces the error callback
func (p *Player) SetOnError(fn func(p *Player, what, extra int)) {
	p.lmu.Lock()
	defer p.lmu.Unlock()
	p.listeners.OnError = fn
}

// SetOnDataProcess replaces the raw audio callback
func (p *Player) SetOnDataProcess(fn func(samples []int16, frames int)) {
	p.lmu.Lock()
	defer p.lmu.Unlock()
	p.listeners.OnDataProcess = fn
}

// SetOnStateChange replaces the state change callback. It runs with the
// player lock held and may only use the lock-free getters.
func (p *Player) SetOnStateChange(fn func(p *Player, prev, next State)) {
	p.lmu.Lock()
	defer p.lmu.Unlock()
	p.listeners.OnStateChange = fn
}

func (p *Player) getListeners() Listeners {
	p.lmu.RLock()
	defer p.lmu.RUnlock()
	return p.listeners
}

func (p *Player) onDataProcess(samples []int16, frames int) {
	if l := p.getListeners(); l.OnDataProcess != nil {
		l.OnDataProcess(samples, frames)
	}
}

// complete runs when playback drains the stream; it hops off the
// playback goroutine before taking the lock
func (p *Player) complete() {
	p.dispatch(func() {
		p.mu.Lock()
		if p.State() != StateStarted {
			p.mu.Unlock()
			return
		}
		p.setStateLocked(StateCompleted)
		p.mu.Unlock()

		if l := p.getListeners(); l.OnCompletion != nil {
			l.OnCompletion(p)
		}
	})
}

// fail moves to Error and reports (what, extra) from a worker goroutine
func (p *Player) fail(what, extra int) {
	p.dispatch(func() {
		p.mu.Lock()
		switch p.State() {
		case StateError, StateIdle, StateEnd:
			p.mu.Unlock()
			return
		}
		p.setStateLocked(StateError)
		p.mu.Unlock()

		p.callOnError(what, extra)
	})
}

// notifyError reports an error whose state change already happened
func (p *Player) notifyError(what, extra int) {
	p.dispatch(func() {
		p.callOnError(what, extra)
	})
}

func (p *Player) callOnError(what, extra int) {
	l := p.getListeners()
	if l.OnError == nil {
		log.Printf("[player %s] error: what=%d extra=%d", p.id, what, extra)
		return
	}
	l.OnError(p, what, extra)
}

// dispatch runs fn on the bounded worker group without blocking the
// caller, which may hold p.mu or be a stage goroutine
func (p *Player) dispatch(fn func()) {
	task := func() error {
		fn()
		return nil
	}
	if p.workers.TryGo(task) {
		return
	}
	go p.workers.Go(task)
}

func msToUs(ms int) int64 {
	return int64(ms) * 1000
}

func usToMs(us int64) int {
	return int(us / 1000)
}
