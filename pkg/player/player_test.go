// ABOUTME: Integration tests for the Player controller
// ABOUTME: Drives full lifecycles against in-memory sources and recording sinks
package player

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/cadence/internal/audiotest"
	"github.com/Resonate-Protocol/cadence/pkg/audio"
	"github.com/Resonate-Protocol/cadence/pkg/audio/decode"
)

func newTestPlayer(t *testing.T, src *audiotest.Source, sink *audiotest.Sink, listeners Listeners) *Player {
	t.Helper()
	p := New(Config{
		Name:          "test",
		Sink:          sink,
		QueueCapacity: 8,
		JoinTimeout:   time.Second,
		Listeners:     listeners,
		Open: func(string, bool, audio.Format) (decode.Source, error) {
			return src, nil
		},
	})
	t.Cleanup(p.Release)
	return p
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitChan(t *testing.T, what string, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func mustPrepare(t *testing.T, p *Player) {
	t.Helper()
	if err := p.SetDataSource("memory", true); err != nil {
		t.Fatalf("setDataSource failed: %v", err)
	}
	if err := p.Prepare(); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if p.State() != StatePrepared {
		t.Fatalf("expected Prepared, got %s", p.State())
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	p := New(Config{Sink: audiotest.NewSink()})
	defer p.Release()

	if p.State() != StateIdle {
		t.Errorf("expected Idle, got %s", p.State())
	}
	if p.Volume() != 1.0 {
		t.Errorf("expected default volume 1.0, got %f", p.Volume())
	}
	if p.ID() == "" {
		t.Error("expected a generated id")
	}
	if p.config.QueueCapacity != 300 {
		t.Errorf("expected queue capacity 300, got %d", p.config.QueueCapacity)
	}
	if p.config.JoinTimeout != 2*time.Second {
		t.Errorf("expected 2s join timeout, got %v", p.config.JoinTimeout)
	}
}

func TestInitialVolume(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected float32
	}{
		{"unset", Config{}, 1.0},
		{"explicit", Config{Volume: 0.25}, 0.25},
		{"muted", Config{Volume: 0.8, Muted: true}, 0},
		{"negative", Config{Volume: -1}, 0},
		{"nan", Config{Volume: float32(math.NaN())}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Sink = audiotest.NewSink()
			p := New(tt.config)
			defer p.Release()
			if p.Volume() != tt.expected {
				t.Errorf("expected volume %f, got %f", tt.expected, p.Volume())
			}
		})
	}
}

func TestSetVolumeRejectsNaN(t *testing.T) {
	p := New(Config{Sink: audiotest.NewSink()})
	defer p.Release()

	p.SetVolume(float32(math.NaN()))
	if p.Volume() != 0 {
		t.Errorf("expected NaN to become 0, got %f", p.Volume())
	}
	p.SetVolume(-3)
	if p.Volume() != 0 {
		t.Errorf("expected negative to become 0, got %f", p.Volume())
	}
}

func TestLifecycleWithPauseAndResume(t *testing.T) {
	// Ten seconds at 1kHz; each 512-frame buffer takes 20ms to write
	src := audiotest.NewSource(1000, 2, 10_000, 100)
	sink := audiotest.NewSink()
	sink.SetWriteDelay(20 * time.Millisecond)
	p := newTestPlayer(t, src, sink, Listeners{})

	if playing, err := p.IsPlaying(); !errors.Is(err, ErrInvalidState) || playing {
		t.Errorf("expected isPlaying to fail in Idle, got %v/%v", playing, err)
	}

	mustPrepare(t, p)
	if p.Duration() != 10_000 {
		t.Errorf("expected 10000ms duration, got %d", p.Duration())
	}
	if f := sink.Format(); f.Channels != 2 || f.SampleRate != 1000 || f.BitDepth != 16 {
		t.Errorf("unexpected sink format %+v", f)
	}

	if err := p.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if playing, err := p.IsPlaying(); err != nil || !playing {
		t.Errorf("expected playing, got %v/%v", playing, err)
	}
	waitFor(t, "position to advance", func() bool { return p.CurrentPosition() >= 1024 })

	if err := p.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if playing, _ := p.IsPlaying(); playing {
		t.Error("expected not playing while paused")
	}
	paused := p.CurrentPosition()
	writes := sink.Writes()
	time.Sleep(60 * time.Millisecond)
	if p.CurrentPosition() != paused || sink.Writes() != writes {
		t.Error("expected position and output to hold while paused")
	}

	if err := p.Start(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	waitFor(t, "position to advance after resume", func() bool { return p.CurrentPosition() > paused })
	if seeks := src.Seeks(); len(seeks) != 1 {
		t.Errorf("resume must not restart decoding, got seeks %v", seeks)
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("second stop should be a no-op, got %v", err)
	}
	if p.State() != StateStopped {
		t.Errorf("expected Stopped, got %s", p.State())
	}
	if _, _, _, closes := sink.Counts(); closes != 1 {
		t.Errorf("expected stop to close the sink once, got %d", closes)
	}

	p.Release()
	p.Release()
	if p.State() != StateEnd {
		t.Errorf("expected End, got %s", p.State())
	}
	if !src.Closed() {
		t.Error("expected release to close the source")
	}
}

func TestCompletionAndRestartFromCompleted(t *testing.T) {
	src := audiotest.NewSource(1000, 2, 1000, 100)
	sink := audiotest.NewSink()

	completed := make(chan struct{}, 2)
	p := newTestPlayer(t, src, sink, Listeners{
		OnCompletion: func(p *Player) { completed <- struct{}{} },
	})
	mustPrepare(t, p)

	p.Start()
	waitChan(t, "completion", completed)
	if p.State() != StateCompleted {
		t.Fatalf("expected Completed, got %s", p.State())
	}
	if got := len(sink.Samples()); got != 2000 {
		t.Errorf("expected 2000 samples, got %d", got)
	}

	if err := p.Start(); err != nil {
		t.Fatalf("start from Completed failed: %v", err)
	}
	waitChan(t, "second completion", completed)
	if got := len(sink.Samples()); got != 4000 {
		t.Errorf("expected the stream to play twice (4000 samples), got %d", got)
	}

	select {
	case <-completed:
		t.Error("completion fired more than once per playthrough")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPlayRangeRestart(t *testing.T) {
	src := audiotest.NewSource(1000, 2, 10_000, 100)
	sink := audiotest.NewSink()

	completed := make(chan struct{}, 1)
	p := newTestPlayer(t, src, sink, Listeners{
		OnCompletion: func(p *Player) { completed <- struct{}{} },
	})
	mustPrepare(t, p)

	p.SetPlayRange(2000, 5000)
	if err := p.ReStart(); err != nil {
		t.Fatalf("reStart failed: %v", err)
	}
	waitChan(t, "completion", completed)

	samples := sink.Samples()
	if len(samples) != 6000 {
		t.Fatalf("expected 3000 frames from the range, got %d samples", len(samples))
	}
	if samples[0] != audiotest.SampleValue(2000) {
		t.Errorf("expected playback to begin at frame 2000, got %d", samples[0])
	}
	for i, s := range samples {
		if s < 2000 || s >= 5000 {
			t.Fatalf("sample %d = %d outside range", i, s)
		}
	}
	if pos := p.CurrentPosition(); pos < 2000 || pos >= 5000 {
		t.Errorf("expected position inside range, got %d", pos)
	}
}

func TestSetPlayRangeRules(t *testing.T) {
	tests := []struct {
		name      string
		prepared  bool
		initial   [2]int
		set       [2]int
		wantStart int
		wantEnd   int
	}{
		{"normal", true, [2]int{0, 0}, [2]int{1000, 2000}, 1000, 2000},
		{"start not below end keeps prior", true, [2]int{1000, 2000}, [2]int{3000, 3000}, 1000, 2000},
		{"zero start keeps prior start", true, [2]int{1000, 2000}, [2]int{0, 5000}, 1000, 5000},
		{"end past duration clamps", true, [2]int{0, 0}, [2]int{1000, 20_000}, 1000, 10_000},
		{"start past duration resets", true, [2]int{0, 0}, [2]int{12_000, 15_000}, 0, 10_000},
		{"unprepared keeps raw end", false, [2]int{0, 0}, [2]int{1000, 20_000}, 1000, 20_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := audiotest.NewSource(1000, 2, 10_000, 100)
			p := newTestPlayer(t, src, audiotest.NewSink(), Listeners{})
			if tt.prepared {
				mustPrepare(t, p)
			} else if err := p.SetDataSource("memory", true); err != nil {
				t.Fatalf("setDataSource failed: %v", err)
			}

			if tt.initial != [2]int{0, 0} {
				p.SetPlayRange(tt.initial[0], tt.initial[1])
			}
			p.SetPlayRange(tt.set[0], tt.set[1])

			start, end := p.PlayRange()
			if start != tt.wantStart || end != tt.wantEnd {
				t.Errorf("expected range [%d, %d], got [%d, %d]", tt.wantStart, tt.wantEnd, start, end)
			}
		})
	}
}

func TestPrepareClampsRangeEnd(t *testing.T) {
	src := audiotest.NewSource(1000, 2, 10_000, 100)
	p := newTestPlayer(t, src, audiotest.NewSink(), Listeners{})

	p.SetDataSource("memory", true)
	p.SetPlayRange(1000, 50_000)
	p.Prepare()

	if start, end := p.PlayRange(); start != 1000 || end != 10_000 {
		t.Errorf("expected [1000, 10000], got [%d, %d]", start, end)
	}

	p.Reset()
	p.SetDataSource("memory", true)
	p.Prepare()
	if _, end := p.PlayRange(); end != 10_000 {
		t.Errorf("expected unset end to become the duration, got %d", end)
	}
}

func TestPrepareSinkFailure(t *testing.T) {
	src := audiotest.NewSource(1000, 2, 1000, 100)
	sink := audiotest.NewSink()
	sink.FailOpen(true)

	type codes struct{ what, extra int }
	errs := make(chan codes, 1)
	p := newTestPlayer(t, src, sink, Listeners{
		OnError: func(p *Player, what, extra int) { errs <- codes{what, extra} },
	})

	p.SetDataSource("memory", true)
	if err := p.Prepare(); err != nil {
		t.Fatalf("expected sink failure to be reported, not returned: %v", err)
	}
	if p.State() != StateError {
		t.Fatalf("expected Error, got %s", p.State())
	}

	select {
	case got := <-errs:
		if got.what != ErrorInitialize || got.extra != ErrorAudioTrackInitializeFailed {
			t.Errorf("expected (-200, -202), got (%d, %d)", got.what, got.extra)
		}
	case <-time.After(time.Second):
		t.Fatal("error callback not called")
	}

	if err := p.Start(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected start to be rejected in Error, got %v", err)
	}

	p.Reset()
	if p.State() != StateIdle {
		t.Errorf("expected Idle after reset, got %s", p.State())
	}
}

func TestPrepareAsync(t *testing.T) {
	src := audiotest.NewSource(1000, 2, 1000, 100)
	prepared := make(chan struct{}, 1)
	p := newTestPlayer(t, src, audiotest.NewSink(), Listeners{
		OnPrepared: func(p *Player) { prepared <- struct{}{} },
	})

	p.SetDataSource("memory", true)
	if err := p.PrepareAsync(); err != nil {
		t.Fatalf("prepareAsync failed: %v", err)
	}
	waitChan(t, "prepared", prepared)
	if p.State() != StatePrepared {
		t.Errorf("expected Prepared, got %s", p.State())
	}
}

func TestPrepareAsyncFailure(t *testing.T) {
	src := audiotest.NewSource(1000, 2, 1000, 100)
	sink := audiotest.NewSink()
	sink.FailOpen(true)

	failed := make(chan int, 1)
	prepared := make(chan struct{}, 1)
	p := newTestPlayer(t, src, sink, Listeners{
		OnPrepared: func(p *Player) { prepared <- struct{}{} },
		OnError:    func(p *Player, what, extra int) { failed <- what },
	})

	p.SetDataSource("memory", true)
	p.PrepareAsync()

	select {
	case what := <-failed:
		if what != ErrorInitialize {
			t.Errorf("expected ErrorInitialize, got %d", what)
		}
	case <-time.After(time.Second):
		t.Fatal("error callback not called")
	}
	if p.State() != StateError {
		t.Errorf("expected Error, got %s", p.State())
	}
	select {
	case <-prepared:
		t.Error("prepared callback must not fire on failure")
	default:
	}
}

func TestSetDataSourceInvalid(t *testing.T) {
	p := New(Config{
		Sink: audiotest.NewSink(),
		Open: func(string, bool, audio.Format) (decode.Source, error) {
			return nil, decode.ErrUnsupportedFormat
		},
	})
	defer p.Release()

	err := p.SetDataSource("notes.txt", true)
	if !errors.Is(err, ErrDataSourceInvalid) || !errors.Is(err, decode.ErrUnsupportedFormat) {
		t.Errorf("expected ErrDataSourceInvalid wrapping cause, got %v", err)
	}
	if p.State() != StateIdle {
		t.Errorf("expected Idle after failure, got %s", p.State())
	}
}

func TestLoopingDoesNotComplete(t *testing.T) {
	src := audiotest.NewSource(1000, 2, 1000, 100)
	sink := audiotest.NewSink()
	sink.SetWriteDelay(5 * time.Millisecond)

	completed := make(chan struct{}, 1)
	p := newTestPlayer(t, src, sink, Listeners{
		OnCompletion: func(p *Player) { completed <- struct{}{} },
	})
	p.SetLooping(true)
	if !p.IsLooping() {
		t.Fatal("expected looping")
	}
	mustPrepare(t, p)
	p.Start()

	select {
	case <-completed:
		t.Fatal("looping playback must not complete")
	case <-time.After(200 * time.Millisecond):
	}
	if got := len(sink.Samples()); got <= 2000 {
		t.Errorf("expected playback past one pass, got %d samples", got)
	}

	p.SetLooping(false)
	waitChan(t, "completion after disabling loop", completed)
}

func TestReadErrorReportsOnlyError(t *testing.T) {
	src := audiotest.NewSource(1000, 2, 1000, 100)
	sink := audiotest.NewSink()

	type codes struct{ what, extra int }
	errs := make(chan codes, 2)
	completed := make(chan struct{}, 1)
	p := newTestPlayer(t, src, sink, Listeners{
		OnCompletion: func(p *Player) { completed <- struct{}{} },
		OnError:      func(p *Player, what, extra int) { errs <- codes{what, extra} },
	})
	mustPrepare(t, p)
	src.FailReads(errors.New("corrupt frame"))

	if err := p.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case got := <-errs:
		if got.what != ErrorUnknown || got.extra != ErrorDataSourceInvalid {
			t.Errorf("expected (-100, -201), got (%d, %d)", got.what, got.extra)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("error callback not called")
	}
	waitFor(t, "Error state", func() bool { return p.State() == StateError })

	select {
	case <-completed:
		t.Error("a failed read must not report completion")
	case <-errs:
		t.Error("error reported more than once")
	case <-time.After(100 * time.Millisecond):
	}
	if p.State() != StateError {
		t.Errorf("expected to stay in Error, got %s", p.State())
	}
}

func TestStartFromCompletionCallback(t *testing.T) {
	src := audiotest.NewSource(1000, 2, 600, 100)
	sink := audiotest.NewSink()

	var mu sync.Mutex
	runs := 0
	done := make(chan struct{})
	p := newTestPlayer(t, src, sink, Listeners{
		OnCompletion: func(p *Player) {
			mu.Lock()
			runs++
			n := runs
			mu.Unlock()
			if n == 1 {
				if err := p.Start(); err != nil {
					t.Errorf("start from completion failed: %v", err)
				}
				return
			}
			close(done)
		},
	})
	mustPrepare(t, p)

	p.Start()
	waitChan(t, "second completion", done)
	if got := len(sink.Samples()); got != 2400 {
		t.Errorf("expected two playthroughs (2400 samples), got %d", got)
	}
}

func TestVolumeAndDataProcess(t *testing.T) {
	src := audiotest.NewSource(1000, 2, 1000, 100)
	sink := audiotest.NewSink()

	var mu sync.Mutex
	var frames int
	var rawNonZero bool
	completed := make(chan struct{}, 1)
	p := newTestPlayer(t, src, sink, Listeners{
		OnCompletion: func(p *Player) { completed <- struct{}{} },
		OnDataProcess: func(samples []int16, n int) {
			mu.Lock()
			defer mu.Unlock()
			frames += n
			for _, s := range samples {
				if s != 0 {
					rawNonZero = true
				}
			}
		},
	})
	p.SetVolume(0)
	mustPrepare(t, p)
	p.Start()
	waitChan(t, "completion", completed)

	mu.Lock()
	defer mu.Unlock()
	if frames != 1000 {
		t.Errorf("expected hook to see 1000 frames, got %d", frames)
	}
	if !rawNonZero {
		t.Error("expected hook to see samples before volume")
	}
	for _, s := range sink.Samples() {
		if s != 0 {
			t.Fatalf("expected silence at volume 0, got %d", s)
		}
	}
}

func TestSeekWhileStarted(t *testing.T) {
	src := audiotest.NewSource(1000, 2, 10_000, 100)
	sink := audiotest.NewSink()
	sink.SetWriteDelay(10 * time.Millisecond)
	p := newTestPlayer(t, src, sink, Listeners{})
	mustPrepare(t, p)
	p.Start()

	if err := p.SeekTo(8000); err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	waitFor(t, "position after seek", func() bool { return p.CurrentPosition() >= 8000 })
	if p.State() != StateStarted {
		t.Errorf("expected seek to keep Started, got %s", p.State())
	}
}

func TestReStart(t *testing.T) {
	src := audiotest.NewSource(1000, 2, 10_000, 100)
	sink := audiotest.NewSink()
	sink.SetWriteDelay(10 * time.Millisecond)
	p := newTestPlayer(t, src, sink, Listeners{})
	mustPrepare(t, p)
	p.Start()

	if err := p.ReStart(); err != nil {
		t.Fatalf("reStart failed: %v", err)
	}
	if p.State() != StateStarted {
		t.Errorf("expected Started, got %s", p.State())
	}
	if opens, _, _, closes := sink.Counts(); opens != 2 || closes != 1 {
		t.Errorf("expected sink reopened once, got opens=%d closes=%d", opens, closes)
	}
}

func TestStateChangeListener(t *testing.T) {
	src := audiotest.NewSource(1000, 2, 1000, 100)

	var mu sync.Mutex
	var seen []string
	p := newTestPlayer(t, src, audiotest.NewSink(), Listeners{})
	p.SetOnStateChange(func(p *Player, prev, next State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, prev.String()+"->"+next.String())
	})

	mustPrepare(t, p)
	p.Stop()
	p.Reset()

	expected := []string{"Idle->Initialized", "Initialized->Prepared", "Prepared->Stopped", "Stopped->Idle"}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, seen)
	}
	for i := range expected {
		if seen[i] != expected[i] {
			t.Errorf("transition %d: expected %s, got %s", i, expected[i], seen[i])
		}
	}
}
