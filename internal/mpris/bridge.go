// ABOUTME: Maps MPRIS media commands and properties onto the player
// ABOUTME: Platform independent so the mapping can be tested without a session bus
package mpris

import (
	"errors"

	"github.com/Resonate-Protocol/cadence/pkg/player"
)

// ErrUnsupported is returned where no session bus exists
var ErrUnsupported = errors.New("mpris is only available on linux")

// MPRIS loop statuses
const (
	LoopNone  = "None"
	LoopTrack = "Track"
)

// Player is the part of the player driven by media keys
type Player interface {
	Prepare() error
	Start() error
	Pause() error
	Stop() error
	SeekTo(msec int) error
	State() player.State
	CurrentPosition() int
	Duration() int
	IsLooping() bool
	SetLooping(looping bool)
	Volume() float32
	SetVolume(volume float32)
}

type bridge struct {
	player Player
}

func (b *bridge) play() error {
	switch b.player.State() {
	case player.StateStarted:
		return nil
	case player.StateStopped:
		if err := b.player.Prepare(); err != nil {
			return err
		}
	}
	return b.player.Start()
}

func (b *bridge) pause() error {
	if b.player.State() != player.StateStarted {
		return nil
	}
	return b.player.Pause()
}

func (b *bridge) playPause() error {
	if b.player.State() == player.StateStarted {
		return b.player.Pause()
	}
	return b.play()
}

func (b *bridge) stop() error {
	return b.player.Stop()
}

// seek moves by offsetUs relative to the current position
func (b *bridge) seek(offsetUs int64) error {
	target := int64(b.player.CurrentPosition())*1000 + offsetUs
	if target < 0 {
		target = 0
	}
	return b.player.SeekTo(int(target / 1000))
}

// setPosition jumps to an absolute position; out of range requests are ignored
func (b *bridge) setPosition(positionUs int64) error {
	if positionUs < 0 || positionUs > int64(b.player.Duration())*1000 {
		return nil
	}
	return b.player.SeekTo(int(positionUs / 1000))
}

func (b *bridge) setLoopStatus(status string) {
	b.player.SetLooping(status != LoopNone)
}

func (b *bridge) loopStatus() string {
	if b.player.IsLooping() {
		return LoopTrack
	}
	return LoopNone
}

func (b *bridge) positionUs() int64 {
	return int64(b.player.CurrentPosition()) * 1000
}

// playbackStatus maps a lifecycle state onto Playing, Paused or Stopped
func playbackStatus(s player.State) string {
	switch s {
	case player.StateStarted:
		return "Playing"
	case player.StatePaused:
		return "Paused"
	default:
		return "Stopped"
	}
}
