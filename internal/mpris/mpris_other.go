//go:build !linux

// ABOUTME: MPRIS stub for platforms without a D-Bus session bus
// ABOUTME: New always fails with ErrUnsupported
package mpris

import "github.com/Resonate-Protocol/cadence/pkg/player"

// Session is never created outside linux
type Session struct{}

// New returns ErrUnsupported
func New(p Player, name string) (*Session, error) {
	return nil, ErrUnsupported
}

// HandleStateChange does nothing
func (s *Session) HandleStateChange(prev, next player.State) {}

// Close does nothing
func (s *Session) Close() error {
	return nil
}
