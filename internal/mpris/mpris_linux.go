//go:build linux

// ABOUTME: MPRIS session on the D-Bus session bus
// ABOUTME: Exports MediaPlayer2 and MediaPlayer2.Player so desktop media keys control the player
package mpris

import (
	"fmt"
	"log"

	"github.com/Resonate-Protocol/cadence/internal/version"
	"github.com/Resonate-Protocol/cadence/pkg/player"
	"github.com/godbus/dbus/v5"
)

const (
	mprisInterface       = "org.mpris.MediaPlayer2"
	mprisPlayerInterface = "org.mpris.MediaPlayer2.Player"
	propertiesInterface  = "org.freedesktop.DBus.Properties"
	mprisBusPrefix       = "org.mpris.MediaPlayer2.cadence"
	mprisObjectPath      = "/org/mpris/MediaPlayer2"
	trackID              = "/org/cadence/track/1"
)

// Session is an exported MPRIS player
type Session struct {
	conn   *dbus.Conn
	bridge *bridge
	name   string
}

// New connects to the session bus and exports p as instance name
func New(p Player, name string) (*Session, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	busName := mprisBusPrefix + ".instance_" + sanitize(name)
	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("bus name %s already taken", busName)
	}

	s := &Session{
		conn:   conn,
		bridge: &bridge{player: p},
		name:   name,
	}

	path := dbus.ObjectPath(mprisObjectPath)
	for _, iface := range []string{mprisInterface, mprisPlayerInterface, propertiesInterface} {
		if err := conn.Export(s, path, iface); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to export %s: %w", iface, err)
		}
	}

	log.Printf("[mpris] exported %s", busName)
	return s, nil
}

// HandleStateChange emits PlaybackStatus. It runs under the player lock and
// only reads lock-free player state.
func (s *Session) HandleStateChange(prev, next player.State) {
	props := map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant(playbackStatus(next)),
	}
	if err := s.emitPropertiesChanged(props); err != nil {
		log.Printf("[mpris] emit failed: %v", err)
	}
	if next == player.StateStarted && prev != player.StatePaused {
		s.emitSeeked(s.bridge.positionUs())
	}
}

// Close releases the bus connection
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) emitPropertiesChanged(props map[string]dbus.Variant) error {
	return s.conn.Emit(
		dbus.ObjectPath(mprisObjectPath),
		propertiesInterface+".PropertiesChanged",
		mprisPlayerInterface,
		props,
		[]string{},
	)
}

func (s *Session) emitSeeked(positionUs int64) {
	if err := s.conn.Emit(dbus.ObjectPath(mprisObjectPath), mprisPlayerInterface+".Seeked", positionUs); err != nil {
		log.Printf("[mpris] emit seeked failed: %v", err)
	}
}

func dbusError(op string, err error) *dbus.Error {
	if err == nil {
		return nil
	}
	log.Printf("[mpris] %s: %v", op, err)
	return dbus.MakeFailedError(err)
}

// org.mpris.MediaPlayer2

func (s *Session) Raise() *dbus.Error { return nil }

func (s *Session) Quit() *dbus.Error { return nil }

// org.mpris.MediaPlayer2.Player

func (s *Session) Play() *dbus.Error {
	return dbusError("play", s.bridge.play())
}

func (s *Session) Pause() *dbus.Error {
	return dbusError("pause", s.bridge.pause())
}

func (s *Session) PlayPause() *dbus.Error {
	return dbusError("playpause", s.bridge.playPause())
}

func (s *Session) Stop() *dbus.Error {
	return dbusError("stop", s.bridge.stop())
}

func (s *Session) Next() *dbus.Error { return nil }

func (s *Session) Previous() *dbus.Error { return nil }

func (s *Session) Seek(offset int64) *dbus.Error {
	if err := s.bridge.seek(offset); err != nil {
		return dbusError("seek", err)
	}
	s.emitSeeked(s.bridge.positionUs())
	return nil
}

func (s *Session) SetPosition(track dbus.ObjectPath, position int64) *dbus.Error {
	if track != trackID {
		return nil
	}
	if err := s.bridge.setPosition(position); err != nil {
		return dbusError("setposition", err)
	}
	s.emitSeeked(s.bridge.positionUs())
	return nil
}

// org.freedesktop.DBus.Properties

func (s *Session) Get(iface, prop string) (dbus.Variant, *dbus.Error) {
	var props map[string]dbus.Variant
	switch iface {
	case mprisInterface:
		props = s.rootProperties()
	case mprisPlayerInterface:
		props = s.playerProperties()
	default:
		return dbus.Variant{}, dbus.MakeFailedError(fmt.Errorf("unknown interface: %s", iface))
	}
	v, ok := props[prop]
	if !ok {
		return dbus.Variant{}, dbus.MakeFailedError(fmt.Errorf("unknown property: %s", prop))
	}
	return v, nil
}

func (s *Session) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	switch iface {
	case mprisInterface:
		return s.rootProperties(), nil
	case mprisPlayerInterface:
		return s.playerProperties(), nil
	}
	return nil, dbus.MakeFailedError(fmt.Errorf("unknown interface: %s", iface))
}

func (s *Session) Set(iface, prop string, value dbus.Variant) *dbus.Error {
	if iface != mprisPlayerInterface {
		return nil
	}

	switch prop {
	case "LoopStatus":
		status, ok := value.Value().(string)
		if !ok {
			return dbus.MakeFailedError(fmt.Errorf("invalid type for LoopStatus"))
		}
		s.bridge.setLoopStatus(status)
	case "Volume":
		volume, ok := value.Value().(float64)
		if !ok {
			return dbus.MakeFailedError(fmt.Errorf("invalid type for Volume"))
		}
		s.bridge.player.SetVolume(float32(volume))
	}

	changed := map[string]dbus.Variant{prop: s.playerProperties()[prop]}
	if err := s.emitPropertiesChanged(changed); err != nil {
		log.Printf("[mpris] emit failed: %v", err)
	}
	return nil
}

func (s *Session) rootProperties() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"CanQuit":             dbus.MakeVariant(false),
		"CanRaise":            dbus.MakeVariant(false),
		"HasTrackList":        dbus.MakeVariant(false),
		"Identity":            dbus.MakeVariant(version.Product + " " + s.name),
		"SupportedUriSchemes": dbus.MakeVariant([]string{"file"}),
		"SupportedMimeTypes":  dbus.MakeVariant([]string{"audio/mpeg", "audio/flac", "audio/ogg", "audio/wav"}),
	}
}

func (s *Session) playerProperties() map[string]dbus.Variant {
	p := s.bridge.player
	return map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant(playbackStatus(p.State())),
		"LoopStatus":     dbus.MakeVariant(s.bridge.loopStatus()),
		"Metadata":       dbus.MakeVariant(s.metadata()),
		"Position":       dbus.MakeVariant(s.bridge.positionUs()),
		"Volume":         dbus.MakeVariant(float64(p.Volume())),
		"Rate":           dbus.MakeVariant(1.0),
		"MinimumRate":    dbus.MakeVariant(1.0),
		"MaximumRate":    dbus.MakeVariant(1.0),
		"CanGoNext":      dbus.MakeVariant(false),
		"CanGoPrevious":  dbus.MakeVariant(false),
		"CanPlay":        dbus.MakeVariant(true),
		"CanPause":       dbus.MakeVariant(true),
		"CanSeek":        dbus.MakeVariant(true),
		"CanControl":     dbus.MakeVariant(true),
	}
}

func (s *Session) metadata() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(dbus.ObjectPath(trackID)),
		"mpris:length":  dbus.MakeVariant(int64(s.bridge.player.Duration()) * 1000),
		"xesam:title":   dbus.MakeVariant(s.name),
	}
}
