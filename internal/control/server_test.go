// ABOUTME: Tests for the control server
// ABOUTME: Drives a real player over a WebSocket connection served by httptest
package control

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Resonate-Protocol/cadence/internal/audiotest"
	"github.com/Resonate-Protocol/cadence/pkg/audio"
	"github.com/Resonate-Protocol/cadence/pkg/audio/decode"
	"github.com/Resonate-Protocol/cadence/pkg/player"
	"github.com/gorilla/websocket"
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T) (*Server, *player.Player, *websocket.Conn) {
	t.Helper()

	src := audiotest.NewSource(1000, 2, 10_000, 100)
	p := player.New(player.Config{
		Name:        "control-test",
		Sink:        audiotest.NewSink(),
		JoinTimeout: time.Second,
		Open: func(string, bool, audio.Format) (decode.Source, error) {
			return src, nil
		},
	})
	t.Cleanup(p.Release)

	s := New(Config{Name: "Test"}, p)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + Path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// The first message is always a status snapshot
	var status Status
	expectMessage(t, conn, EventStatus, &status)
	if status.Name != "Test" || status.State != "Idle" {
		t.Fatalf("unexpected initial status %+v", status)
	}
	return s, p, conn
}

func sendCommand(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	if err := conn.WriteJSON(Message{Type: msgType, Payload: payload}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

// expectMessage skips messages of other types until msgType arrives
func expectMessage(t *testing.T, conn *websocket.Conn, msgType string, v interface{}) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if env.Type != msgType {
			continue
		}
		if v != nil {
			if err := json.Unmarshal(env.Payload, v); err != nil {
				t.Fatalf("bad %s payload: %v", msgType, err)
			}
		}
		return
	}
}

func TestCommandResults(t *testing.T) {
	tests := []struct {
		name    string
		msgType string
		payload interface{}
		wantOK  bool
	}{
		{"start rejected in Idle", CommandStart, nil, false},
		{"pause rejected in Idle", CommandPause, nil, false},
		{"seek rejected in Idle", CommandSeek, SeekCommand{PositionMs: 100}, false},
		{"volume accepted", CommandVolume, VolumeCommand{Volume: 0.5}, true},
		{"loop accepted", CommandLoop, LoopCommand{Looping: true}, true},
		{"range accepted", CommandRange, RangeCommand{StartMs: 100, EndMs: 200}, true},
		{"unknown", "shuffle", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, conn := newTestServer(t)

			sendCommand(t, conn, tt.msgType, tt.payload)

			var result Result
			expectMessage(t, conn, EventResult, &result)
			if result.Command != tt.msgType {
				t.Errorf("expected result for %s, got %s", tt.msgType, result.Command)
			}
			if result.OK != tt.wantOK {
				t.Errorf("expected ok=%v, got %+v", tt.wantOK, result)
			}
			if !result.OK && result.Error == "" {
				t.Error("expected an error message on failure")
			}
		})
	}
}

func TestSettingsApplyToPlayer(t *testing.T) {
	_, p, conn := newTestServer(t)

	sendCommand(t, conn, CommandVolume, VolumeCommand{Volume: 0.25})
	expectMessage(t, conn, EventResult, nil)

	var status Status
	expectMessage(t, conn, EventStatus, &status)
	if status.Volume != 0.25 || p.Volume() != 0.25 {
		t.Errorf("expected volume 0.25, got status %f player %f", status.Volume, p.Volume())
	}

	sendCommand(t, conn, CommandLoop, LoopCommand{Looping: true})
	expectMessage(t, conn, EventResult, nil)
	if !p.IsLooping() {
		t.Error("expected looping to be enabled")
	}
}

func TestPlaybackCommands(t *testing.T) {
	_, p, conn := newTestServer(t)

	if err := p.SetDataSource("memory", true); err != nil {
		t.Fatalf("setDataSource failed: %v", err)
	}
	if err := p.Prepare(); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}

	for _, cmd := range []string{CommandStart, CommandPause, CommandStart, CommandStop} {
		sendCommand(t, conn, cmd, nil)
		var result Result
		expectMessage(t, conn, EventResult, &result)
		if !result.OK {
			t.Fatalf("%s failed: %s", cmd, result.Error)
		}
	}
	if p.State() != player.StateStopped {
		t.Errorf("expected Stopped, got %s", p.State())
	}

	sendCommand(t, conn, CommandStatus, nil)
	var status Status
	expectMessage(t, conn, EventStatus, &status)
	if status.State != "Stopped" || status.DurationMs != 10_000 {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestEventsBroadcast(t *testing.T) {
	s, _, conn := newTestServer(t)

	s.HandleStateChange(player.StatePrepared, player.StateStarted)
	var state StateEvent
	expectMessage(t, conn, EventState, &state)
	if state.Previous != "Prepared" || state.State != "Started" {
		t.Errorf("unexpected state event %+v", state)
	}

	s.HandleError(player.ErrorUnknown, player.ErrorDataSourceInvalid)
	var errEvent ErrorEvent
	expectMessage(t, conn, EventError, &errEvent)
	if errEvent.What != -100 || errEvent.Extra != -201 {
		t.Errorf("unexpected error event %+v", errEvent)
	}

	s.HandleCompletion()
	expectMessage(t, conn, EventCompleted, nil)
}

func TestClientDisconnect(t *testing.T) {
	s, _, conn := newTestServer(t)

	if s.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", s.ClientCount())
	}
	conn.Close()

	deadline := time.Now().Add(3 * time.Second)
	for s.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was not removed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Broadcasting with no clients must not block or panic
	s.HandleCompletion()
}
