// ABOUTME: Control protocol message type definitions
// ABOUTME: Defines the JSON envelope plus every command and event payload
package control

import "encoding/json"

// Message is the top-level wrapper for all control messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Command types accepted from clients
const (
	CommandStart   = "start"
	CommandPause   = "pause"
	CommandStop    = "stop"
	CommandRestart = "restart"
	CommandSeek    = "seek"
	CommandRange   = "range"
	CommandVolume  = "volume"
	CommandLoop    = "loop"
	CommandStatus  = "status"
)

// Event types broadcast to clients
const (
	EventStatus    = "status"
	EventResult    = "result"
	EventState     = "state"
	EventPrepared  = "prepared"
	EventCompleted = "completed"
	EventError     = "error"
	EventPosition  = "position"
)

// SeekCommand moves playback
type SeekCommand struct {
	PositionMs int `json:"position_ms"`
}

// RangeCommand sets the play range
type RangeCommand struct {
	StartMs int `json:"start_ms"`
	EndMs   int `json:"end_ms"`
}

// VolumeCommand sets the gain
type VolumeCommand struct {
	Volume float32 `json:"volume"`
}

// LoopCommand toggles looping
type LoopCommand struct {
	Looping bool `json:"looping"`
}

// Status is a snapshot of the player
type Status struct {
	ID           string  `json:"id"`
	Version      string  `json:"version"`
	Name         string  `json:"name"`
	State        string  `json:"state"`
	PositionMs   int     `json:"position_ms"`
	DurationMs   int     `json:"duration_ms"`
	RangeStartMs int     `json:"range_start_ms"`
	RangeEndMs   int     `json:"range_end_ms"`
	Volume       float32 `json:"volume"`
	Looping      bool    `json:"looping"`
}

// Result answers a single command
type Result struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// StateEvent reports a lifecycle transition
type StateEvent struct {
	Previous string `json:"previous"`
	State    string `json:"state"`
}

// ErrorEvent carries the player's (what, extra) error codes
type ErrorEvent struct {
	What  int `json:"what"`
	Extra int `json:"extra"`
}

// PositionEvent reports the playback position while started
type PositionEvent struct {
	PositionMs int `json:"position_ms"`
	DurationMs int `json:"duration_ms"`
}

// decodePayload converts a generic payload into v
func decodePayload(payload interface{}, v interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
