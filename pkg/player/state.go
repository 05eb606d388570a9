// ABOUTME: Player lifecycle states
// ABOUTME: Defines the ten states and which operations each one permits
package player

// State is a player lifecycle state
type State int32

const (
	StateIdle State = iota
	StateInitialized
	StatePreparing
	StatePrepared
	StateStarted
	StatePaused
	StateStopped
	StateCompleted
	StateEnd
	StateError
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateInitialized:
		return "Initialized"
	case StatePreparing:
		return "Preparing"
	case StatePrepared:
		return "Prepared"
	case StateStarted:
		return "Started"
	case StatePaused:
		return "Paused"
	case StateStopped:
		return "Stopped"
	case StateCompleted:
		return "Completed"
	case StateEnd:
		return "End"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// States required by each operation
var (
	setDataSourceStates = []State{StateIdle}
	prepareStates       = []State{StateInitialized, StateStopped}
	startStates         = []State{StatePrepared, StatePaused, StateCompleted}
	pauseStates         = []State{StateStarted}
	stopStates          = []State{StatePrepared, StatePaused, StateStarted, StateCompleted, StateStopped}
	seekStates          = []State{StatePrepared, StateStarted, StatePaused, StateCompleted}
	isPlayingStates     = []State{StateInitialized, StatePreparing, StatePrepared, StateStarted, StatePaused, StateStopped, StateCompleted}
)

// in reports whether s is one of states
func (s State) in(states []State) bool {
	for _, st := range states {
		if s == st {
			return true
		}
	}
	return false
}

// rangeClamped reports whether a play range set in s is clamped to the duration
func (s State) rangeClamped() bool {
	return s.in(seekStates)
}
