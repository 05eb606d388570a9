// ABOUTME: Player error values and callback error codes
// ABOUTME: Precondition violations return StateError; runtime failures surface as callback codes
package player

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes passed to OnError as what/extra
const (
	ErrorUnknown                    = -100
	ErrorInitialize                 = -200
	ErrorDataSourceInvalid          = -201
	ErrorAudioTrackInitializeFailed = -202
)

// ErrInvalidState matches every StateError
var ErrInvalidState = errors.New("invalid state")

// StateError reports an operation called in a state that does not permit it
type StateError struct {
	Op       string
	Current  State
	Required []State
}

func (e *StateError) Error() string {
	names := make([]string, len(e.Required))
	for i, s := range e.Required {
		names[i] = s.String()
	}
	return fmt.Sprintf("%s() called in state %s, requires one of [%s]", e.Op, e.Current, strings.Join(names, ", "))
}

// Is makes StateError match ErrInvalidState
func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

func invalidState(op string, current State, required []State) error {
	return &StateError{Op: op, Current: current, Required: required}
}
