package tcarchive

import "github.com/bft-labs/tcarchive/internal/app"

// State is the lifecycle state of a Service.
type State int

const (
	// StateStopped is the initial state and the state after a clean stop.
	StateStopped State = iota
	// StateStarting covers archive recovery before the first cycle.
	StateStarting
	// StateRunning means cycles are being run.
	StateRunning
	// StateStopping means Run is returning.
	StateStopping
	// StateCrashed means Run returned an error. Run may be called again.
	StateCrashed
)

var stateNames = [...]string{"Stopped", "Starting", "Running", "Stopping", "Crashed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// CanStart reports whether Run may be called in this state.
func (s State) CanStart() bool {
	return s == StateStopped || s == StateCrashed
}

// StateChangeEvent describes one lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// StateHandler receives lifecycle transitions. It is called synchronously
// from the goroutine running Run.
type StateHandler interface {
	OnStateChange(StateChangeEvent)
}

// StateHandlerFunc adapts a function to StateHandler.
type StateHandlerFunc func(StateChangeEvent)

// OnStateChange calls f(ev).
func (f StateHandlerFunc) OnStateChange(ev StateChangeEvent) { f(ev) }

type stateAdapter struct {
	handler StateHandler
}

func (a stateAdapter) OnStateChange(previous, current app.State, reason string) {
	a.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

// convertState maps the dispatcher state onto the public one; the two
// enumerations are declared in the same order.
func convertState(s app.State) State {
	if s < app.StateStopped || s > app.StateCrashed {
		return StateStopped
	}
	return State(s)
}
