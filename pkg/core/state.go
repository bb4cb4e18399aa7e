// pkg/core/state.go
package core

// State is the recorder's session mode. Exactly one is active at a time.
type State int

const (
	Idle State = iota
	Recording
	Replaying
)

// legalTransitions lists, for each state, the states it may move to.
var legalTransitions = map[State][]State{
	Idle:      {Recording, Replaying},
	Recording: {Idle},
	Replaying: {Idle},
}

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Replaying:
		return "replaying"
	default:
		return "unknown"
	}
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
