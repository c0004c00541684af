package playlist

// State is the three-valued play-state enum.
type State uint8

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Trigger is the closed set of events that drive the play-state machine.
type Trigger uint8

const (
	TriggerPlay Trigger = iota
	TriggerPause
	TriggerStop
	TriggerToggle
	TriggerResume
	TriggerTrackEnd
)

// Transition applies trigger to the current state and returns the next
// state together with whether the transition actually changed anything
// (used by callers deciding whether to broadcast an event). It encodes
// exactly the state transition table.
func Transition(current State, trigger Trigger) (next State, changed bool) {
	switch trigger {
	case TriggerStop:
		if current == Stopped {
			return Stopped, false
		}
		return Stopped, true

	case TriggerPause:
		if current == Playing {
			return Paused, true
		}
		return current, false

	case TriggerPlay, TriggerResume:
		switch current {
		case Stopped, Paused:
			return Playing, true
		case Playing:
			return Playing, false
		}

	case TriggerToggle:
		switch current {
		case Stopped, Paused:
			return Playing, true
		case Playing:
			return Paused, true
		}

	case TriggerTrackEnd:
		// Callers resolve repeat/consume/advance via the playlist before
		// deciding whether this is a same-state continuation or a stop;
		// Transition only encodes the "ran off the end" half of that decision.
		return Stopped, current != Stopped
	}
	return current, false
}
