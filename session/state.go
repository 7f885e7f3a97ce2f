package session

// State is where the conversation loop currently is.
type State int32

const (
	StateIdle State = iota
	StateGreeting
	StateListening
	StateThinking
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGreeting:
		return "greeting"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

func (s *Session) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev == next {
		return
	}
	s.log.Debug().Stringer("from", prev).Stringer("to", next).Msg("[State] transition")
	if s.onState != nil {
		s.onState(prev, next)
	}
}

// State returns the current state. Safe to call from any goroutine.
func (s *Session) State() State {
	return State(s.state.Load())
}
