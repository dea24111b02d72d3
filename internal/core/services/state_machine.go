package services

import "github.com/dejely/manobela/internal/core/domain"

// Transition is the single source of monitoring state transitions. It
// returns the next state and whether the event is legal in the given state.
// All side effects live in the controller.
func Transition(state domain.SessionState, event domain.SessionEvent) (domain.SessionState, bool) {
	switch state {
	case domain.StateIdle:
		if event == domain.EventStart {
			return domain.StateStarting, true
		}

	case domain.StateStarting:
		switch event {
		case domain.EventConnected:
			return domain.StateActive, true
		case domain.EventStop:
			return domain.StateStopping, true
		case domain.EventConnectionFailed:
			return domain.StateIdle, true
		}

	case domain.StateActive:
		switch event {
		case domain.EventPause:
			return domain.StatePaused, true
		case domain.EventStop:
			return domain.StateStopping, true
		case domain.EventConnectionFailed:
			return domain.StateIdle, true
		}

	case domain.StatePaused:
		switch event {
		case domain.EventResume, domain.EventStart:
			return domain.StateActive, true
		case domain.EventRenegotiate:
			return domain.StateStarting, true
		case domain.EventStop:
			return domain.StateStopping, true
		case domain.EventConnectionFailed:
			return domain.StateIdle, true
		}

	case domain.StateStopping:
		if event == domain.EventStopped {
			return domain.StateIdle, true
		}
	}

	return state, false
}
