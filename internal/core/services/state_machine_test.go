package services

import (
	"testing"

	"github.com/dejely/manobela/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestTransition_Table(t *testing.T) {
	cases := []struct {
		name  string
		state domain.SessionState
		event domain.SessionEvent
		next  domain.SessionState
		ok    bool
	}{
		{"idle start", domain.StateIdle, domain.EventStart, domain.StateStarting, true},
		{"idle pause rejected", domain.StateIdle, domain.EventPause, domain.StateIdle, false},
		{"idle stop rejected", domain.StateIdle, domain.EventStop, domain.StateIdle, false},
		{"idle resume rejected", domain.StateIdle, domain.EventResume, domain.StateIdle, false},
		{"idle connection failed rejected", domain.StateIdle, domain.EventConnectionFailed, domain.StateIdle, false},

		{"starting connected", domain.StateStarting, domain.EventConnected, domain.StateActive, true},
		{"starting stop", domain.StateStarting, domain.EventStop, domain.StateStopping, true},
		{"starting connection failed", domain.StateStarting, domain.EventConnectionFailed, domain.StateIdle, true},
		{"starting start rejected", domain.StateStarting, domain.EventStart, domain.StateStarting, false},
		{"starting pause rejected", domain.StateStarting, domain.EventPause, domain.StateStarting, false},

		{"active pause", domain.StateActive, domain.EventPause, domain.StatePaused, true},
		{"active stop", domain.StateActive, domain.EventStop, domain.StateStopping, true},
		{"active connection failed", domain.StateActive, domain.EventConnectionFailed, domain.StateIdle, true},
		{"active start rejected", domain.StateActive, domain.EventStart, domain.StateActive, false},
		{"active connected rejected", domain.StateActive, domain.EventConnected, domain.StateActive, false},

		{"paused resume", domain.StatePaused, domain.EventResume, domain.StateActive, true},
		{"paused start resumes", domain.StatePaused, domain.EventStart, domain.StateActive, true},
		{"paused renegotiate", domain.StatePaused, domain.EventRenegotiate, domain.StateStarting, true},
		{"paused stop", domain.StatePaused, domain.EventStop, domain.StateStopping, true},
		{"paused connection failed", domain.StatePaused, domain.EventConnectionFailed, domain.StateIdle, true},
		{"paused pause rejected", domain.StatePaused, domain.EventPause, domain.StatePaused, false},

		{"starting renegotiate rejected", domain.StateStarting, domain.EventRenegotiate, domain.StateStarting, false},
		{"active renegotiate rejected", domain.StateActive, domain.EventRenegotiate, domain.StateActive, false},

		{"stopping stopped", domain.StateStopping, domain.EventStopped, domain.StateIdle, true},
		{"stopping start rejected", domain.StateStopping, domain.EventStart, domain.StateStopping, false},
		{"stopping stop rejected", domain.StateStopping, domain.EventStop, domain.StateStopping, false},
		{"stopping connection failed rejected", domain.StateStopping, domain.EventConnectionFailed, domain.StateStopping, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, ok := Transition(tc.state, tc.event)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.next, next)
		})
	}
}

func TestTransition_RejectedEventKeepsState(t *testing.T) {
	next, ok := Transition(domain.StateActive, domain.EventStopped)
	assert.False(t, ok)
	assert.Equal(t, domain.StateActive, next)
}
