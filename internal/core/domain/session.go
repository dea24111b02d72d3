package domain

import "time"

// SessionState is the controller's externally visible state machine.
type SessionState string

const (
	StateIdle     SessionState = "idle"
	StateStarting SessionState = "starting"
	StateActive   SessionState = "active"
	StatePaused   SessionState = "paused"
	StateStopping SessionState = "stopping"
)

// SessionEvent drives transitions between session states.
type SessionEvent string

const (
	EventStart            SessionEvent = "start"
	EventConnected        SessionEvent = "connected"
	EventPause            SessionEvent = "pause"
	EventResume           SessionEvent = "resume"
	EventRenegotiate      SessionEvent = "renegotiate"
	EventStop             SessionEvent = "stop"
	EventStopped          SessionEvent = "stopped"
	EventConnectionFailed SessionEvent = "connection_failed"
)

// Session is a persisted monitoring session. EndedAt and DurationMs are set
// exactly once when the session ends; EndedAt never precedes StartedAt.
type Session struct {
	ID         string
	ClientID   string
	StartedAt  int64 // unix millis
	EndedAt    *int64
	DurationMs *int64
}

// Metric is one persisted metric row, flattened from a MetricsOutput
// snapshot. SessionID always references an existing session.
type Metric struct {
	ID        string
	SessionID string
	Timestamp int64 // unix millis

	FaceMissing bool

	EAR                float64
	EyeClosed          bool
	EyeClosedSustained float64
	Perclos            float64
	PerclosAlert       bool

	MAR           float64
	Yawning       bool
	YawnSustained float64
	YawnCount     int

	Yaw               float64
	Pitch             float64
	Roll              float64
	YawAlert          bool
	PitchAlert        bool
	RollAlert         bool
	HeadPoseSustained float64

	GazeAlert     bool
	GazeSustained float64

	PhoneUsage          bool
	PhoneUsageSustained float64
}

// FlattenMetrics maps a snapshot into a metric row bound to a session.
func FlattenMetrics(id, sessionID string, at time.Time, m MetricsOutput) Metric {
	return Metric{
		ID:        id,
		SessionID: sessionID,
		Timestamp: at.UnixMilli(),

		FaceMissing: m.FaceMissing,

		EAR:                m.EyeClosure.EAR,
		EyeClosed:          m.EyeClosure.EyeClosed,
		EyeClosedSustained: m.EyeClosure.EyeClosedSustained,
		Perclos:            m.EyeClosure.Perclos,
		PerclosAlert:       m.EyeClosure.PerclosAlert,

		MAR:           m.Yawn.MAR,
		Yawning:       m.Yawn.Yawning,
		YawnSustained: m.Yawn.YawnSustained,
		YawnCount:     m.Yawn.YawnCount,

		Yaw:               m.HeadPose.Yaw,
		Pitch:             m.HeadPose.Pitch,
		Roll:              m.HeadPose.Roll,
		YawAlert:          m.HeadPose.YawAlert,
		PitchAlert:        m.HeadPose.PitchAlert,
		RollAlert:         m.HeadPose.RollAlert,
		HeadPoseSustained: m.HeadPose.HeadPoseSustained,

		GazeAlert:     m.Gaze.GazeAlert,
		GazeSustained: m.Gaze.GazeSustained,

		PhoneUsage:          m.PhoneUsage.PhoneUsage,
		PhoneUsageSustained: m.PhoneUsage.PhoneUsageSustained,
	}
}
