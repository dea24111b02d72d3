package domain

import "time"

// AlertPriority orders alerts when several fire at once.
type AlertPriority int

const (
	PriorityLow AlertPriority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// AlertCondition reports whether a snapshot triggers the alert.
type AlertCondition func(m MetricsOutput) bool

// AlertConfig declares one alert: its condition, spoken message and the
// cooldown that suppresses repeats.
type AlertConfig struct {
	ID        string
	Message   string
	Priority  AlertPriority
	Cooldown  time.Duration
	Condition AlertCondition
}

// DefaultAlertConfigs returns the built-in fatigue and distraction alerts.
func DefaultAlertConfigs() []AlertConfig {
	return []AlertConfig{
		{
			ID:       "face_missing",
			Message:  "No face detected. Please reposition yourself.",
			Priority: PriorityCritical,
			Cooldown: 8 * time.Second,
			Condition: func(m MetricsOutput) bool {
				return m.FaceMissing
			},
		},
		{
			ID:       "eye_closure_perclos",
			Message:  "Your eyes are closing frequently. Take a break if needed.",
			Priority: PriorityHigh,
			Cooldown: 15 * time.Second,
			Condition: func(m MetricsOutput) bool {
				return m.EyeClosure.PerclosAlert
			},
		},
		{
			ID:       "eye_closure",
			Message:  "Please keep your eyes open.",
			Priority: PriorityHigh,
			Cooldown: 15 * time.Second,
			Condition: func(m MetricsOutput) bool {
				return m.EyeClosure.EyeClosedSustained > 0
			},
		},
		{
			ID:       "yawn",
			Message:  "You seem sleepy. Consider taking a short break.",
			Priority: PriorityLow,
			Cooldown: 25 * time.Second,
			Condition: func(m MetricsOutput) bool {
				return m.Yawn.Yawning
			},
		},
		{
			ID:       "yawn_count",
			Message:  "You have been yawning frequently. Consider resting.",
			Priority: PriorityLow,
			Cooldown: 60 * time.Second,
			Condition: func(m MetricsOutput) bool {
				return m.Yawn.YawnCount > 0 && m.Yawn.YawnCount%3 == 0
			},
		},
		{
			ID:       "head_pose",
			Message:  "Please keep your head facing forward.",
			Priority: PriorityMedium,
			Cooldown: 12 * time.Second,
			Condition: func(m MetricsOutput) bool {
				return m.HeadPose.YawAlert || m.HeadPose.PitchAlert || m.HeadPose.RollAlert
			},
		},
		{
			ID:       "gaze_off_road",
			Message:  "Keep your eyes on the road.",
			Priority: PriorityMedium,
			Cooldown: 15 * time.Second,
			Condition: func(m MetricsOutput) bool {
				return m.Gaze.GazeAlert
			},
		},
		{
			ID:       "phone_usage",
			Message:  "Phone usage detected. Please stay focused.",
			Priority: PriorityCritical,
			Cooldown: 10 * time.Second,
			Condition: func(m MetricsOutput) bool {
				return m.PhoneUsage.PhoneUsage
			},
		},
	}
}
