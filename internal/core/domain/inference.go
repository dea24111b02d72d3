package domain

// Resolution of the processed video frame.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// EyeClosureMetrics groups the eye closure measurements.
type EyeClosureMetrics struct {
	EAR                float64 `json:"ear"`
	EyeClosed          bool    `json:"eye_closed"`
	EyeClosedSustained float64 `json:"eye_closed_sustained"`
	Perclos            float64 `json:"perclos"`
	PerclosAlert       bool    `json:"perclos_alert"`
}

// YawnMetrics groups the yawn measurements.
type YawnMetrics struct {
	MAR           float64 `json:"mar"`
	Yawning       bool    `json:"yawning"`
	YawnSustained float64 `json:"yawn_sustained"`
	YawnCount     int     `json:"yawn_count"`
}

// HeadPoseMetrics groups the head pose angles and their alert flags.
type HeadPoseMetrics struct {
	Yaw               float64 `json:"yaw"`
	Pitch             float64 `json:"pitch"`
	Roll              float64 `json:"roll"`
	YawAlert          bool    `json:"yaw_alert"`
	PitchAlert        bool    `json:"pitch_alert"`
	RollAlert         bool    `json:"roll_alert"`
	HeadPoseSustained float64 `json:"head_pose_sustained"`
}

// GazeMetrics groups the gaze measurements.
type GazeMetrics struct {
	GazeAlert     bool    `json:"gaze_alert"`
	GazeSustained float64 `json:"gaze_sustained"`
}

// PhoneUsageMetrics groups the phone usage measurements.
type PhoneUsageMetrics struct {
	PhoneUsage          bool    `json:"phone_usage"`
	PhoneUsageSustained float64 `json:"phone_usage_sustained"`
}

// MetricsOutput is the structured fatigue and distraction snapshot produced
// per processed frame.
type MetricsOutput struct {
	FaceMissing bool              `json:"face_missing"`
	EyeClosure  EyeClosureMetrics `json:"eye_closure"`
	Yawn        YawnMetrics       `json:"yawn"`
	HeadPose    HeadPoseMetrics   `json:"head_pose"`
	Gaze        GazeMetrics       `json:"gaze"`
	PhoneUsage  PhoneUsageMetrics `json:"phone_usage"`
}

// InferenceData is the payload received over the data channel for each
// processed frame. FaceLandmarks is a flat [x1, y1, x2, y2, ...] array of
// normalized coordinates, nil when no face was detected. Metrics is nil when
// the frame carried no metric snapshot.
type InferenceData struct {
	Timestamp     string         `json:"timestamp"`
	Resolution    Resolution     `json:"resolution"`
	FaceLandmarks []float64      `json:"face_landmarks"`
	Metrics       *MetricsOutput `json:"metrics"`
}
