package ports

import (
	"context"

	"github.com/dejely/manobela/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// SignalingTransport is the control plane between the client and the
// backend. Implementations deliver inbound messages and status changes on
// the handlers registered before Connect.
type SignalingTransport interface {
	Connect(ctx context.Context) error
	Send(msg domain.SignalMessage) error
	Close() error
	Status() domain.TransportStatus
	OnMessage(fn func(msg domain.SignalMessage))
	OnStatusChange(fn func(status domain.TransportStatus))
}

// PeerManager owns the WebRTC peer connection and the inference data
// channel.
type PeerManager interface {
	StartConnection(ctx context.Context) error
	HandleAnswer(answer webrtc.SessionDescription) error
	HandleRemoteCandidate(candidate domain.ICECandidateInit) error
	SendControl(msg domain.ControlMessage) error
	SetMediaEnabled(enabled bool)
	Cleanup()
	ConnectionStatus() domain.ConnectionStatus
	DataChannelState() domain.DataChannelState
	Connected() bool
	SubscribeInference(fn func(data domain.InferenceData)) (unsubscribe func())
	OnConnectionStateChange(fn func(status domain.ConnectionStatus))
}

// MetricsLogger batches inference snapshots into the persisted store.
type MetricsLogger interface {
	StartSession(ctx context.Context, clientID string) (string, error)
	LogMetrics(data *domain.InferenceData)
	EndSession(ctx context.Context, durationMs int64) error
	Reset()
	SetReadOnly(value bool)
	CurrentSessionID() string
}

// MediaStream yields the live outbound media handle, nil when no camera
// source is available. SetEnabled(false) mutes the feed without detaching
// the track.
type MediaStream interface {
	Track() webrtc.TrackLocal
	SetEnabled(enabled bool)
	Close() error
}

// MediaSource acquires the outbound media stream.
type MediaSource interface {
	Acquire(ctx context.Context) (MediaStream, error)
}

// Speaker voices alert messages.
type Speaker interface {
	Speak(ctx context.Context, message string) error
}
