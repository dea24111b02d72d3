package domain

// TransportStatus tracks the signaling transport lifecycle.
type TransportStatus string

const (
	TransportConnecting TransportStatus = "connecting"
	TransportOpen       TransportStatus = "open"
	TransportClosing    TransportStatus = "closing"
	TransportClosed     TransportStatus = "closed"
)

// ConnectionStatus mirrors the peer connection state reported by the
// underlying WebRTC stack.
type ConnectionStatus string

const (
	ConnectionNew          ConnectionStatus = "new"
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionFailed       ConnectionStatus = "failed"
	ConnectionClosed       ConnectionStatus = "closed"
)

// Terminal reports whether the peer connection cannot recover on its own.
func (s ConnectionStatus) Terminal() bool {
	return s == ConnectionFailed || s == ConnectionClosed || s == ConnectionDisconnected
}

// DataChannelState tracks the inference data channel lifecycle.
type DataChannelState string

const (
	DataChannelConnecting DataChannelState = "connecting"
	DataChannelOpen       DataChannelState = "open"
	DataChannelClosing    DataChannelState = "closing"
	DataChannelClosed     DataChannelState = "closed"
)
