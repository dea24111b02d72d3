package domain

import "encoding/json"

// MessageType identifies a signaling message on the wire.
type MessageType string

const (
	MessageWelcome      MessageType = "welcome"
	MessageOffer        MessageType = "offer"
	MessageAnswer       MessageType = "answer"
	MessageICECandidate MessageType = "ice-candidate"
	MessageError        MessageType = "error"
)

// ICECandidateInit mirrors the candidate object exchanged during negotiation.
type ICECandidateInit struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

// SignalMessage is the flat envelope for every signaling message. Only the
// fields relevant to the Type are populated; the rest stay zero and are
// omitted when marshaled.
type SignalMessage struct {
	Type MessageType `json:"type"`

	// welcome
	ClientID  string `json:"client_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`

	// offer / answer
	SDP     string `json:"sdp,omitempty"`
	SDPType string `json:"sdpType,omitempty"`

	// ice-candidate
	Candidate *ICECandidateInit `json:"candidate,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// NewOfferMessage builds an outbound offer.
func NewOfferMessage(sdp string) SignalMessage {
	return SignalMessage{Type: MessageOffer, SDP: sdp, SDPType: "offer"}
}

// NewICECandidateMessage builds an outbound ICE candidate.
func NewICECandidateMessage(candidate ICECandidateInit) SignalMessage {
	return SignalMessage{Type: MessageICECandidate, Candidate: &candidate}
}

// ControlType identifies a client-originated data channel control message.
type ControlType string

const (
	ControlPause               ControlType = "pause"
	ControlResume              ControlType = "resume"
	ControlRecalibrateHeadPose ControlType = "head_pose_recalibrate"
)

// ControlMessage is fire-and-forget; the backend never acknowledges it.
type ControlMessage struct {
	Type ControlType `json:"type"`
}

// ParseSignalMessage decodes a raw signaling frame.
func ParseSignalMessage(data []byte) (SignalMessage, error) {
	var msg SignalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SignalMessage{}, err
	}
	return msg, nil
}
