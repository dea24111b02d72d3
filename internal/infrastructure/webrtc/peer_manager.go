package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dejely/manobela/internal/core/domain"
	"github.com/dejely/manobela/internal/core/ports"
	"github.com/dejely/manobela/pkg/validation"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config holds peer connection settings.
type Config struct {
	ICEServers     []webrtc.ICEServer
	ConnectTimeout time.Duration
}

// PeerManager owns the client-side peer connection and its inference data
// channel. Each StartConnection bumps a generation counter; async callbacks
// from a torn-down connection carry a stale generation and are ignored.
type PeerManager struct {
	cfg       Config
	transport ports.SignalingTransport
	media     ports.MediaSource

	mu         sync.RWMutex
	generation uint64
	pc         *webrtc.PeerConnection
	channel    *webrtc.DataChannel
	stream     ports.MediaStream

	connStatus   domain.ConnectionStatus
	channelState domain.DataChannelState

	subscribers  map[uint64]func(data domain.InferenceData)
	nextSubID    uint64
	onConnChange func(status domain.ConnectionStatus)

	logger *zap.SugaredLogger
}

func NewPeerManager(cfg Config, transport ports.SignalingTransport, media ports.MediaSource, logger *zap.SugaredLogger) *PeerManager {
	return &PeerManager{
		cfg:          cfg,
		transport:    transport,
		media:        media,
		connStatus:   domain.ConnectionNew,
		channelState: domain.DataChannelClosed,
		subscribers:  make(map[uint64]func(data domain.InferenceData)),
		logger:       logger,
	}
}

// SubscribeInference registers an inference message handler. Handlers are
// invoked in subscription order; the returned function removes the handler.
func (m *PeerManager) SubscribeInference(fn func(data domain.InferenceData)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// SetMediaEnabled mutes or unmutes the outbound camera feed without
// detaching the track from the peer connection.
func (m *PeerManager) SetMediaEnabled(enabled bool) {
	m.mu.RLock()
	stream := m.stream
	m.mu.RUnlock()

	if stream != nil {
		stream.SetEnabled(enabled)
	}
}

// OnConnectionStateChange registers the connection status handler.
func (m *PeerManager) OnConnectionStateChange(fn func(status domain.ConnectionStatus)) {
	m.mu.Lock()
	m.onConnChange = fn
	m.mu.Unlock()
}

// ConnectionStatus returns the current peer connection status.
func (m *PeerManager) ConnectionStatus() domain.ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connStatus
}

// DataChannelState returns the current data channel state.
func (m *PeerManager) DataChannelState() domain.DataChannelState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channelState
}

// Connected reports whether the peer connection is live and the data
// channel is open.
func (m *PeerManager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pc != nil &&
		m.connStatus == domain.ConnectionConnected &&
		m.channelState == domain.DataChannelOpen
}

// StartConnection acquires the media stream, builds the peer connection and
// sends the offer. The answer arrives asynchronously via HandleAnswer.
func (m *PeerManager) StartConnection(ctx context.Context) error {
	if m.transport.Status() != domain.TransportOpen {
		return domain.ErrTransportNotOpen
	}

	stream, err := m.media.Acquire(ctx)
	if err != nil {
		m.setConnStatus(domain.ConnectionFailed)
		return fmt.Errorf("failed to acquire media stream: %w", err)
	}
	if stream == nil || stream.Track() == nil {
		m.setConnStatus(domain.ConnectionFailed)
		return domain.ErrNoMediaStream
	}

	m.setConnStatus(domain.ConnectionConnecting)

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: m.cfg.ICEServers,
	})
	if err != nil {
		m.setConnStatus(domain.ConnectionFailed)
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.pc = pc
	m.stream = stream
	m.mu.Unlock()

	pc.OnICECandidate(m.handleLocalCandidate(gen))
	pc.OnConnectionStateChange(m.handleConnectionState(gen))
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		m.logger.Debugw("ice connection state changed", "state", state.String())
	})

	// The data channel must exist before the offer so its m-line is part of
	// the negotiation.
	ordered := true
	channel, err := pc.CreateDataChannel("data", &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		m.setConnStatus(domain.ConnectionFailed)
		return fmt.Errorf("failed to create data channel: %w", err)
	}
	m.bindDataChannel(gen, channel)

	transceiver, err := pc.AddTransceiverFromTrack(stream.Track(), webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendonly,
	})
	if err != nil {
		pc.Close()
		m.setConnStatus(domain.ConnectionFailed)
		return fmt.Errorf("failed to add media track: %w", err)
	}

	go m.drainRTCP(gen, transceiver.Sender())

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		m.setConnStatus(domain.ConnectionFailed)
		return fmt.Errorf("failed to create offer: %w", err)
	}

	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		m.setConnStatus(domain.ConnectionFailed)
		return fmt.Errorf("failed to set local description: %w", err)
	}

	if err := m.transport.Send(domain.NewOfferMessage(offer.SDP)); err != nil {
		pc.Close()
		m.setConnStatus(domain.ConnectionFailed)
		return fmt.Errorf("failed to send offer: %w", err)
	}

	if m.cfg.ConnectTimeout > 0 {
		go m.watchConnectTimeout(gen)
	}

	m.logger.Infow("offer sent, waiting for answer", "sdp_length", len(offer.SDP))
	return nil
}

// watchConnectTimeout fails a negotiation that has not reached connected
// within the configured window. The resulting status change tears the
// session down through the usual connection-lost path.
func (m *PeerManager) watchConnectTimeout(gen uint64) {
	timer := time.NewTimer(m.cfg.ConnectTimeout)
	defer timer.Stop()
	<-timer.C

	if !m.currentGeneration(gen) {
		return
	}
	m.mu.RLock()
	status := m.connStatus
	m.mu.RUnlock()
	if status != domain.ConnectionConnecting {
		return
	}

	m.logger.Warnw("peer connection timed out", "timeout", m.cfg.ConnectTimeout)
	m.setConnStatus(domain.ConnectionFailed)
}

// HandleAnswer applies the remote answer to the pending negotiation.
func (m *PeerManager) HandleAnswer(answer webrtc.SessionDescription) error {
	m.mu.RLock()
	pc := m.pc
	m.mu.RUnlock()

	if pc == nil {
		return domain.ErrPeerConnectionMissing
	}

	if err := validation.ValidateSDP(answer.SDP); err != nil {
		return fmt.Errorf("rejected remote answer: %w", err)
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	m.logger.Info("remote description set")
	return nil
}

// HandleRemoteCandidate adds a backend-provided ICE candidate.
func (m *PeerManager) HandleRemoteCandidate(candidate domain.ICECandidateInit) error {
	m.mu.RLock()
	pc := m.pc
	m.mu.RUnlock()

	if pc == nil {
		return domain.ErrPeerConnectionMissing
	}

	init := webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        candidate.SDPMid,
		SDPMLineIndex: candidate.SDPMLineIndex,
	}
	if err := pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("failed to add ice candidate: %w", err)
	}

	m.logger.Debug("added remote ice candidate")
	return nil
}

// SendControl writes a control message to the data channel. Control
// messages are fire-and-forget; the backend never acknowledges them.
func (m *PeerManager) SendControl(msg domain.ControlMessage) error {
	m.mu.RLock()
	channel := m.channel
	state := m.channelState
	m.mu.RUnlock()

	if channel == nil || state != domain.DataChannelOpen {
		return domain.ErrDataChannelNotOpen
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal control message: %w", err)
	}

	if err := channel.SendText(string(data)); err != nil {
		return fmt.Errorf("failed to send %s control message: %w", msg.Type, err)
	}
	return nil
}

// Cleanup tears down the peer connection, data channel and media stream.
// Events from the old connection that race with Cleanup are discarded by
// the generation guard.
func (m *PeerManager) Cleanup() {
	m.mu.Lock()
	m.generation++
	pc := m.pc
	channel := m.channel
	stream := m.stream
	m.pc = nil
	m.channel = nil
	m.stream = nil
	m.connStatus = domain.ConnectionClosed
	m.channelState = domain.DataChannelClosed
	m.mu.Unlock()

	if channel != nil {
		channel.Close()
	}
	if pc != nil {
		pc.Close()
	}
	if stream != nil {
		stream.Close()
	}

	m.logger.Info("peer connection cleaned up")
}

func (m *PeerManager) bindDataChannel(gen uint64, channel *webrtc.DataChannel) {
	m.mu.Lock()
	m.channel = channel
	m.channelState = domain.DataChannelConnecting
	m.mu.Unlock()

	channel.OnOpen(func() { m.handleChannelOpen(gen) })

	channel.OnClose(func() {
		if !m.currentGeneration(gen) {
			return
		}
		m.mu.Lock()
		m.channelState = domain.DataChannelClosed
		m.mu.Unlock()
		m.logger.Info("data channel closed")
	})

	channel.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !m.currentGeneration(gen) {
			return
		}

		var data domain.InferenceData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			m.logger.Debugw("dropping malformed inference message", "error", err)
			return
		}

		m.mu.RLock()
		ids := make([]uint64, 0, len(m.subscribers))
		for id := range m.subscribers {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		handlers := make([]func(domain.InferenceData), 0, len(ids))
		for _, id := range ids {
			handlers = append(handlers, m.subscribers[id])
		}
		m.mu.RUnlock()

		for _, handler := range handlers {
			handler(data)
		}
	})
}

// handleChannelOpen marks the data channel open. Pion reports the peer
// connection connected before the channel's OnOpen fires, so the connected
// status is replayed to the state handler once the channel is up; Connected()
// only holds after both.
func (m *PeerManager) handleChannelOpen(gen uint64) {
	if !m.currentGeneration(gen) {
		return
	}

	m.mu.Lock()
	m.channelState = domain.DataChannelOpen
	status := m.connStatus
	handler := m.onConnChange
	m.mu.Unlock()

	m.logger.Info("data channel opened")

	if handler != nil && status == domain.ConnectionConnected {
		handler(status)
	}
}

// handleLocalCandidate forwards gathered candidates to the backend. A nil
// candidate marks end of gathering and produces no message.
func (m *PeerManager) handleLocalCandidate(gen uint64) func(*webrtc.ICECandidate) {
	return func(candidate *webrtc.ICECandidate) {
		if !m.currentGeneration(gen) {
			return
		}

		if candidate == nil {
			m.logger.Debug("ice gathering complete")
			return
		}

		init := candidate.ToJSON()
		msg := domain.NewICECandidateMessage(domain.ICECandidateInit{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
		if err := m.transport.Send(msg); err != nil {
			m.logger.Warnw("failed to forward ice candidate", "error", err)
		}
	}
}

func (m *PeerManager) handleConnectionState(gen uint64) func(webrtc.PeerConnectionState) {
	return func(state webrtc.PeerConnectionState) {
		if !m.currentGeneration(gen) {
			return
		}

		status := mapConnectionState(state)
		m.logger.Infow("peer connection state changed", "state", status)
		m.setConnStatus(status)
	}
}

// drainRTCP keeps the interceptor pipeline fed by reading sender reports
// off the RTP sender until the connection closes.
func (m *PeerManager) drainRTCP(gen uint64, sender *webrtc.RTPSender) {
	if sender == nil {
		return
	}

	buf := make([]byte, 1500)
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		if !m.currentGeneration(gen) {
			return
		}

		packets, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		for _, packet := range packets {
			if rr, ok := packet.(*rtcp.ReceiverReport); ok {
				for _, report := range rr.Reports {
					m.logger.Debugw("receiver report",
						"fraction_lost", report.FractionLost,
						"jitter", report.Jitter,
					)
				}
			}
		}
	}
}

func (m *PeerManager) currentGeneration(gen uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation == gen
}

func (m *PeerManager) setConnStatus(status domain.ConnectionStatus) {
	m.mu.Lock()
	if m.connStatus == status {
		m.mu.Unlock()
		return
	}
	m.connStatus = status
	handler := m.onConnChange
	m.mu.Unlock()

	if handler != nil {
		handler(status)
	}
}

func mapConnectionState(state webrtc.PeerConnectionState) domain.ConnectionStatus {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return domain.ConnectionNew
	case webrtc.PeerConnectionStateConnecting:
		return domain.ConnectionConnecting
	case webrtc.PeerConnectionStateConnected:
		return domain.ConnectionConnected
	case webrtc.PeerConnectionStateDisconnected:
		return domain.ConnectionDisconnected
	case webrtc.PeerConnectionStateFailed:
		return domain.ConnectionFailed
	case webrtc.PeerConnectionStateClosed:
		return domain.ConnectionClosed
	default:
		return domain.ConnectionNew
	}
}
