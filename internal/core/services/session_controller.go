package services

import (
	"context"
	"sync"
	"time"

	"github.com/dejely/manobela/internal/core/domain"
	"github.com/dejely/manobela/internal/core/ports"
	"github.com/dejely/manobela/pkg/validation"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// ControllerStatus is a point-in-time snapshot of the monitoring session.
type ControllerStatus struct {
	State       domain.SessionState     `json:"state"`
	ClientID    string                  `json:"client_id,omitempty"`
	DurationMs  int64                   `json:"duration_ms"`
	Connection  domain.ConnectionStatus `json:"connection_status"`
	Transport   domain.TransportStatus  `json:"transport_status"`
	DataChannel domain.DataChannelState `json:"data_channel_state"`
	Error       string                  `json:"error,omitempty"`
}

// SessionController drives the monitoring state machine. Transitions come
// from the pure Transition table; this type layers the effects: transport
// lifecycle, peer negotiation, logging session, media gating and alerts.
type SessionController struct {
	transport ports.SignalingTransport
	peer      ports.PeerManager
	metrics   ports.MetricsLogger
	alerts    *AlertManager
	recorder  Recorder
	logger    *zap.SugaredLogger

	tickInterval time.Duration
	now          func() time.Time

	mu              sync.Mutex
	state           domain.SessionState
	clientID        string
	errMsg          string
	latest          *domain.InferenceData
	current         *domain.InferenceData
	durationMs      int64
	lastActiveStart time.Time
	sessionOpened   bool
	tickerStop      chan struct{}
	onDuration      func(ms int64)
}

func NewSessionController(
	transport ports.SignalingTransport,
	peer ports.PeerManager,
	metrics ports.MetricsLogger,
	alerts *AlertManager,
	recorder Recorder,
	logger *zap.SugaredLogger,
) *SessionController {
	if recorder == nil {
		recorder = NoopRecorder{}
	}
	return &SessionController{
		transport:    transport,
		peer:         peer,
		metrics:      metrics,
		alerts:       alerts,
		recorder:     recorder,
		logger:       logger,
		tickInterval: time.Second,
		now:          time.Now,
		state:        domain.StateIdle,
	}
}

// Bind registers the controller on the transport and peer manager. Call
// once before the first Start.
func (c *SessionController) Bind() {
	c.transport.OnMessage(c.handleSignal)
	c.peer.OnConnectionStateChange(c.handleConnectionState)
	c.peer.SubscribeInference(c.handleInference)
}

// OnDurationChange registers a callback republished every tick while
// active and on every state boundary.
func (c *SessionController) OnDurationChange(fn func(ms int64)) {
	c.mu.Lock()
	c.onDuration = fn
	c.mu.Unlock()
}

// State returns the current session state.
func (c *SessionController) State() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the current user-facing error, empty when none.
func (c *SessionController) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// LatestInference returns the most recent inference message, paused or not.
func (c *SessionController) LatestInference() *domain.InferenceData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// CurrentInference returns the inference snapshot as observed while
// active; it freezes during pause.
func (c *SessionController) CurrentInference() *domain.InferenceData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// DurationMs returns the accumulated active monitoring time.
func (c *SessionController) DurationMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.durationLocked()
}

func (c *SessionController) durationLocked() int64 {
	if c.state == domain.StateActive {
		return c.durationMs + c.now().Sub(c.lastActiveStart).Milliseconds()
	}
	return c.durationMs
}

// Status returns a consistent snapshot for the status API.
func (c *SessionController) Status() ControllerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ControllerStatus{
		State:       c.state,
		ClientID:    c.clientID,
		DurationMs:  c.durationLocked(),
		Connection:  c.peer.ConnectionStatus(),
		Transport:   c.transport.Status(),
		DataChannel: c.peer.DataChannelState(),
		Error:       c.errMsg,
	}
}

// Start begins monitoring from idle, or resumes from paused.
func (c *SessionController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == domain.StatePaused {
		c.mu.Unlock()
		return c.Resume(ctx)
	}

	next, ok := Transition(c.state, domain.EventStart)
	if !ok {
		c.mu.Unlock()
		return domain.ErrInvalidState
	}
	c.state = next
	c.errMsg = ""
	c.mu.Unlock()
	c.recorder.SetSessionState(next)
	c.logger.Info("starting monitoring session")

	return c.connect(ctx)
}

func (c *SessionController) connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		c.failStart("failed to connect to monitoring backend", err)
		return err
	}

	if err := c.peer.StartConnection(ctx); err != nil {
		c.transport.Close()
		c.failStart("failed to start peer connection", err)
		return err
	}

	return nil
}

func (c *SessionController) failStart(msg string, err error) {
	c.peer.Cleanup()

	c.mu.Lock()
	c.state, _ = Transition(c.state, domain.EventConnectionFailed)
	c.errMsg = msg
	c.clientID = ""
	state := c.state
	c.mu.Unlock()

	c.recorder.SetSessionState(state)
	c.logger.Errorw(msg, "error", err)
}

// Pause suspends monitoring: backend inference pauses, the camera feed
// mutes, but the peer connection and the logging session survive.
func (c *SessionController) Pause(ctx context.Context) error {
	c.mu.Lock()
	next, ok := Transition(c.state, domain.EventPause)
	if !ok {
		c.mu.Unlock()
		return domain.ErrInvalidState
	}
	c.durationMs += c.now().Sub(c.lastActiveStart).Milliseconds()
	c.state = next
	c.stopTickerLocked()
	duration := c.durationMs
	c.mu.Unlock()

	c.alerts.SetEnabled(false)
	c.recorder.SetSessionState(next)
	c.publishDuration(duration)

	if err := c.peer.SendControl(domain.ControlMessage{Type: domain.ControlPause}); err != nil {
		c.logger.Warnw("failed to send pause control", "error", err)
	} else {
		c.recorder.RecordControlSend(domain.ControlPause)
	}
	c.peer.SetMediaEnabled(false)

	c.logger.Infow("monitoring paused", "duration_ms", duration)
	return nil
}

// Resume continues a paused session. When the peer connection is still
// live no renegotiation happens; otherwise the connection is rebuilt and
// the logging session carries over.
func (c *SessionController) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.StatePaused {
		c.mu.Unlock()
		return domain.ErrInvalidState
	}

	if c.peer.Connected() && c.clientID != "" {
		c.state, _ = Transition(c.state, domain.EventResume)
		c.lastActiveStart = c.now()
		c.startTickerLocked()
		c.mu.Unlock()

		c.alerts.SetEnabled(true)
		c.recorder.SetSessionState(domain.StateActive)

		if err := c.peer.SendControl(domain.ControlMessage{Type: domain.ControlResume}); err != nil {
			c.logger.Warnw("failed to send resume control", "error", err)
		} else {
			c.recorder.RecordControlSend(domain.ControlResume)
		}
		c.peer.SetMediaEnabled(true)

		c.logger.Info("monitoring resumed")
		return nil
	}

	// Connection went away while paused; rebuild it. A fresh welcome will
	// carry the new client id, so the old one must not satisfy activation.
	c.state, _ = Transition(c.state, domain.EventRenegotiate)
	c.clientID = ""
	c.mu.Unlock()

	c.peer.Cleanup()
	c.recorder.SetSessionState(domain.StateStarting)
	c.logger.Info("peer connection stale on resume, renegotiating")

	return c.connect(ctx)
}

// Stop ends monitoring, finalizes the logging session and returns to idle.
func (c *SessionController) Stop(ctx context.Context) error {
	c.mu.Lock()
	wasActive := c.state == domain.StateActive
	next, ok := Transition(c.state, domain.EventStop)
	if !ok {
		c.mu.Unlock()
		return domain.ErrInvalidState
	}
	if wasActive {
		c.durationMs += c.now().Sub(c.lastActiveStart).Milliseconds()
	}
	duration := c.durationMs
	sessionOpened := c.sessionOpened
	c.state = next
	c.stopTickerLocked()
	c.mu.Unlock()

	c.alerts.SetEnabled(false)
	c.recorder.SetSessionState(next)
	c.logger.Infow("stopping monitoring session", "duration_ms", duration)

	// Best effort: ask the backend to stop inference before tearing down.
	if err := c.peer.SendControl(domain.ControlMessage{Type: domain.ControlPause}); err == nil {
		c.recorder.RecordControlSend(domain.ControlPause)
	}
	c.peer.SetMediaEnabled(false)
	c.peer.Cleanup()
	if err := c.transport.Close(); err != nil {
		c.logger.Warnw("failed to close transport", "error", err)
	}

	if sessionOpened {
		if err := c.metrics.EndSession(ctx, duration); err != nil {
			c.logger.Errorw("failed to end logging session", "error", err)
		}
	}

	c.resetToIdle(domain.EventStopped, "")
	return nil
}

// Shutdown stops a running session during process exit.
func (c *SessionController) Shutdown(ctx context.Context) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == domain.StateIdle || state == domain.StateStopping {
		return
	}
	if err := c.Stop(ctx); err != nil {
		c.logger.Warnw("failed to stop session on shutdown", "error", err)
	}
}

// RecalibrateHeadPose asks the backend to re-zero head pose angles. A
// closed data channel makes this a logged no-op.
func (c *SessionController) RecalibrateHeadPose() error {
	if c.peer.DataChannelState() != domain.DataChannelOpen {
		c.logger.Info("recalibration skipped, data channel not open")
		return nil
	}

	if err := c.peer.SendControl(domain.ControlMessage{Type: domain.ControlRecalibrateHeadPose}); err != nil {
		return err
	}
	c.recorder.RecordControlSend(domain.ControlRecalibrateHeadPose)
	c.logger.Info("head pose recalibration requested")
	return nil
}

func (c *SessionController) handleSignal(msg domain.SignalMessage) {
	switch msg.Type {
	case domain.MessageWelcome:
		if err := validation.ValidateClientID(msg.ClientID); err != nil {
			c.logger.Warnw("welcome with invalid client id dropped", "error", err)
			return
		}
		c.mu.Lock()
		c.clientID = msg.ClientID
		c.mu.Unlock()
		c.logger.Infow("welcome received", "client_id", msg.ClientID)
		c.maybeActivate()

	case domain.MessageAnswer:
		if err := validation.ValidateSDPType(msg.SDPType); err != nil {
			c.logger.Warnw("answer with invalid sdp type dropped", "error", err, "sdp_type", msg.SDPType)
			return
		}
		answer := webrtc.SessionDescription{
			Type: webrtc.NewSDPType(msg.SDPType),
			SDP:  msg.SDP,
		}
		if err := c.peer.HandleAnswer(answer); err != nil {
			c.logger.Errorw("failed to apply answer", "error", err)
		}

	case domain.MessageICECandidate:
		if msg.Candidate == nil {
			return
		}
		if err := c.peer.HandleRemoteCandidate(*msg.Candidate); err != nil {
			c.logger.Warnw("failed to add remote candidate", "error", err)
		}

	case domain.MessageError:
		c.mu.Lock()
		c.errMsg = msg.Message
		c.mu.Unlock()
		c.logger.Warnw("backend error", "message", msg.Message)
	}
}

func (c *SessionController) handleConnectionState(status domain.ConnectionStatus) {
	c.recorder.SetConnected(status == domain.ConnectionConnected)

	if status == domain.ConnectionConnected {
		c.maybeActivate()
		return
	}

	if status.Terminal() {
		c.handleConnectionLost()
	}
}

// maybeActivate flips starting to active once both the welcome and the
// connected peer state have arrived, in either order.
func (c *SessionController) maybeActivate() {
	c.mu.Lock()
	if c.state != domain.StateStarting || c.clientID == "" || !c.peer.Connected() {
		c.mu.Unlock()
		return
	}

	c.state, _ = Transition(c.state, domain.EventConnected)
	c.lastActiveStart = c.now()
	c.startTickerLocked()
	openSession := !c.sessionOpened
	c.sessionOpened = true
	clientID := c.clientID
	c.mu.Unlock()

	c.alerts.SetEnabled(true)
	c.recorder.SetSessionState(domain.StateActive)
	c.logger.Infow("monitoring active", "client_id", clientID)

	if openSession {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := c.metrics.StartSession(ctx, clientID); err != nil {
			c.logger.Errorw("failed to start logging session", "error", err)
		}
	}
}

// handleConnectionLost is the sole failure-recovery path; there is no
// automatic reconnect.
func (c *SessionController) handleConnectionLost() {
	c.mu.Lock()
	wasActive := c.state == domain.StateActive
	next, ok := Transition(c.state, domain.EventConnectionFailed)
	if !ok {
		c.mu.Unlock()
		return
	}
	if wasActive {
		c.durationMs += c.now().Sub(c.lastActiveStart).Milliseconds()
	}
	duration := c.durationMs
	sessionOpened := c.sessionOpened
	c.state = next
	c.stopTickerLocked()
	c.mu.Unlock()

	c.alerts.SetEnabled(false)
	c.logger.Warnw("connection to monitoring backend lost", "duration_ms", duration)

	c.peer.Cleanup()
	c.transport.Close()

	if sessionOpened {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.metrics.EndSession(ctx, duration); err != nil {
			c.logger.Errorw("failed to end logging session", "error", err)
		}
	}

	c.resetToIdle(domain.SessionEvent(""), "connection to monitoring backend lost")
}

// resetToIdle clears all per-session state. event is applied when the
// state machine is not already idle.
func (c *SessionController) resetToIdle(event domain.SessionEvent, errMsg string) {
	c.mu.Lock()
	if event != "" {
		c.state, _ = Transition(c.state, event)
	} else {
		c.state = domain.StateIdle
	}
	c.clientID = ""
	c.latest = nil
	c.current = nil
	c.durationMs = 0
	c.sessionOpened = false
	if errMsg != "" {
		c.errMsg = errMsg
	}
	c.stopTickerLocked()
	c.mu.Unlock()

	c.recorder.SetSessionState(domain.StateIdle)
	c.publishDuration(0)
}

func (c *SessionController) handleInference(data domain.InferenceData) {
	c.mu.Lock()
	c.latest = &data
	active := c.state == domain.StateActive
	if active {
		c.current = &data
	}
	c.mu.Unlock()

	if !active {
		return
	}

	c.metrics.LogMetrics(&data)

	if data.Metrics != nil {
		c.alerts.Evaluate(context.Background(), *data.Metrics)
	}
}

func (c *SessionController) startTickerLocked() {
	if c.tickerStop != nil {
		return
	}
	stop := make(chan struct{})
	c.tickerStop = stop

	go func() {
		ticker := time.NewTicker(c.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.publishDuration(c.DurationMs())
			}
		}
	}()
}

func (c *SessionController) stopTickerLocked() {
	if c.tickerStop != nil {
		close(c.tickerStop)
		c.tickerStop = nil
	}
}

func (c *SessionController) publishDuration(ms int64) {
	c.mu.Lock()
	fn := c.onDuration
	c.mu.Unlock()

	if fn != nil {
		fn(ms)
	}
}
