package signal

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dejely/manobela/internal/core/domain"
	"github.com/dejely/manobela/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config holds transport settings.
type Config struct {
	URL            string
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
}

// WebSocketClient is the signaling transport to the backend. Handlers must
// be registered before Connect; they are never invoked after Close returns.
type WebSocketClient struct {
	cfg   Config
	token string

	mu     sync.RWMutex
	conn   *websocket.Conn
	status domain.TransportStatus

	writeMu sync.Mutex

	onMessage []func(msg domain.SignalMessage)
	onStatus  func(status domain.TransportStatus)

	// Per-connection; replaced on every Connect.
	done       chan struct{}
	readerDone chan struct{}

	logger *zap.SugaredLogger
}

func NewWebSocketClient(cfg Config, token string, logger *zap.SugaredLogger) *WebSocketClient {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	return &WebSocketClient{
		cfg:    cfg,
		token:  token,
		status: domain.TransportClosed,
		logger: logger,
	}
}

// OnMessage registers an inbound message handler. Handlers run in
// registration order; each message is handled to completion before the
// next is read.
func (c *WebSocketClient) OnMessage(fn func(msg domain.SignalMessage)) {
	c.mu.Lock()
	c.onMessage = append(c.onMessage, fn)
	c.mu.Unlock()
}

// OnStatusChange registers the status change handler.
func (c *WebSocketClient) OnStatusChange(fn func(status domain.TransportStatus)) {
	c.mu.Lock()
	c.onStatus = fn
	c.mu.Unlock()
}

// Status returns the current transport status.
func (c *WebSocketClient) Status() domain.TransportStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Connect dials the signaling endpoint and blocks until the socket is open
// or the dial fails. Connecting an already open transport is a no-op.
func (c *WebSocketClient) Connect(ctx context.Context) error {
	if err := validation.ValidateSignalURL(c.cfg.URL); err != nil {
		return fmt.Errorf("invalid signaling url: %w", err)
	}

	c.mu.Lock()
	switch c.status {
	case domain.TransportOpen:
		c.mu.Unlock()
		return nil
	case domain.TransportConnecting, domain.TransportClosing:
		status := c.status
		c.mu.Unlock()
		return fmt.Errorf("transport busy: %s", status)
	}
	c.done = make(chan struct{})
	c.readerDone = make(chan struct{})
	c.mu.Unlock()

	c.setStatus(domain.TransportConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.ConnectTimeout}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, c.cfg.URL, header)
	if err != nil {
		c.setStatus(domain.TransportClosed)
		return fmt.Errorf("failed to dial signaling endpoint: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		return nil
	})

	c.mu.RLock()
	done, readerDone := c.done, c.readerDone
	c.mu.RUnlock()

	c.setStatus(domain.TransportOpen)
	c.logger.Infow("signaling transport connected", "url", c.cfg.URL)

	go c.readLoop(conn, done, readerDone)
	go c.pingLoop(conn, done, readerDone)

	return nil
}

// Send serializes and writes one signaling message. Messages sent from a
// single goroutine arrive in order.
func (c *WebSocketClient) Send(msg domain.SignalMessage) error {
	c.mu.RLock()
	conn := c.conn
	open := c.status == domain.TransportOpen
	c.mu.RUnlock()

	if conn == nil || !open {
		return domain.ErrTransportNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s message: %w", msg.Type, err)
	}
	return nil
}

// Close tears the transport down. Idempotent; no message handler fires
// after Close returns. Connect brings the transport back up.
func (c *WebSocketClient) Close() error {
	c.mu.Lock()
	if c.status == domain.TransportClosed || c.status == domain.TransportClosing {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	done := c.done
	readerDone := c.readerDone
	c.conn = nil
	c.mu.Unlock()

	c.setStatus(domain.TransportClosing)

	var err error
	if conn != nil {
		close(done)

		c.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		err = conn.Close()

		// Wait for the reader to drain so no callback can fire after
		// Close returns.
		<-readerDone
	}

	c.setStatus(domain.TransportClosed)
	return err
}

func (c *WebSocketClient) readLoop(conn *websocket.Conn, done, readerDone chan struct{}) {
	defer close(readerDone)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// Deliberate teardown, no status callback.
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.logger.Warnw("signaling read failed", "error", err)
				}
				c.setStatus(domain.TransportClosed)
			}
			return
		}

		msg, err := domain.ParseSignalMessage(data)
		if err != nil {
			c.logger.Debugw("dropping malformed signaling message", "error", err)
			continue
		}

		c.mu.RLock()
		handlers := make([]func(domain.SignalMessage), len(c.onMessage))
		copy(handlers, c.onMessage)
		c.mu.RUnlock()

		for _, handler := range handlers {
			handler(msg)
		}
	}
}

func (c *WebSocketClient) pingLoop(conn *websocket.Conn, done, readerDone chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debugw("signaling ping failed", "error", err)
				return
			}
		case <-done:
			return
		case <-readerDone:
			return
		}
	}
}

func (c *WebSocketClient) setStatus(status domain.TransportStatus) {
	c.mu.Lock()
	if c.status == status {
		c.mu.Unlock()
		return
	}
	c.status = status
	handler := c.onStatus
	c.mu.Unlock()

	if handler != nil {
		handler(status)
	}
}
