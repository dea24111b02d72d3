package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/dejely/manobela/internal/core/ports"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config holds the camera RTP ingest settings. The camera pipeline pushes
// encoded RTP over loopback UDP; this source repackets it onto a local
// track for the peer connection.
type Config struct {
	ListenAddress string
	MimeType      string
	ClockRate     uint32
}

// RTPSource acquires the outbound camera stream from a UDP RTP feed.
type RTPSource struct {
	cfg    Config
	logger *zap.SugaredLogger
}

func NewRTPSource(cfg Config, logger *zap.SugaredLogger) *RTPSource {
	return &RTPSource{cfg: cfg, logger: logger}
}

// Acquire binds the UDP listener and starts pumping packets onto a fresh
// local track. Returns nil when no camera feed can be bound.
func (s *RTPSource) Acquire(ctx context.Context) (ports.MediaStream, error) {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid rtp listen address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		s.logger.Warnw("no camera feed available", "address", s.cfg.ListenAddress, "error", err)
		return nil, nil
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: s.cfg.MimeType, ClockRate: s.cfg.ClockRate},
		"video",
		"camera",
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create local track: %w", err)
	}

	stream := &udpStream{
		conn:    conn,
		track:   track,
		logger:  s.logger,
		enabled: true,
	}
	go stream.pump()

	s.logger.Infow("camera rtp source bound", "address", s.cfg.ListenAddress, "mime_type", s.cfg.MimeType)
	return stream, nil
}

type udpStream struct {
	conn   *net.UDPConn
	track  *webrtc.TrackLocalStaticRTP
	logger *zap.SugaredLogger

	mu      sync.RWMutex
	enabled bool

	closeOnce sync.Once
}

func (u *udpStream) Track() webrtc.TrackLocal {
	return u.track
}

// SetEnabled mutes or unmutes the feed. The track stays attached so the
// sender keeps its slot; packets are simply discarded while muted.
func (u *udpStream) SetEnabled(enabled bool) {
	u.mu.Lock()
	u.enabled = enabled
	u.mu.Unlock()
}

func (u *udpStream) isEnabled() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.enabled
}

func (u *udpStream) Close() error {
	var err error
	u.closeOnce.Do(func() {
		err = u.conn.Close()
	})
	return err
}

// pump relays camera packets onto the track until the listener closes.
func (u *udpStream) pump() {
	buf := make([]byte, 1500) // MTU size
	packet := &rtp.Packet{}

	for {
		n, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				u.logger.Warnw("error reading camera rtp", "error", err)
			}
			return
		}

		if err := packet.Unmarshal(buf[:n]); err != nil {
			u.logger.Debugw("dropping malformed rtp packet", "error", err)
			continue
		}

		if !u.isEnabled() {
			continue
		}

		if err := u.track.WriteRTP(packet); err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				// No bound sender yet, or the connection went away.
				continue
			}
			u.logger.Warnw("error writing rtp to track", "error", err)
		}
	}
}
