package domain

import "errors"

var (
	ErrNoMediaStream         = errors.New("no media stream available")
	ErrTransportNotOpen      = errors.New("signaling transport not open")
	ErrDataChannelNotOpen    = errors.New("data channel not open")
	ErrPeerConnectionMissing = errors.New("peer connection missing")
	ErrSessionNotFound       = errors.New("session not found")
	ErrReadOnly              = errors.New("logger is read-only")
	ErrInvalidState          = errors.New("invalid session state transition")
)
