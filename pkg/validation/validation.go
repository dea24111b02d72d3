// Package validation checks identifiers and payloads crossing trust
// boundaries: backend-assigned IDs, SDP blobs, and configured endpoints.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxClientIDLen = 100
	maxSDPBytes    = 1 << 20
)

var (
	// ClientIDRegex matches backend-assigned client identifiers.
	ClientIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// SessionIDRegex matches persisted session IDs, which are UUIDs.
	SessionIDRegex = regexp.MustCompile(`^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}$`)
)

// ValidateClientID checks a client ID received in a welcome message.
func ValidateClientID(clientID string) error {
	if clientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if len(clientID) > maxClientIDLen {
		return fmt.Errorf("client ID is too long (max %d characters)", maxClientIDLen)
	}
	if !ClientIDRegex.MatchString(clientID) {
		return fmt.Errorf("invalid client ID format")
	}
	return nil
}

// ValidateSessionID checks a session ID supplied by an API caller.
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if !SessionIDRegex.MatchString(sessionID) {
		return fmt.Errorf("invalid session ID format")
	}
	return nil
}

// ValidateSDP sanity-checks a session description before it reaches the
// peer connection.
func ValidateSDP(sdp string) error {
	switch {
	case sdp == "":
		return fmt.Errorf("SDP is required")
	case len(sdp) > maxSDPBytes:
		return fmt.Errorf("SDP is too large (max 1MB)")
	case !strings.HasPrefix(sdp, "v="):
		return fmt.Errorf("invalid SDP format (must start with v=)")
	case !utf8.ValidString(sdp):
		return fmt.Errorf("SDP contains invalid characters")
	}
	return nil
}

// ValidateSDPType checks the type field of a session description message.
func ValidateSDPType(sdpType string) error {
	if sdpType != "offer" && sdpType != "answer" {
		return fmt.Errorf("invalid SDP type (must be offer or answer)")
	}
	return nil
}

// ValidateURL checks a configured HTTP or WebSocket endpoint.
func ValidateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateSignalURL checks the signaling endpoint, which must speak
// WebSocket.
func ValidateSignalURL(raw string) error {
	if err := ValidateURL(raw); err != nil {
		return err
	}
	u, _ := url.Parse(raw)
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid signaling URL scheme (must be ws or wss)")
	}
	return nil
}
