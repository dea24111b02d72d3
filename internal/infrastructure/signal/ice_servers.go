package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dejely/manobela/pkg/retry"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// ICEServerFetcher retrieves the ICE server configuration from the backend
// REST API.
type ICEServerFetcher struct {
	apiBaseURL string
	token      string
	client     *http.Client
	retryCfg   retry.Config
	logger     *zap.SugaredLogger
}

func NewICEServerFetcher(apiBaseURL, token string, logger *zap.SugaredLogger) *ICEServerFetcher {
	return &ICEServerFetcher{
		apiBaseURL: apiBaseURL,
		token:      token,
		client:     &http.Client{Timeout: 10 * time.Second},
		retryCfg:   retry.DefaultConfig(),
		logger:     logger,
	}
}

type iceServerEntry struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type iceServersResponse struct {
	ICEServers []iceServerEntry `json:"iceServers"`
}

// Fetch returns the backend-provided ICE servers, retrying transient
// failures with backoff.
func (f *ICEServerFetcher) Fetch(ctx context.Context) ([]webrtc.ICEServer, error) {
	return retry.RetryWithResult(ctx, f.retryCfg, func() ([]webrtc.ICEServer, error) {
		return f.fetchOnce(ctx)
	})
}

func (f *ICEServerFetcher) fetchOnce(ctx context.Context) ([]webrtc.ICEServer, error) {
	url := f.apiBaseURL + "/ice-servers"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build ice-servers request: %w", err)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ice servers: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ice-servers request failed: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed iceServersResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode ice-servers response: %w", err)
	}

	servers := make([]webrtc.ICEServer, 0, len(parsed.ICEServers))
	for _, entry := range parsed.ICEServers {
		server := webrtc.ICEServer{URLs: entry.URLs}
		if entry.Username != "" && entry.Credential != "" {
			server.Username = entry.Username
			server.Credential = entry.Credential
		}
		servers = append(servers, server)
	}

	f.logger.Infow("fetched ice servers", "count", len(servers))
	return servers, nil
}
