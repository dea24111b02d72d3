package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dejely/manobela/internal/core/ports"

	"go.uber.org/zap"
)

// LogSpeaker announces alerts through the structured log. Default backend
// when no TTS endpoint is configured.
type LogSpeaker struct {
	logger *zap.SugaredLogger
}

func NewLogSpeaker(logger *zap.SugaredLogger) *LogSpeaker {
	return &LogSpeaker{logger: logger}
}

func (s *LogSpeaker) Speak(ctx context.Context, message string) error {
	s.logger.Warnw("driver alert", "message", message)
	return nil
}

// HTTPSpeaker posts alert text to an external text-to-speech service.
type HTTPSpeaker struct {
	url    string
	client *http.Client
	logger *zap.SugaredLogger
}

func NewHTTPSpeaker(url string, logger *zap.SugaredLogger) *HTTPSpeaker {
	return &HTTPSpeaker{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (s *HTTPSpeaker) Speak(ctx context.Context, message string) error {
	body, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return fmt.Errorf("failed to marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("tts service returned status %d", resp.StatusCode)
	}

	s.logger.Debugw("spoke alert message", "message", message)
	return nil
}

// NoopSpeaker swallows alerts. Used when alerts are disabled so the rest
// of the pipeline keeps its shape.
type NoopSpeaker struct{}

func (NoopSpeaker) Speak(ctx context.Context, message string) error {
	return nil
}

var _ ports.Speaker = (*LogSpeaker)(nil)
var _ ports.Speaker = (*HTTPSpeaker)(nil)
var _ ports.Speaker = NoopSpeaker{}
