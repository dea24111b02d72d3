package reliability

import (
	"context"

	"github.com/dejely/manobela/internal/core/ports"
	"github.com/dejely/manobela/pkg/circuitbreaker"

	"go.uber.org/zap"
)

// SpeakerWrapper wraps a Speaker with a circuit breaker so a broken
// text-to-speech backend cannot stall alert delivery. Utterances are never
// retried; a missed phrase is stale by the time a retry would land.
type SpeakerWrapper struct {
	speaker ports.Speaker
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

// NewSpeakerWrapper creates a new wrapper around the given speaker
func NewSpeakerWrapper(
	speaker ports.Speaker,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *SpeakerWrapper {
	wrapper := &SpeakerWrapper{
		speaker: speaker,
		breaker: circuitbreaker.New(cbConfig),
		logger:  logger,
	}

	wrapper.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("speech circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return wrapper
}

// Speak delivers the message through the circuit breaker
func (w *SpeakerWrapper) Speak(ctx context.Context, message string) error {
	return w.breaker.Execute(ctx, func() error {
		return w.speaker.Speak(ctx, message)
	})
}

// GetCircuitBreakerStats returns circuit breaker statistics
func (w *SpeakerWrapper) GetCircuitBreakerStats() circuitbreaker.Stats {
	return w.breaker.GetStats()
}

var _ ports.Speaker = (*SpeakerWrapper)(nil)
