package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dejely/manobela/internal/core/domain"
	"github.com/dejely/manobela/internal/core/ports"

	"go.uber.org/zap"
)

// EvaluateAlertConditions returns the configs whose conditions hold for the
// given metrics, in config order. Pure; cooldown and priority selection are
// the manager's job.
func EvaluateAlertConditions(metrics domain.MetricsOutput, configs []domain.AlertConfig) []domain.AlertConfig {
	var fired []domain.AlertConfig
	for _, cfg := range configs {
		if cfg.Condition != nil && cfg.Condition(metrics) {
			fired = append(fired, cfg)
		}
	}
	return fired
}

// AlertManager evaluates the rule set against each inference snapshot and
// speaks the highest-priority alert that is off cooldown.
type AlertManager struct {
	configs  []domain.AlertConfig
	speaker  ports.Speaker
	recorder Recorder
	logger   *zap.SugaredLogger
	now      func() time.Time

	mu        sync.Mutex
	enabled   bool
	lastFired map[string]time.Time
}

func NewAlertManager(
	configs []domain.AlertConfig,
	speaker ports.Speaker,
	recorder Recorder,
	logger *zap.SugaredLogger,
) *AlertManager {
	if recorder == nil {
		recorder = NoopRecorder{}
	}
	return &AlertManager{
		configs:   configs,
		speaker:   speaker,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
		lastFired: make(map[string]time.Time),
	}
}

// SetEnabled gates evaluation. The controller enables alerts only while a
// session is active.
func (a *AlertManager) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	a.mu.Unlock()
}

// Evaluate checks the metrics and speaks at most one alert. Speaking runs
// in its own goroutine so a slow TTS backend never blocks the inference
// path.
func (a *AlertManager) Evaluate(ctx context.Context, metrics domain.MetricsOutput) {
	a.mu.Lock()
	if !a.enabled {
		a.mu.Unlock()
		return
	}

	now := a.now()
	fired := EvaluateAlertConditions(metrics, a.configs)

	var ready []domain.AlertConfig
	for _, cfg := range fired {
		if last, ok := a.lastFired[cfg.ID]; ok && now.Sub(last) < cfg.Cooldown {
			continue
		}
		ready = append(ready, cfg)
	}

	if len(ready) == 0 {
		a.mu.Unlock()
		return
	}

	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Priority > ready[j].Priority
	})
	chosen := ready[0]
	a.lastFired[chosen.ID] = now
	a.mu.Unlock()

	a.recorder.RecordAlertFired(chosen.ID)
	a.logger.Infow("alert fired",
		"alert_id", chosen.ID,
		"priority", chosen.Priority,
	)

	go func() {
		speakCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := a.speaker.Speak(speakCtx, chosen.Message); err != nil {
			a.logger.Warnw("failed to speak alert", "alert_id", chosen.ID, "error", err)
		}
	}()
}
