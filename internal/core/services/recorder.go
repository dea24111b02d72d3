package services

import (
	"time"

	"github.com/dejely/manobela/internal/core/domain"
)

// Recorder receives observability events from the services. Satisfied by
// the Prometheus collector; NoopRecorder keeps tests quiet.
type Recorder interface {
	RecordSessionStarted()
	RecordSessionEnded()
	RecordMetricLogged()
	RecordMetricDropped()
	RecordFlush(duration time.Duration, err error)
	RecordControlSend(controlType domain.ControlType)
	RecordAlertFired(alertID string)
	SetConnected(connected bool)
	SetSessionState(state domain.SessionState)
	SetBufferedMetrics(count int)
}

type NoopRecorder struct{}

func (NoopRecorder) RecordSessionStarted()                          {}
func (NoopRecorder) RecordSessionEnded()                            {}
func (NoopRecorder) RecordMetricLogged()                            {}
func (NoopRecorder) RecordMetricDropped()                           {}
func (NoopRecorder) RecordFlush(duration time.Duration, err error)  {}
func (NoopRecorder) RecordControlSend(controlType domain.ControlType) {}
func (NoopRecorder) RecordAlertFired(alertID string)                {}
func (NoopRecorder) SetConnected(connected bool)                    {}
func (NoopRecorder) SetSessionState(state domain.SessionState)      {}
func (NoopRecorder) SetBufferedMetrics(count int)                   {}
