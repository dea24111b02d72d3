package monitoring

import (
	"time"

	"github.com/dejely/manobela/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Counters
	sessionsStartedTotal prometheus.Counter
	sessionsEndedTotal   prometheus.Counter
	metricsLoggedTotal   prometheus.Counter
	metricsDroppedTotal  prometheus.Counter
	flushesTotal         prometheus.Counter
	flushErrorsTotal     prometheus.Counter
	controlSendsTotal    *prometheus.CounterVec
	alertsFiredTotal     *prometheus.CounterVec

	// Gauges
	connectionState prometheus.Gauge
	sessionState    *prometheus.GaugeVec
	bufferedMetrics prometheus.Gauge

	// Histograms
	connectionSetupDuration prometheus.Histogram
	flushDuration           prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		sessionsStartedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "manobela_sessions_started_total",
			Help: "Total number of monitoring sessions started",
		}),

		sessionsEndedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "manobela_sessions_ended_total",
			Help: "Total number of monitoring sessions ended",
		}),

		metricsLoggedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "manobela_metrics_logged_total",
			Help: "Total number of metric rows accepted by the logger",
		}),

		metricsDroppedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "manobela_metrics_dropped_total",
			Help: "Total number of metric messages dropped by throttling",
		}),

		flushesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "manobela_metric_flushes_total",
			Help: "Total number of metric buffer flushes",
		}),

		flushErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "manobela_metric_flush_errors_total",
			Help: "Total number of failed metric buffer flushes",
		}),

		controlSendsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "manobela_control_sends_total",
			Help: "Total number of control messages sent over the data channel",
		}, []string{"type"}),

		alertsFiredTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "manobela_alerts_fired_total",
			Help: "Total number of driver alerts fired",
		}, []string{"alert_id"}),

		connectionState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "manobela_peer_connection_up",
			Help: "Whether the peer connection is currently connected (0 or 1)",
		}),

		sessionState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "manobela_session_state",
			Help: "Current monitoring state (1 for the active state, 0 otherwise)",
		}, []string{"state"}),

		bufferedMetrics: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "manobela_buffered_metrics",
			Help: "Number of metric rows waiting in the write buffer",
		}),

		connectionSetupDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "manobela_connection_setup_duration_seconds",
			Help:    "Time from offer creation to a connected peer connection",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		flushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "manobela_metric_flush_duration_seconds",
			Help:    "Duration of metric buffer flushes to storage",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

func (p *PrometheusCollector) RecordSessionStarted() {
	p.sessionsStartedTotal.Inc()
}

func (p *PrometheusCollector) RecordSessionEnded() {
	p.sessionsEndedTotal.Inc()
}

func (p *PrometheusCollector) RecordMetricLogged() {
	p.metricsLoggedTotal.Inc()
}

func (p *PrometheusCollector) RecordMetricDropped() {
	p.metricsDroppedTotal.Inc()
}

func (p *PrometheusCollector) RecordFlush(duration time.Duration, err error) {
	p.flushesTotal.Inc()
	p.flushDuration.Observe(duration.Seconds())
	if err != nil {
		p.flushErrorsTotal.Inc()
	}
}

func (p *PrometheusCollector) RecordControlSend(controlType domain.ControlType) {
	p.controlSendsTotal.WithLabelValues(string(controlType)).Inc()
}

func (p *PrometheusCollector) RecordAlertFired(alertID string) {
	p.alertsFiredTotal.WithLabelValues(alertID).Inc()
}

func (p *PrometheusCollector) RecordConnectionSetup(duration time.Duration) {
	p.connectionSetupDuration.Observe(duration.Seconds())
}

func (p *PrometheusCollector) SetConnected(connected bool) {
	if connected {
		p.connectionState.Set(1)
	} else {
		p.connectionState.Set(0)
	}
}

// SetSessionState flips the state gauge so exactly one label reads 1.
func (p *PrometheusCollector) SetSessionState(state domain.SessionState) {
	for _, s := range []domain.SessionState{
		domain.StateIdle,
		domain.StateStarting,
		domain.StateActive,
		domain.StatePaused,
		domain.StateStopping,
	} {
		value := 0.0
		if s == state {
			value = 1.0
		}
		p.sessionState.WithLabelValues(string(s)).Set(value)
	}
}

func (p *PrometheusCollector) SetBufferedMetrics(count int) {
	p.bufferedMetrics.Set(float64(count))
}
