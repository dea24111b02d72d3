package services

import (
	"context"
	"sync"
	"time"

	"github.com/dejely/manobela/internal/core/domain"
	"github.com/dejely/manobela/internal/core/ports"
	"github.com/dejely/manobela/pkg/batch"
	"github.com/dejely/manobela/pkg/errors"
	"github.com/dejely/manobela/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SessionLoggerConfig holds throttle and buffering settings.
type SessionLoggerConfig struct {
	// LogInterval is the minimum spacing between accepted metric writes.
	LogInterval time.Duration
	// FlushInterval flushes a non-empty buffer after this much idle time.
	FlushInterval time.Duration
	// MaxBufferSize flushes the buffer as soon as it holds this many rows.
	MaxBufferSize int
}

// SessionLogger persists throttled inference metrics under a session
// record. Inference arrives several times per second; the limiter keeps
// one row per LogInterval and the batcher turns rows into transactional
// batch inserts.
type SessionLogger struct {
	sessions ports.SessionRepository
	metrics  ports.MetricRepository

	limiter  *rate.Limiter
	batcher  *batch.Batcher[*domain.Metric]
	recorder Recorder
	logger   *zap.SugaredLogger
	now      func() time.Time

	mu        sync.Mutex
	sessionID string
	readOnly  bool
}

func NewSessionLogger(
	cfg SessionLoggerConfig,
	sessions ports.SessionRepository,
	metrics ports.MetricRepository,
	recorder Recorder,
	logger *zap.SugaredLogger,
) *SessionLogger {
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = 3 * time.Second
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 6 * time.Second
	}
	if cfg.MaxBufferSize <= 0 {
		cfg.MaxBufferSize = 20
	}
	if recorder == nil {
		recorder = NoopRecorder{}
	}

	l := &SessionLogger{
		sessions: sessions,
		metrics:  metrics,
		limiter:  rate.NewLimiter(rate.Every(cfg.LogInterval), 1),
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}

	l.batcher = batch.New(cfg.MaxBufferSize, cfg.FlushInterval, l.flushBatch)

	return l
}

func (l *SessionLogger) flushBatch(ctx context.Context, rows []*domain.Metric) error {
	start := l.now()
	err := l.metrics.InsertBatch(ctx, rows)
	l.recorder.RecordFlush(time.Since(start), err)

	if err != nil {
		l.logger.Errorw("metric batch flush failed, keeping rows",
			"rows", len(rows),
			"error", err,
		)
		return err
	}

	l.logger.Debugw("flushed metric batch", "rows", len(rows))
	l.recorder.SetBufferedMetrics(l.batcher.Len())
	return nil
}

// StartSession opens a new logging session for the given backend client id.
func (l *SessionLogger) StartSession(ctx context.Context, clientID string) (string, error) {
	l.mu.Lock()
	if l.readOnly {
		l.mu.Unlock()
		return "", domain.ErrReadOnly
	}
	if l.sessionID != "" {
		l.logger.Warnw("starting session while previous still open", "session_id", l.sessionID)
	}
	id := utils.GenerateRecordID()
	l.sessionID = id
	l.mu.Unlock()

	session := &domain.Session{
		ID:        id,
		ClientID:  clientID,
		StartedAt: l.now().UnixMilli(),
	}
	if err := l.sessions.Create(ctx, session); err != nil {
		l.mu.Lock()
		l.sessionID = ""
		l.mu.Unlock()
		return "", errors.NewStorageError(err, "failed to create session record")
	}

	l.recorder.RecordSessionStarted()
	l.logger.Infow("logging session started", "session_id", id, "client_id", clientID)
	return id, nil
}

// LogMetrics buffers one metric row, at most one per LogInterval. Messages
// beyond the throttle window are dropped, not queued.
func (l *SessionLogger) LogMetrics(data *domain.InferenceData) {
	if data == nil || data.Metrics == nil {
		return
	}

	l.mu.Lock()
	sessionID := l.sessionID
	readOnly := l.readOnly
	l.mu.Unlock()

	if readOnly || sessionID == "" {
		return
	}

	if !l.limiter.Allow() {
		l.recorder.RecordMetricDropped()
		return
	}

	row := domain.FlattenMetrics(utils.GenerateRecordID(), sessionID, l.now(), *data.Metrics)
	l.batcher.Add(&row)
	l.recorder.RecordMetricLogged()
	l.recorder.SetBufferedMetrics(l.batcher.Len())
}

// EndSession flushes the buffer synchronously and finalizes the session
// record. endedAt and durationMs are set exactly once.
func (l *SessionLogger) EndSession(ctx context.Context, durationMs int64) error {
	l.mu.Lock()
	sessionID := l.sessionID
	readOnly := l.readOnly
	l.sessionID = ""
	l.mu.Unlock()

	if sessionID == "" {
		l.logger.Error("end session called with no open session")
		return domain.ErrSessionNotFound
	}

	if readOnly {
		l.batcher.Drop()
		return nil
	}

	if err := l.batcher.Flush(ctx); err != nil {
		l.logger.Errorw("final metric flush failed", "session_id", sessionID, "error", err)
	}
	l.recorder.SetBufferedMetrics(l.batcher.Len())

	session, err := l.sessions.GetByID(ctx, sessionID)
	if err != nil {
		// The open session id must always resolve to a stored record.
		l.logger.Errorw("ending unknown session", "session_id", sessionID, "error", err)
		return err
	}

	if session.EndedAt != nil {
		l.logger.Warnw("session already ended", "session_id", sessionID)
		return nil
	}

	endedAt := l.now().UnixMilli()
	if endedAt < session.StartedAt {
		endedAt = session.StartedAt
	}
	if durationMs < 0 {
		durationMs = 0
	}
	session.EndedAt = &endedAt
	session.DurationMs = &durationMs

	if err := l.sessions.Update(ctx, session); err != nil {
		return errors.NewStorageError(err, "failed to finalize session record")
	}

	l.recorder.RecordSessionEnded()
	l.logger.Infow("logging session ended",
		"session_id", sessionID,
		"duration_ms", durationMs,
	)
	return nil
}

// Reset discards buffered rows and forgets the open session. Persisted
// rows are untouched.
func (l *SessionLogger) Reset() {
	l.batcher.Drop()
	l.recorder.SetBufferedMetrics(0)

	l.mu.Lock()
	l.sessionID = ""
	l.mu.Unlock()

	l.logger.Info("session logger reset")
}

// SetReadOnly turns all writes into no-ops while set.
func (l *SessionLogger) SetReadOnly(value bool) {
	l.mu.Lock()
	l.readOnly = value
	l.mu.Unlock()
}

func (l *SessionLogger) CurrentSessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID
}

// Stop flushes remaining rows and stops the flush loop.
func (l *SessionLogger) Stop() {
	l.batcher.Stop()
}

var _ ports.MetricsLogger = (*SessionLogger)(nil)
