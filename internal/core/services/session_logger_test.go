package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dejely/manobela/internal/core/domain"
	"github.com/dejely/manobela/internal/core/ports"
	"github.com/dejely/manobela/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingRecorder struct {
	NoopRecorder

	mu       sync.Mutex
	logged   int
	dropped  int
	started  int
	ended    int
	flushes  int
	flushErr int
}

func (r *countingRecorder) RecordMetricLogged() {
	r.mu.Lock()
	r.logged++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordMetricDropped() {
	r.mu.Lock()
	r.dropped++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordSessionStarted() {
	r.mu.Lock()
	r.started++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordSessionEnded() {
	r.mu.Lock()
	r.ended++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordFlush(duration time.Duration, err error) {
	r.mu.Lock()
	r.flushes++
	if err != nil {
		r.flushErr++
	}
	r.mu.Unlock()
}

func (r *countingRecorder) snapshot() (logged, dropped, started, ended int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logged, r.dropped, r.started, r.ended
}

type failingMetricRepo struct {
	ports.MetricRepository
}

func (failingMetricRepo) InsertBatch(ctx context.Context, rows []*domain.Metric) error {
	return errors.New("storage unavailable")
}

func inference() *domain.InferenceData {
	return &domain.InferenceData{
		Timestamp: time.Now().Format(time.RFC3339),
		Metrics: &domain.MetricsOutput{
			EyeClosure: domain.EyeClosureMetrics{EAR: 0.21, Perclos: 0.1},
			Yawn:       domain.YawnMetrics{MAR: 0.4},
		},
	}
}

func newTestLogger(t *testing.T, metrics ports.MetricRepository, recorder Recorder) (*SessionLogger, ports.SessionRepository) {
	t.Helper()
	sessions := memory.NewMemorySessionRepository()
	if metrics == nil {
		metrics = memory.NewMemoryMetricRepository()
	}

	// A wide throttle window keeps timing out of the tests; only the first
	// write in each test is accepted.
	l := NewSessionLogger(SessionLoggerConfig{
		LogInterval:   time.Minute,
		FlushInterval: time.Minute,
		MaxBufferSize: 100,
	}, sessions, metrics, recorder, zap.NewNop().Sugar())
	t.Cleanup(l.Stop)

	return l, sessions
}

func TestSessionLogger_StartSession(t *testing.T) {
	l, sessions := newTestLogger(t, nil, nil)
	ctx := context.Background()

	id, err := l.StartSession(ctx, "client-1")
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, id, l.CurrentSessionID())

	stored, err := sessions.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "client-1", stored.ClientID)
	assert.NotZero(t, stored.StartedAt)
	assert.Nil(t, stored.EndedAt)
	assert.Nil(t, stored.DurationMs)
}

func TestSessionLogger_StartSession_ReadOnly(t *testing.T) {
	l, _ := newTestLogger(t, nil, nil)

	l.SetReadOnly(true)
	_, err := l.StartSession(context.Background(), "client-1")
	assert.ErrorIs(t, err, domain.ErrReadOnly)
	assert.Empty(t, l.CurrentSessionID())
}

func TestSessionLogger_LogMetrics_Throttles(t *testing.T) {
	recorder := &countingRecorder{}
	metrics := memory.NewMemoryMetricRepository()
	l, _ := newTestLogger(t, metrics, recorder)
	ctx := context.Background()

	id, err := l.StartSession(ctx, "client-1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		l.LogMetrics(inference())
	}

	logged, dropped, _, _ := recorder.snapshot()
	assert.Equal(t, 1, logged)
	assert.Equal(t, 4, dropped)

	require.NoError(t, l.EndSession(ctx, 1000))

	count, err := metrics.CountBySession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSessionLogger_LogMetrics_IgnoredWithoutSession(t *testing.T) {
	recorder := &countingRecorder{}
	l, _ := newTestLogger(t, nil, recorder)

	l.LogMetrics(inference())
	l.LogMetrics(nil)
	l.LogMetrics(&domain.InferenceData{})

	logged, dropped, _, _ := recorder.snapshot()
	assert.Zero(t, logged)
	assert.Zero(t, dropped)
}

func TestSessionLogger_EndSession_Finalizes(t *testing.T) {
	recorder := &countingRecorder{}
	l, sessions := newTestLogger(t, nil, recorder)
	ctx := context.Background()

	id, err := l.StartSession(ctx, "client-1")
	require.NoError(t, err)
	l.LogMetrics(inference())

	require.NoError(t, l.EndSession(ctx, 5000))
	assert.Empty(t, l.CurrentSessionID())

	stored, err := sessions.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored.EndedAt)
	require.NotNil(t, stored.DurationMs)
	assert.Equal(t, int64(5000), *stored.DurationMs)
	assert.GreaterOrEqual(t, *stored.EndedAt, stored.StartedAt)

	_, _, started, ended := recorder.snapshot()
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, ended)
}

func TestSessionLogger_EndSession_NoOpenSession(t *testing.T) {
	l, _ := newTestLogger(t, nil, nil)

	err := l.EndSession(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionLogger_EndSession_Twice(t *testing.T) {
	l, _ := newTestLogger(t, nil, nil)
	ctx := context.Background()

	_, err := l.StartSession(ctx, "client-1")
	require.NoError(t, err)

	require.NoError(t, l.EndSession(ctx, 1000))
	assert.ErrorIs(t, l.EndSession(ctx, 2000), domain.ErrSessionNotFound)
}

func TestSessionLogger_EndSession_AlreadyEndedRecord(t *testing.T) {
	l, sessions := newTestLogger(t, nil, nil)
	ctx := context.Background()

	id, err := l.StartSession(ctx, "client-1")
	require.NoError(t, err)

	stored, err := sessions.GetByID(ctx, id)
	require.NoError(t, err)
	endedAt := stored.StartedAt + 100
	duration := int64(100)
	stored.EndedAt = &endedAt
	stored.DurationMs = &duration
	require.NoError(t, sessions.Update(ctx, stored))

	// The record was finalized out of band; the timestamps must survive.
	require.NoError(t, l.EndSession(ctx, 9999))

	after, err := sessions.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, endedAt, *after.EndedAt)
	assert.Equal(t, duration, *after.DurationMs)
}

func TestSessionLogger_EndSession_ClampsTimestamps(t *testing.T) {
	l, sessions := newTestLogger(t, nil, nil)
	ctx := context.Background()

	base := time.Now()
	l.now = func() time.Time { return base }

	id, err := l.StartSession(ctx, "client-1")
	require.NoError(t, err)

	// Clock skew: the end reads earlier than the start.
	l.now = func() time.Time { return base.Add(-time.Hour) }
	require.NoError(t, l.EndSession(ctx, -42))

	stored, err := sessions.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, stored.StartedAt, *stored.EndedAt)
	assert.Equal(t, int64(0), *stored.DurationMs)
}

func TestSessionLogger_EndSession_ReadOnlyDropsRows(t *testing.T) {
	metrics := memory.NewMemoryMetricRepository()
	l, sessions := newTestLogger(t, metrics, nil)
	ctx := context.Background()

	id, err := l.StartSession(ctx, "client-1")
	require.NoError(t, err)
	l.LogMetrics(inference())

	l.SetReadOnly(true)
	require.NoError(t, l.EndSession(ctx, 1000))

	count, err := metrics.CountBySession(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, count)

	stored, err := sessions.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, stored.EndedAt)
}

func TestSessionLogger_EndSession_FlushFailureKeepsRows(t *testing.T) {
	l, sessions := newTestLogger(t, failingMetricRepo{}, nil)
	ctx := context.Background()

	id, err := l.StartSession(ctx, "client-1")
	require.NoError(t, err)
	l.LogMetrics(inference())

	// The failed flush is logged and the session is still finalized; the
	// rows stay buffered for a later retry.
	require.NoError(t, l.EndSession(ctx, 1000))
	assert.Equal(t, 1, l.batcher.Len())

	stored, err := sessions.GetByID(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, stored.EndedAt)
}

func TestSessionLogger_Reset(t *testing.T) {
	l, _ := newTestLogger(t, nil, nil)
	ctx := context.Background()

	_, err := l.StartSession(ctx, "client-1")
	require.NoError(t, err)
	l.LogMetrics(inference())

	l.Reset()

	assert.Empty(t, l.CurrentSessionID())
	assert.Zero(t, l.batcher.Len())
	assert.ErrorIs(t, l.EndSession(ctx, 0), domain.ErrSessionNotFound)
}
