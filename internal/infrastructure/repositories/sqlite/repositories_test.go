package sqlite

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dejely/manobela/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewStore(":memory:", zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func metricRow(id, sessionID string, ts int64) *domain.Metric {
	return &domain.Metric{
		ID:        id,
		SessionID: sessionID,
		Timestamp: ts,
		EAR:       0.25,
		Perclos:   0.1,
		MAR:       0.4,
		Yaw:       1.5,
		Pitch:     -2.0,
		Roll:      0.3,
	}
}

func TestSQLiteSessionRepository_CreateGetUpdate(t *testing.T) {
	db := openTestStore(t)
	repo := NewSQLiteSessionRepository(db)
	ctx := context.Background()

	session := &domain.Session{ID: "s1", ClientID: "c1", StartedAt: 1000}
	require.NoError(t, repo.Create(ctx, session))

	stored, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "c1", stored.ClientID)
	assert.Nil(t, stored.EndedAt)

	endedAt := int64(6000)
	duration := int64(5000)
	stored.EndedAt = &endedAt
	stored.DurationMs = &duration
	require.NoError(t, repo.Update(ctx, stored))

	after, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, after.EndedAt)
	assert.Equal(t, endedAt, *after.EndedAt)
	assert.Equal(t, duration, *after.DurationMs)
}

func TestSQLiteSessionRepository_GetMissing(t *testing.T) {
	db := openTestStore(t)
	repo := NewSQLiteSessionRepository(db)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSQLiteSessionRepository_UpdateMissing(t *testing.T) {
	db := openTestStore(t)
	repo := NewSQLiteSessionRepository(db)

	err := repo.Update(context.Background(), &domain.Session{ID: "missing"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSQLiteSessionRepository_ListNewestFirst(t *testing.T) {
	db := openTestStore(t)
	repo := NewSQLiteSessionRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Session{ID: "old", ClientID: "c", StartedAt: 1000}))
	require.NoError(t, repo.Create(ctx, &domain.Session{ID: "new", ClientID: "c", StartedAt: 2000}))

	sessions, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "new", sessions[0].ID)
	assert.Equal(t, "old", sessions[1].ID)
}

func TestSQLiteMetricRepository_InsertBatchAndList(t *testing.T) {
	db := openTestStore(t)
	sessions := NewSQLiteSessionRepository(db)
	metrics := NewSQLiteMetricRepository(db)
	ctx := context.Background()

	require.NoError(t, sessions.Create(ctx, &domain.Session{ID: "s1", ClientID: "c1", StartedAt: 1000}))

	require.NoError(t, metrics.InsertBatch(ctx, []*domain.Metric{
		metricRow("m2", "s1", 2000),
		metricRow("m1", "s1", 1000),
	}))

	listed, err := metrics.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "m1", listed[0].ID)
	assert.Equal(t, "m2", listed[1].ID)
	assert.Equal(t, 0.25, listed[0].EAR)

	count, err := metrics.CountBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteMetricRepository_BatchIsAtomic(t *testing.T) {
	db := openTestStore(t)
	sessions := NewSQLiteSessionRepository(db)
	metrics := NewSQLiteMetricRepository(db)
	ctx := context.Background()

	require.NoError(t, sessions.Create(ctx, &domain.Session{ID: "s1", ClientID: "c1", StartedAt: 1000}))

	// The duplicate primary key fails the second row; the first row must
	// roll back with it.
	err := metrics.InsertBatch(ctx, []*domain.Metric{
		metricRow("m1", "s1", 1000),
		metricRow("m1", "s1", 2000),
	})
	require.Error(t, err)

	count, err := metrics.CountBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSQLiteMetricRepository_DeleteAll(t *testing.T) {
	db := openTestStore(t)
	sessions := NewSQLiteSessionRepository(db)
	metrics := NewSQLiteMetricRepository(db)
	ctx := context.Background()

	require.NoError(t, sessions.Create(ctx, &domain.Session{ID: "s1", ClientID: "c1", StartedAt: 1000}))
	require.NoError(t, metrics.InsertBatch(ctx, []*domain.Metric{metricRow("m1", "s1", 1000)}))

	require.NoError(t, metrics.DeleteAll(ctx))
	require.NoError(t, sessions.DeleteAll(ctx))

	count, err := metrics.CountBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, count)
}
