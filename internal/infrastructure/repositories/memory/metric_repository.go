package memory

import (
	"context"
	"sync"

	"github.com/dejely/manobela/internal/core/domain"
	"github.com/dejely/manobela/internal/core/ports"
)

type MemoryMetricRepository struct {
	metrics map[string][]*domain.Metric
	mu      sync.RWMutex
}

func NewMemoryMetricRepository() ports.MetricRepository {
	return &MemoryMetricRepository{
		metrics: make(map[string][]*domain.Metric),
	}
}

// InsertBatch appends all rows under the lock so a batch is never split.
func (r *MemoryMetricRepository) InsertBatch(ctx context.Context, rows []*domain.Metric) error {
	if len(rows) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range rows {
		copied := *row
		r.metrics[row.SessionID] = append(r.metrics[row.SessionID], &copied)
	}

	return nil
}

func (r *MemoryMetricRepository) ListBySession(ctx context.Context, sessionID string) ([]*domain.Metric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.metrics[sessionID]
	result := make([]*domain.Metric, 0, len(rows))
	for _, row := range rows {
		copied := *row
		result = append(result, &copied)
	}

	return result, nil
}

func (r *MemoryMetricRepository) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return int64(len(r.metrics[sessionID])), nil
}

func (r *MemoryMetricRepository) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.metrics = make(map[string][]*domain.Metric)
	return nil
}
