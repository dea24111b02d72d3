package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dejely/manobela/internal/core/domain"
	"github.com/dejely/manobela/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisMetricRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisMetricRepository(client *redis.Client) ports.MetricRepository {
	return &RedisMetricRepository{
		client: client,
		prefix: "manobela:metrics:",
	}
}

func (r *RedisMetricRepository) metricsKey(sessionID string) string {
	return r.prefix + sessionID
}

func (r *RedisMetricRepository) indexKey() string {
	return "manobela:metric_sessions"
}

// InsertBatch pushes all rows in one transactional pipeline so the batch
// lands atomically.
func (r *RedisMetricRepository) InsertBatch(ctx context.Context, rows []*domain.Metric) error {
	if len(rows) == 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal metric: %w", err)
		}
		pipe.RPush(ctx, r.metricsKey(row.SessionID), data)
		pipe.SAdd(ctx, r.indexKey(), row.SessionID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert metric batch into Redis: %w", err)
	}

	return nil
}

func (r *RedisMetricRepository) ListBySession(ctx context.Context, sessionID string) ([]*domain.Metric, error) {
	entries, err := r.client.LRange(ctx, r.metricsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics from Redis: %w", err)
	}

	metrics := make([]*domain.Metric, 0, len(entries))
	for _, entry := range entries {
		var metric domain.Metric
		if err := json.Unmarshal([]byte(entry), &metric); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metric: %w", err)
		}
		metrics = append(metrics, &metric)
	}

	return metrics, nil
}

func (r *RedisMetricRepository) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	count, err := r.client.LLen(ctx, r.metricsKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count metrics in Redis: %w", err)
	}
	return count, nil
}

func (r *RedisMetricRepository) DeleteAll(ctx context.Context) error {
	sessionIDs, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to list metric sessions for deletion: %w", err)
	}

	pipe := r.client.TxPipeline()
	for _, sessionID := range sessionIDs {
		pipe.Del(ctx, r.metricsKey(sessionID))
	}
	pipe.Del(ctx, r.indexKey())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete metrics from Redis: %w", err)
	}

	return nil
}
