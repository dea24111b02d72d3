package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dejely/manobela/internal/core/domain"
	"github.com/dejely/manobela/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisSessionRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisSessionRepository(client *redis.Client) ports.SessionRepository {
	return &RedisSessionRepository{
		client: client,
		prefix: "manobela:session:",
	}
}

func (r *RedisSessionRepository) sessionKey(id string) string {
	return r.prefix + id
}

func (r *RedisSessionRepository) indexKey() string {
	return "manobela:sessions"
}

func (r *RedisSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	key := r.sessionKey(session.ID)
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}

	if err := r.client.SAdd(ctx, r.indexKey(), session.ID).Err(); err != nil {
		return fmt.Errorf("failed to add session to index: %w", err)
	}

	return nil
}

func (r *RedisSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	key := r.sessionKey(id)
	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (r *RedisSessionRepository) Update(ctx context.Context, session *domain.Session) error {
	// Check if session exists
	if _, err := r.GetByID(ctx, session.ID); err != nil {
		return err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	key := r.sessionKey(session.ID)
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update session in Redis: %w", err)
	}

	return nil
}

func (r *RedisSessionRepository) List(ctx context.Context) ([]*domain.Session, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions from Redis: %w", err)
	}

	var sessions []*domain.Session
	for _, id := range ids {
		session, err := r.GetByID(ctx, id)
		if err != nil {
			// Skip sessions that no longer exist
			continue
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}

func (r *RedisSessionRepository) DeleteAll(ctx context.Context) error {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to list sessions for deletion: %w", err)
	}

	pipe := r.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, r.sessionKey(id))
	}
	pipe.Del(ctx, r.indexKey())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete sessions from Redis: %w", err)
	}

	return nil
}
