package ports

import (
	"context"

	"github.com/dejely/manobela/internal/core/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Update(ctx context.Context, session *domain.Session) error
	List(ctx context.Context) ([]*domain.Session, error)
	DeleteAll(ctx context.Context) error
}

type MetricRepository interface {
	// InsertBatch persists the rows in one transaction; either all rows land
	// or none do.
	InsertBatch(ctx context.Context, rows []*domain.Metric) error
	ListBySession(ctx context.Context, sessionID string) ([]*domain.Metric, error)
	CountBySession(ctx context.Context, sessionID string) (int64, error)
	DeleteAll(ctx context.Context) error
}
