package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dejely/manobela/internal/core/domain"
	"github.com/dejely/manobela/internal/core/ports"
)

type SQLiteSessionRepository struct {
	db *sql.DB
}

func NewSQLiteSessionRepository(db *sql.DB) ports.SessionRepository {
	return &SQLiteSessionRepository{db: db}
}

func (r *SQLiteSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, client_id, started_at, ended_at, duration_ms) VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.ClientID, session.StartedAt, session.EndedAt, session.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *SQLiteSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, client_id, started_at, ended_at, duration_ms FROM sessions WHERE id = ?`, id)

	var session domain.Session
	err := row.Scan(&session.ID, &session.ClientID, &session.StartedAt, &session.EndedAt, &session.DurationMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	return &session, nil
}

func (r *SQLiteSessionRepository) Update(ctx context.Context, session *domain.Session) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET client_id = ?, started_at = ?, ended_at = ?, duration_ms = ? WHERE id = ?`,
		session.ClientID, session.StartedAt, session.EndedAt, session.DurationMs, session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrSessionNotFound
	}

	return nil
}

func (r *SQLiteSessionRepository) List(ctx context.Context) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, client_id, started_at, ended_at, duration_ms FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		var session domain.Session
		if err := rows.Scan(&session.ID, &session.ClientID, &session.StartedAt, &session.EndedAt, &session.DurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, &session)
	}

	return sessions, rows.Err()
}

func (r *SQLiteSessionRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}
