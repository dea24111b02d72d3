package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dejely/manobela/internal/core/domain"
	"github.com/dejely/manobela/internal/core/ports"
)

type SQLiteMetricRepository struct {
	db *sql.DB
}

func NewSQLiteMetricRepository(db *sql.DB) ports.MetricRepository {
	return &SQLiteMetricRepository{db: db}
}

const insertMetricStmt = `INSERT INTO metrics (
	id, session_id, timestamp,
	face_missing,
	ear, eye_closed, eye_closed_sustained, perclos, perclos_alert,
	mar, yawning, yawn_sustained, yawn_count,
	yaw, pitch, roll, yaw_alert, pitch_alert, roll_alert, head_pose_sustained,
	gaze_alert, gaze_sustained,
	phone_usage, phone_usage_sustained
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertBatch writes all rows in one transaction; a failed row rolls the
// whole batch back.
func (r *SQLiteMetricRepository) InsertBatch(ctx context.Context, rows []*domain.Metric) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertMetricStmt)
	if err != nil {
		return fmt.Errorf("failed to prepare metric insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.ID, row.SessionID, row.Timestamp,
			row.FaceMissing,
			row.EAR, row.EyeClosed, row.EyeClosedSustained, row.Perclos, row.PerclosAlert,
			row.MAR, row.Yawning, row.YawnSustained, row.YawnCount,
			row.Yaw, row.Pitch, row.Roll, row.YawAlert, row.PitchAlert, row.RollAlert, row.HeadPoseSustained,
			row.GazeAlert, row.GazeSustained,
			row.PhoneUsage, row.PhoneUsageSustained,
		); err != nil {
			return fmt.Errorf("failed to insert metric %s: %w", row.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metric batch: %w", err)
	}

	return nil
}

func (r *SQLiteMetricRepository) ListBySession(ctx context.Context, sessionID string) ([]*domain.Metric, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT
		id, session_id, timestamp,
		face_missing,
		ear, eye_closed, eye_closed_sustained, perclos, perclos_alert,
		mar, yawning, yawn_sustained, yawn_count,
		yaw, pitch, roll, yaw_alert, pitch_alert, roll_alert, head_pose_sustained,
		gaze_alert, gaze_sustained,
		phone_usage, phone_usage_sustained
	FROM metrics WHERE session_id = ? ORDER BY timestamp ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*domain.Metric
	for rows.Next() {
		var m domain.Metric
		if err := rows.Scan(
			&m.ID, &m.SessionID, &m.Timestamp,
			&m.FaceMissing,
			&m.EAR, &m.EyeClosed, &m.EyeClosedSustained, &m.Perclos, &m.PerclosAlert,
			&m.MAR, &m.Yawning, &m.YawnSustained, &m.YawnCount,
			&m.Yaw, &m.Pitch, &m.Roll, &m.YawAlert, &m.PitchAlert, &m.RollAlert, &m.HeadPoseSustained,
			&m.GazeAlert, &m.GazeSustained,
			&m.PhoneUsage, &m.PhoneUsageSustained,
		); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics = append(metrics, &m)
	}

	return metrics, rows.Err()
}

func (r *SQLiteMetricRepository) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM metrics WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count metrics: %w", err)
	}
	return count, nil
}

// DeleteAll removes metric rows before their sessions so the reference
// constraint never trips.
func (r *SQLiteMetricRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM metrics`); err != nil {
		return fmt.Errorf("failed to delete metrics: %w", err)
	}
	return nil
}
