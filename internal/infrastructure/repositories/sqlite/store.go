package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	client_id   TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	ended_at    INTEGER,
	duration_ms INTEGER
);

CREATE TABLE IF NOT EXISTS metrics (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	timestamp  INTEGER NOT NULL,

	face_missing INTEGER NOT NULL,

	ear                  REAL NOT NULL,
	eye_closed           INTEGER NOT NULL,
	eye_closed_sustained REAL NOT NULL,
	perclos              REAL NOT NULL,
	perclos_alert        INTEGER NOT NULL,

	mar            REAL NOT NULL,
	yawning        INTEGER NOT NULL,
	yawn_sustained REAL NOT NULL,
	yawn_count     INTEGER NOT NULL,

	yaw                 REAL NOT NULL,
	pitch               REAL NOT NULL,
	roll                REAL NOT NULL,
	yaw_alert           INTEGER NOT NULL,
	pitch_alert         INTEGER NOT NULL,
	roll_alert          INTEGER NOT NULL,
	head_pose_sustained REAL NOT NULL,

	gaze_alert     INTEGER NOT NULL,
	gaze_sustained REAL NOT NULL,

	phone_usage           INTEGER NOT NULL,
	phone_usage_sustained REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_metrics_session ON metrics(session_id);
`

// NewStore opens the on-device SQLite database and applies the schema.
func NewStore(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	if logger != nil {
		logger.Infow("opened sqlite store", "path", path)
	}

	return db, nil
}
