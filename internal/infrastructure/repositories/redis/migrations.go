package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schemaVersionKey = "manobela:schema:version"
	schemaVersion    = 1
)

// migration mutates the key layout from version-1 to its version.
type migration struct {
	version int
	apply   func(ctx context.Context, client *redis.Client) error
}

var migrations = []migration{
	{
		version: 1,
		apply: func(ctx context.Context, client *redis.Client) error {
			// Touch the session index set so later SMEMBERS calls see an
			// empty set rather than a missing key.
			const indexKey = "manobela:sessions"
			exists, err := client.Exists(ctx, indexKey).Result()
			if err != nil || exists > 0 {
				return err
			}
			if err := client.SAdd(ctx, indexKey, "").Err(); err != nil {
				return err
			}
			return client.SRem(ctx, indexKey, "").Err()
		},
	},
}

// Migrate applies any key-schema migrations newer than the stored version.
func Migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	stored, err := storedVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if stored >= schemaVersion {
		return nil
	}

	for _, m := range migrations {
		if m.version <= stored {
			continue
		}
		logger.Infow("applying redis migration", "version", m.version)
		if err := m.apply(ctx, client); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		if err := client.Set(ctx, schemaVersionKey, m.version, 0).Err(); err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}
	}

	logger.Infow("redis schema up to date", "version", schemaVersion)
	return nil
}

func storedVersion(ctx context.Context, client *redis.Client) (int, error) {
	v, err := client.Get(ctx, schemaVersionKey).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}
