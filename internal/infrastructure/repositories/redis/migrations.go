package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	schemaVersionKey = "telecare:journal:schema_version"
	schemaVersion    = 1
)

// Migrate brings the journal keyspace up to the current schema version.
// Version 1 is the initial layout; later versions rewrite keys in place.
func Migrate(ctx context.Context, client *redis.Client) error {
	raw, err := client.Get(ctx, schemaVersionKey).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	current := 0
	if err == nil {
		current, err = strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("corrupt schema version %q: %w", raw, err)
		}
	}

	if current > schemaVersion {
		return fmt.Errorf("journal schema version %d is newer than supported %d", current, schemaVersion)
	}
	if current == schemaVersion {
		return nil
	}

	return client.Set(ctx, schemaVersionKey, strconv.Itoa(schemaVersion), 0).Err()
}
