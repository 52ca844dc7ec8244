package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
)

const (
	callKeyPrefix = "telecare:journal:call:"
	recentListKey = "telecare:journal:recent"

	// recentListCap bounds the history list; older entries keep their
	// per-call key but fall off the recent listing.
	recentListCap = 100
)

// RedisCallRecordRepository persists the call journal in Redis so history
// survives client restarts on shared workstations.
type RedisCallRecordRepository struct {
	client *redis.Client
}

func NewRedisCallRecordRepository(client *redis.Client) ports.CallRecordRepository {
	return &RedisCallRecordRepository{client: client}
}

func callKey(callID domain.CallID) string {
	return callKeyPrefix + string(callID)
}

func (r *RedisCallRecordRepository) Append(ctx context.Context, record *domain.CallRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal call record: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, callKey(record.CallID), data, 0)
	pipe.LPush(ctx, recentListKey, string(record.CallID))
	pipe.LTrim(ctx, recentListKey, 0, recentListCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append call record: %w", err)
	}
	return nil
}

func (r *RedisCallRecordRepository) GetByCallID(ctx context.Context, callID domain.CallID) (*domain.CallRecord, error) {
	data, err := r.client.Get(ctx, callKey(callID)).Result()
	if err == redis.Nil {
		return nil, domain.ErrCallNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get call record: %w", err)
	}

	var record domain.CallRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call record: %w", err)
	}
	return &record, nil
}

func (r *RedisCallRecordRepository) ListRecent(ctx context.Context, limit int) ([]*domain.CallRecord, error) {
	ids, err := r.client.LRange(ctx, recentListKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list recent calls: %w", err)
	}

	records := make([]*domain.CallRecord, 0, len(ids))
	for _, id := range ids {
		record, err := r.GetByCallID(ctx, domain.CallID(id))
		if err == domain.ErrCallNotFound {
			// Per-call key expired or was deleted out of band.
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
