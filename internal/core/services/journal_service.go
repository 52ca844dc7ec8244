package services

import (
	"context"
	"fmt"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/pkg/cache"
	applog "telecare/pkg/logger"
	"telecare/pkg/retry"
	"telecare/pkg/utils"

	"go.uber.org/zap"
)

// JournalService keeps the client-side consultation history. Writes are
// retried because losing a record is worse than a short delay; reads go
// through a small TTL cache because the diagnostics API polls them.
type JournalService struct {
	repo   ports.CallRecordRepository
	cache  *cache.Cache
	policy retry.Policy
	logger *applog.ContextLogger
}

func NewJournalService(repo ports.CallRecordRepository, cacheTTL time.Duration, logger *zap.Logger) *JournalService {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &JournalService{
		repo:   repo,
		cache:  cache.NewCache(cacheTTL),
		policy: retry.DefaultPolicy(),
		logger: applog.NewContextLogger(logger),
	}
}

// Record appends one finished attempt to the journal.
func (s *JournalService) Record(ctx context.Context, record *domain.CallRecord) error {
	if record.RecordID == "" {
		record.RecordID = utils.GenerateRecordID()
	}

	err := retry.Do(ctx, s.policy, func() error {
		return s.repo.Append(ctx, record)
	})
	if err != nil {
		return fmt.Errorf("failed to journal call %s: %w", record.CallID, err)
	}

	s.cache.Invalidate("journal:")
	s.logger.WithContext(ctx).Info("call attempt journaled",
		zap.String("record_id", record.RecordID),
		zap.String("call_id", string(record.CallID)),
		zap.String("outcome", string(record.Outcome)),
		zap.Duration("duration", record.Duration()),
	)
	return nil
}

// Get loads the record of one call.
func (s *JournalService) Get(ctx context.Context, callID domain.CallID) (*domain.CallRecord, error) {
	key := fmt.Sprintf("journal:call:%s", callID)
	v, err := s.cache.GetOrSet(ctx, key, func(ctx context.Context) (interface{}, error) {
		return s.repo.GetByCallID(ctx, callID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.CallRecord), nil
}

// Recent lists the latest finished attempts, newest first.
func (s *JournalService) Recent(ctx context.Context, limit int) ([]*domain.CallRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	key := fmt.Sprintf("journal:recent:%d", limit)
	v, err := s.cache.GetOrSet(ctx, key, func(ctx context.Context) (interface{}, error) {
		return s.repo.ListRecent(ctx, limit)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*domain.CallRecord), nil
}

// Close releases the cache's background resources.
func (s *JournalService) Close() {
	s.cache.Stop()
}
