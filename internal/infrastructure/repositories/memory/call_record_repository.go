package memory

import (
	"context"
	"sync"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
)

// MemoryCallRecordRepository keeps the call journal in process memory. It is
// the default backend; history is lost when the process exits.
type MemoryCallRecordRepository struct {
	mu      sync.RWMutex
	byCall  map[domain.CallID]*domain.CallRecord
	ordered []*domain.CallRecord // newest first
}

func NewMemoryCallRecordRepository() ports.CallRecordRepository {
	return &MemoryCallRecordRepository{
		byCall: make(map[domain.CallID]*domain.CallRecord),
	}
}

func (r *MemoryCallRecordRepository) Append(_ context.Context, record *domain.CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *record
	r.byCall[record.CallID] = &stored
	r.ordered = append([]*domain.CallRecord{&stored}, r.ordered...)
	return nil
}

func (r *MemoryCallRecordRepository) GetByCallID(_ context.Context, callID domain.CallID) (*domain.CallRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.byCall[callID]
	if !ok {
		return nil, domain.ErrCallNotFound
	}
	copied := *record
	return &copied, nil
}

func (r *MemoryCallRecordRepository) ListRecent(_ context.Context, limit int) ([]*domain.CallRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit > len(r.ordered) {
		limit = len(r.ordered)
	}
	out := make([]*domain.CallRecord, 0, limit)
	for _, record := range r.ordered[:limit] {
		copied := *record
		out = append(out, &copied)
	}
	return out, nil
}
