package ports

import (
	"context"

	"telecare/internal/core/domain"
)

// CallRecordRepository stores finished call attempts. Backed by memory or
// redis depending on configuration.
type CallRecordRepository interface {
	Append(ctx context.Context, record *domain.CallRecord) error
	GetByCallID(ctx context.Context, callID domain.CallID) (*domain.CallRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.CallRecord, error)
}
