package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telecare/internal/core/domain"
)

func record(callID string, endedAt time.Time) *domain.CallRecord {
	return &domain.CallRecord{
		RecordID:      "rec_" + callID,
		CallID:        domain.CallID(callID),
		AppointmentID: "apt-1",
		UserID:        "doctor@clinic",
		Role:          domain.RoleDoctor,
		Initiator:     true,
		StartedAt:     endedAt.Add(-10 * time.Minute),
		EndedAt:       endedAt,
		Outcome:       domain.OutcomeCompleted,
	}
}

func TestMemoryRepository_AppendAndGet(t *testing.T) {
	repo := NewMemoryCallRecordRepository()
	ctx := context.Background()

	rec := record("call-1", time.Now())
	require.NoError(t, repo.Append(ctx, rec))

	got, err := repo.GetByCallID(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, rec.RecordID, got.RecordID)
	assert.Equal(t, domain.OutcomeCompleted, got.Outcome)

	// Stored copy must not alias the caller's struct.
	rec.Outcome = domain.OutcomeFailed
	got, err = repo.GetByCallID(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompleted, got.Outcome)
}

func TestMemoryRepository_GetMissing(t *testing.T) {
	repo := NewMemoryCallRecordRepository()

	_, err := repo.GetByCallID(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrCallNotFound)
}

func TestMemoryRepository_ListRecentNewestFirst(t *testing.T) {
	repo := NewMemoryCallRecordRepository()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, repo.Append(ctx, record("call-1", base)))
	require.NoError(t, repo.Append(ctx, record("call-2", base.Add(time.Minute))))
	require.NoError(t, repo.Append(ctx, record("call-3", base.Add(2*time.Minute))))

	recent, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, domain.CallID("call-3"), recent[0].CallID)
	assert.Equal(t, domain.CallID("call-2"), recent[1].CallID)

	all, err := repo.ListRecent(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
