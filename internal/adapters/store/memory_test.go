package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailsentry/mailsentry/internal/core"
)

func TestVerdictRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	v := &core.EmailVerdict{
		ID:           uuid.New(),
		MessageID:    "msg-1",
		TenantID:     "tenant-a",
		Verdict:      core.VerdictQuarantine,
		OverallScore: 74,
	}
	require.NoError(t, s.StoreVerdict(ctx, v))

	got, err := s.GetVerdict(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.MessageID, got.MessageID)
	assert.Equal(t, core.VerdictQuarantine, got.Verdict)

	// mutation of the returned copy must not reach the store
	got.OverallScore = 0
	again, err := s.GetVerdict(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 74.0, again.OverallScore)
}

func TestGetVerdictMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetVerdict(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestPatternRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	p := &core.LearnedPattern{
		Pattern:           "paypa1.com",
		TargetBrand:       "paypal",
		AttackType:        core.AttackHomoglyph,
		Occurrences:       3,
		AverageConfidence: 0.8,
		LastSeen:          time.Now(),
	}
	require.NoError(t, s.SavePattern(ctx, p))

	// saving again with the same key overwrites, not duplicates
	p.Occurrences = 4
	require.NoError(t, s.SavePattern(ctx, p))

	patterns, err := s.LoadPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, 4, patterns[0].Occurrences)
}

func TestSenderHistory(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	info, err := s.SenderHistory(ctx, "a@x.example", "b@y.example")
	require.NoError(t, err)
	assert.Nil(t, info, "unknown pair has no history")

	now := time.Now()
	require.NoError(t, s.RecordMessage(ctx, "a@x.example", "b@y.example", now))
	require.NoError(t, s.RecordMessage(ctx, "a@x.example", "b@y.example", now.Add(time.Hour)))

	info, err = s.SenderHistory(ctx, "a@x.example", "b@y.example")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, 2, info.MessageCount)
	assert.Equal(t, now, info.FirstSeen)

	// history is per recipient
	other, err := s.SenderHistory(ctx, "a@x.example", "c@y.example")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestSenderHistoryRecentCountWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	// two stale messages outside the trailing hour, three inside it
	require.NoError(t, s.RecordMessage(ctx, "a@x.example", "b@y.example", now.Add(-26*time.Hour)))
	require.NoError(t, s.RecordMessage(ctx, "a@x.example", "b@y.example", now.Add(-25*time.Hour)))
	require.NoError(t, s.RecordMessage(ctx, "a@x.example", "b@y.example", now.Add(-40*time.Minute)))
	require.NoError(t, s.RecordMessage(ctx, "a@x.example", "b@y.example", now.Add(-10*time.Minute)))
	require.NoError(t, s.RecordMessage(ctx, "a@x.example", "b@y.example", now))

	info, err := s.SenderHistory(ctx, "a@x.example", "b@y.example")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, 5, info.MessageCount, "lifetime count keeps every message")
	assert.Equal(t, 3, info.RecentCount, "recent count is bounded to the trailing hour")
	assert.Equal(t, now, info.LastSeen)
}
