package intel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/core"
)

type stubFeed struct {
	name   string
	result *core.FeedResult
	err    error
	calls  atomic.Int64
}

func (f *stubFeed) Name() string { return f.name }

func (f *stubFeed) Lookup(ctx context.Context, url string) (*core.FeedResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func feed(name string, verdict core.FeedVerdict, score, reliability float64) *stubFeed {
	return &stubFeed{name: name, result: &core.FeedResult{
		Feed: name, Verdict: verdict, Score: score, Reliability: reliability,
	}}
}

func TestConsensus_WeightedMeanAndDisagreement(t *testing.T) {
	sources := []core.FeedResult{
		{Feed: "a", Verdict: core.FeedMalicious, Score: 90, Reliability: 0.9},
		{Feed: "b", Verdict: core.FeedClean, Score: 5, Reliability: 0.5},
	}

	res := Consensus("https://evil.test/x", sources)
	// (90*0.9 + 5*0.5) / (0.9+0.5)
	assert.InDelta(t, 83.5/1.4, res.ConsensusScore, 1e-9)
	assert.InDelta(t, 0.5, res.AgreementRatio, 1e-9)
	assert.True(t, res.Disagreement)
}

func TestConsensus_UnanimousVerdict(t *testing.T) {
	sources := []core.FeedResult{
		{Feed: "a", Verdict: core.FeedMalicious, Score: 90, Reliability: 0.9},
		{Feed: "b", Verdict: core.FeedMalicious, Score: 80, Reliability: 0.8},
		{Feed: "c", Verdict: core.FeedMalicious, Score: 95, Reliability: 0.7},
	}

	res := Consensus("https://evil.test/x", sources)
	assert.Equal(t, 1.0, res.AgreementRatio)
	assert.False(t, res.Disagreement)
	// Three responding feeds earn the 1.1 confidence boost:
	// 1.0 × mean(0.8) × 1.1 = 0.88
	assert.InDelta(t, 0.88, res.Confidence, 1e-9)
}

func TestConsensus_ConfidenceCappedAtOne(t *testing.T) {
	sources := []core.FeedResult{
		{Feed: "a", Verdict: core.FeedMalicious, Score: 90, Reliability: 1.0},
		{Feed: "b", Verdict: core.FeedMalicious, Score: 85, Reliability: 1.0},
		{Feed: "c", Verdict: core.FeedMalicious, Score: 95, Reliability: 1.0},
	}
	res := Consensus("u", sources)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestConsensus_NoSources(t *testing.T) {
	res := Consensus("u", nil)
	assert.Equal(t, 0.0, res.ConsensusScore)
	assert.Equal(t, 0.0, res.Confidence)
	assert.False(t, res.Disagreement)
}

func TestAggregate_CachesPerURL(t *testing.T) {
	f := feed("a", core.FeedMalicious, 90, 0.9)
	agg := NewAggregator([]core.ThreatFeed{f}, zap.NewNop())
	defer agg.Close()

	first := agg.Aggregate(context.Background(), "https://evil.test/x", Options{})
	assert.False(t, first.FromCache)

	second := agg.Aggregate(context.Background(), "https://evil.test/x", Options{})
	assert.True(t, second.FromCache)
	assert.Equal(t, first.ConsensusScore, second.ConsensusScore)
	assert.Equal(t, int64(1), f.calls.Load())
}

func TestAggregate_ForceRefreshBypassesCache(t *testing.T) {
	f := feed("a", core.FeedMalicious, 90, 0.9)
	agg := NewAggregator([]core.ThreatFeed{f}, zap.NewNop())
	defer agg.Close()

	agg.Aggregate(context.Background(), "u", Options{})
	res := agg.Aggregate(context.Background(), "u", Options{ForceRefresh: true})
	assert.False(t, res.FromCache)
	assert.Equal(t, int64(2), f.calls.Load())
}

func TestAggregate_ClearCache(t *testing.T) {
	f := feed("a", core.FeedClean, 5, 0.9)
	agg := NewAggregator([]core.ThreatFeed{f}, zap.NewNop())
	defer agg.Close()

	agg.Aggregate(context.Background(), "u", Options{})
	agg.ClearCache("u")
	res := agg.Aggregate(context.Background(), "u", Options{})
	assert.False(t, res.FromCache)
	assert.Equal(t, int64(2), f.calls.Load())
}

func TestAggregate_TTLExpiry(t *testing.T) {
	f := feed("a", core.FeedClean, 5, 0.9)
	agg := NewAggregator([]core.ThreatFeed{f}, zap.NewNop())
	defer agg.Close()

	agg.Aggregate(context.Background(), "u", Options{CacheTTL: 10 * time.Millisecond})
	time.Sleep(30 * time.Millisecond)
	res := agg.Aggregate(context.Background(), "u", Options{CacheTTL: 10 * time.Millisecond})
	assert.False(t, res.FromCache)
	assert.Equal(t, int64(2), f.calls.Load())
}

func TestAggregate_FailedFeedDroppedFromConsensus(t *testing.T) {
	good := feed("good", core.FeedMalicious, 90, 0.9)
	bad := &stubFeed{name: "bad", err: errors.New("feed unavailable")}
	agg := NewAggregator([]core.ThreatFeed{good, bad}, zap.NewNop())
	defer agg.Close()

	res := agg.Aggregate(context.Background(), "u", Options{})
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "good", res.Sources[0].Feed)
	assert.InDelta(t, 90, res.ConsensusScore, 1e-9)
}

func TestAggregate_ConcurrentCallers(t *testing.T) {
	f := feed("a", core.FeedSuspicious, 50, 0.8)
	agg := NewAggregator([]core.ThreatFeed{f}, zap.NewNop())
	defer agg.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			agg.Aggregate(context.Background(), "u", Options{})
			agg.ClearCache("u")
		}
		close(done)
	}()
	for i := 0; i < 100; i++ {
		agg.Aggregate(context.Background(), "u", Options{})
	}
	<-done
}
