package intel

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/core"
	"github.com/mailsentry/mailsentry/internal/metrics"
)

// DefaultCacheTTL is how long a consensus result stays fresh
const DefaultCacheTTL = 5 * time.Minute

// agreementFloor is the ratio below which the feeds are considered to
// disagree about a URL
const agreementFloor = 0.7

// Options tunes one Aggregate call
type Options struct {
	CacheTTL     time.Duration
	ForceRefresh bool
	FeedTimeout  time.Duration
}

// Aggregator combines several threat feeds into one consensus verdict per
// URL, with a TTL cache in front. Safe for concurrent use.
type Aggregator struct {
	feeds  []core.ThreatFeed
	cache  *resultCache
	logger *zap.Logger
}

// NewAggregator builds an aggregator over the given feeds
func NewAggregator(feeds []core.ThreatFeed, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		feeds:  feeds,
		cache:  newResultCache(time.Minute),
		logger: logger,
	}
}

// Aggregate returns the consensus threat-intel result for a URL,
// cache-first unless opts.ForceRefresh is set.
func (a *Aggregator) Aggregate(ctx context.Context, url string, opts Options) *core.ThreatIntelResult {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	if !opts.ForceRefresh {
		if cached, ok := a.cache.get(url); ok {
			cached.FromCache = true
			metrics.IntelCacheHits.Inc()
			return cached
		}
	}

	sources := a.queryFeeds(ctx, url, opts.FeedTimeout)
	result := Consensus(url, sources)
	result.CheckedAt = time.Now()

	a.cache.set(url, result, ttl)
	return result
}

// ClearCache drops the cached result for a URL, forcing the next Aggregate
// call to requery the feeds
func (a *Aggregator) ClearCache(url string) {
	a.cache.clear(url)
}

// Close stops the background cache sweeper
func (a *Aggregator) Close() {
	a.cache.stop()
}

// queryFeeds fans out to every feed concurrently. A failed or timed-out
// feed is logged and dropped from the consensus rather than failing it.
func (a *Aggregator) queryFeeds(ctx context.Context, url string, timeout time.Duration) []core.FeedResult {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	results := make([]core.FeedResult, len(a.feeds))
	ok := make([]bool, len(a.feeds))
	var wg sync.WaitGroup

	for i, feed := range a.feeds {
		wg.Add(1)
		go func(i int, feed core.ThreatFeed) {
			defer wg.Done()
			feedCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			res, err := feed.Lookup(feedCtx, url)
			if err != nil {
				a.logger.Warn("Threat feed lookup failed",
					zap.String("feed", feed.Name()),
					zap.String("url", url),
					zap.Error(err))
				metrics.IntelFeedFailures.WithLabelValues(feed.Name()).Inc()
				return
			}
			if res != nil {
				results[i] = *res
				ok[i] = true
			}
		}(i, feed)
	}
	wg.Wait()

	out := make([]core.FeedResult, 0, len(a.feeds))
	for i := range results {
		if ok[i] {
			out = append(out, results[i])
		}
	}
	return out
}

// Consensus computes the reliability-weighted consensus over feed answers.
// Exposed as a pure function so the math is testable without feeds.
func Consensus(url string, sources []core.FeedResult) *core.ThreatIntelResult {
	result := &core.ThreatIntelResult{URL: url, Sources: sources}
	if len(sources) == 0 {
		result.Disagreement = false
		return result
	}

	weightedSum := 0.0
	totalReliability := 0.0
	verdictCounts := make(map[core.FeedVerdict]int)
	for _, s := range sources {
		weightedSum += s.Score * s.Reliability
		totalReliability += s.Reliability
		verdictCounts[s.Verdict]++
	}

	if totalReliability > 0 {
		result.ConsensusScore = core.ClampScore(weightedSum / totalReliability)
	}

	majority := 0
	for _, count := range verdictCounts {
		if count > majority {
			majority = count
		}
	}
	result.AgreementRatio = float64(majority) / float64(len(sources))
	result.Disagreement = result.AgreementRatio < agreementFloor

	meanReliability := totalReliability / float64(len(sources))
	confidence := result.AgreementRatio * meanReliability
	if len(sources) >= 3 {
		confidence *= 1.1
	}
	result.Confidence = core.ClampConfidence(confidence)

	return result
}
