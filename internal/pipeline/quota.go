package pipeline

import (
	"sync"
	"time"
)

// LLMQuota enforces the per-tenant daily cap on LLM calls with an atomic
// increment-and-check against a date-bucketed counter. A new UTC day resets
// every tenant's bucket lazily.
type LLMQuota struct {
	mu      sync.Mutex
	day     string
	counts  map[string]int
	limit   int
	nowFunc func() time.Time
}

// NewLLMQuota builds a quota with the given daily per-tenant limit.
// A non-positive limit disables enforcement.
func NewLLMQuota(limit int) *LLMQuota {
	return &LLMQuota{
		counts:  make(map[string]int),
		limit:   limit,
		nowFunc: time.Now,
	}
}

// Allow increments the tenant's counter for today and reports whether the
// call is within quota. The increment happens regardless so concurrent
// callers cannot slip past the limit between check and use.
func (q *LLMQuota) Allow(tenantID string) bool {
	if q.limit <= 0 {
		return true
	}

	today := q.nowFunc().UTC().Format("2006-01-02")

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.day != today {
		q.day = today
		q.counts = make(map[string]int)
	}
	q.counts[tenantID]++
	return q.counts[tenantID] <= q.limit
}

// Remaining reports how many calls the tenant has left today
func (q *LLMQuota) Remaining(tenantID string) int {
	if q.limit <= 0 {
		return -1
	}
	today := q.nowFunc().UTC().Format("2006-01-02")

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.day != today {
		return q.limit
	}
	left := q.limit - q.counts[tenantID]
	if left < 0 {
		return 0
	}
	return left
}
