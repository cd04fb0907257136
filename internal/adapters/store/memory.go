// Package store provides the persistence adapters: verdicts, learned
// lookalike patterns, and sender history.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mailsentry/mailsentry/internal/core"
)

// MemoryStore keeps verdicts, learned patterns and sender history in
// process memory. Suitable for tests and single-node deployments where
// persistence across restarts is not required.
type MemoryStore struct {
	mu       sync.RWMutex
	verdicts map[uuid.UUID]*core.EmailVerdict
	patterns map[string]*core.LearnedPattern
	history  map[string]*senderRecord
}

// recentWindow bounds the burst-detection window kept per sender
const recentWindow = time.Hour

type senderRecord struct {
	info   core.SenderInfo
	recent []time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		verdicts: make(map[uuid.UUID]*core.EmailVerdict),
		patterns: make(map[string]*core.LearnedPattern),
		history:  make(map[string]*senderRecord),
	}
}

func (s *MemoryStore) StoreVerdict(ctx context.Context, verdict *core.EmailVerdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *verdict
	s.verdicts[verdict.ID] = &copied
	return nil
}

func (s *MemoryStore) GetVerdict(ctx context.Context, id uuid.UUID) (*core.EmailVerdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.verdicts[id]
	if !ok {
		return nil, fmt.Errorf("verdict %s not found", id)
	}
	copied := *v
	return &copied, nil
}

func (s *MemoryStore) LoadPatterns(ctx context.Context) ([]*core.LearnedPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.LearnedPattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}

func (s *MemoryStore) SavePattern(ctx context.Context, p *core.LearnedPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *p
	s.patterns[patternKey(p)] = &copied
	return nil
}

func (s *MemoryStore) SenderHistory(ctx context.Context, sender, recipient string) (*core.SenderInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.history[historyKey(sender, recipient)]
	if !ok {
		return nil, nil
	}
	rec.recent = pruneRecent(rec.recent, time.Now())
	info := rec.info
	info.RecentCount = len(rec.recent)
	return &info, nil
}

func (s *MemoryStore) RecordMessage(ctx context.Context, sender, recipient string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := historyKey(sender, recipient)
	rec, ok := s.history[key]
	if !ok {
		s.history[key] = &senderRecord{
			info: core.SenderInfo{
				Email:        sender,
				MessageCount: 1,
				FirstSeen:    at,
				LastSeen:     at,
			},
			recent: []time.Time{at},
		}
		return nil
	}
	rec.info.MessageCount++
	rec.info.LastSeen = at
	rec.recent = append(pruneRecent(rec.recent, at), at)
	return nil
}

func pruneRecent(recent []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-recentWindow)
	kept := recent[:0]
	for _, ts := range recent {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

func patternKey(p *core.LearnedPattern) string {
	return p.TargetBrand + "|" + string(p.AttackType) + "|" + p.Pattern
}

func historyKey(sender, recipient string) string {
	return sender + "|" + recipient
}
